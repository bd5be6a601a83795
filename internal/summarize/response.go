package summarize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedResponse means the reply did not contain a usable takeaway object.
var ErrMalformedResponse = errors.New("malformed takeaway response")

// Reply field names.
const (
	fieldPositive = "positive_takeaway"
	fieldNegative = "negative_takeaway"
	fieldSummary  = "summary"
)

// ParseStatus says how much of a reply could be used.
type ParseStatus int

const (
	// ParseComplete: the reply held a well-formed object with at least one expected key.
	ParseComplete ParseStatus = iota
	// ParsePartial: strict parsing failed but some fields were recovered from the raw text.
	ParsePartial
	// ParseFailed: nothing usable; every field is nil.
	ParseFailed
)

func (s ParseStatus) String() string {
	switch s {
	case ParseComplete:
		return "complete"
	case ParsePartial:
		return "partial"
	default:
		return "failed"
	}
}

// RawTakeaway holds the unformatted fields of a reply. Nil means absent or null.
type RawTakeaway struct {
	Positive *string
	Negative *string
	Summary  *string
}

// Empty reports whether no field carries text.
func (r RawTakeaway) Empty() bool {
	return r.Positive == nil && r.Negative == nil && r.Summary == nil
}

// ParseResult is the outcome of the two-stage parse. Err is set (wrapping
// ErrMalformedResponse) whenever the strict stage failed.
type ParseResult struct {
	Takeaway RawTakeaway
	Status   ParseStatus
	Err      error
}

var (
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

	fieldRegexes = map[string]*regexp.Regexp{
		fieldPositive: quotedFieldRegex(fieldPositive),
		fieldNegative: quotedFieldRegex(fieldNegative),
		fieldSummary:  quotedFieldRegex(fieldSummary),
	}
)

// quotedFieldRegex matches "name": "value" where value is a JSON string literal.
func quotedFieldRegex(name string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(name) + `"\s*:\s*("(?:[^"\\]|\\.)*")`)
}

// ParseTakeawayResponse turns raw reply text into a takeaway. It never panics or returns
// an error directly: strict schema parsing is tried first, then per-field pattern recovery,
// then an all-nil takeaway.
func ParseTakeawayResponse(raw string) ParseResult {
	parsed, err := parseStrict(raw)
	if err == nil {
		return ParseResult{Takeaway: parsed, Status: ParseComplete}
	}

	recovered := recoverFields(raw)
	if recovered.Empty() {
		return ParseResult{Status: ParseFailed, Err: err}
	}
	return ParseResult{Takeaway: recovered, Status: ParsePartial, Err: err}
}

func parseStrict(raw string) (RawTakeaway, error) {
	text := strings.TrimSpace(raw)
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	fields, err := decodeFirstObject(text)
	if err != nil {
		return RawTakeaway{}, err
	}

	_, hasPositive := fields[fieldPositive]
	_, hasNegative := fields[fieldNegative]
	_, hasSummary := fields[fieldSummary]
	if !hasPositive && !hasNegative && !hasSummary {
		return RawTakeaway{}, fmt.Errorf("%w: no expected fields present", ErrMalformedResponse)
	}

	return RawTakeaway{
		Positive: decodeField(fields[fieldPositive]),
		Negative: decodeField(fields[fieldNegative]),
		Summary:  decodeField(fields[fieldSummary]),
	}, nil
}

// decodeFirstObject decodes the first complete JSON object in text. Prose before an
// opening brace and anything after the object's closing brace is ignored.
func decodeFirstObject(text string) (map[string]json.RawMessage, error) {
	var firstErr error
	for offset := 0; offset < len(text); {
		i := strings.IndexByte(text[offset:], '{')
		if i < 0 {
			break
		}
		start := offset + i

		var fields map[string]json.RawMessage
		err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&fields)
		if err == nil {
			return fields, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		offset = start + 1
	}

	if firstErr == nil {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, firstErr)
}

// decodeField accepts a string, null, or an array of strings (joined one per line).
// Any other JSON type is treated as absent.
func decodeField(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}

	var s *string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		joined := strings.Join(list, "\n")
		return &joined
	}
	return nil
}

func recoverFields(raw string) RawTakeaway {
	return RawTakeaway{
		Positive: findQuoted(raw, fieldPositive),
		Negative: findQuoted(raw, fieldNegative),
		Summary:  findQuoted(raw, fieldSummary),
	}
}

func findQuoted(raw, field string) *string {
	m := fieldRegexes[field].FindStringSubmatch(raw)
	if m == nil {
		return nil
	}

	var value string
	if err := json.Unmarshal([]byte(m[1]), &value); err != nil {
		// Invalid escape sequences: keep the literal body.
		value = strings.ReplaceAll(m[1][1:len(m[1])-1], `\n`, "\n")
	}
	return &value
}
