package summarize

import (
	"regexp"
	"strings"

	"safesight/internal/core"
)

// bulletPrefix matches list bullets and numbering the model sometimes adds in place of markers.
var bulletPrefix = regexp.MustCompile(`^(?:[-*•·]|\d{1,2}[.)])\s+`)

// checkMarks are the check and cross glyphs a model may put in front of a point, in either
// list. Variants carrying an emoji presentation selector come before their bare form.
var checkMarks = []string{
	core.PositiveMarker, "✔️", "✔", "✅", "☑️", "☑",
	core.NegativeMarker, "✘", "✖️", "✖", "❌", "❎",
}

// stripCheckMarks removes any run of leading check or cross glyphs.
func stripCheckMarks(line string) string {
	for {
		stripped := false
		for _, mark := range checkMarks {
			if strings.HasPrefix(line, mark) {
				line = strings.TrimSpace(strings.TrimPrefix(line, mark))
				stripped = true
				break
			}
		}
		if !stripped {
			return line
		}
	}
}

// FormatChecklist enforces the checklist contract on a candidate list: one point per line,
// no blank or marker-only lines, every line starting with the polarity's marker exactly once.
// It returns nil when nothing survives.
func FormatChecklist(raw *string, polarity core.Polarity) *string {
	if raw == nil {
		return nil
	}
	text := strings.TrimSpace(*raw)
	if text == "" || strings.EqualFold(text, "null") {
		return nil
	}

	marker := polarity.Marker()
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = stripCheckMarks(strings.TrimSpace(line))
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		// Markers may follow a bullet, e.g. "- ✓ point".
		line = stripCheckMarks(line)
		if line == "" || strings.EqualFold(line, "null") {
			continue
		}
		lines = append(lines, marker+" "+line)
	}

	if len(lines) == 0 {
		return nil
	}
	formatted := strings.Join(lines, "\n")
	return &formatted
}

// FormatSummary trims the optional summary and drops it when empty.
func FormatSummary(raw *string) *string {
	if raw == nil {
		return nil
	}
	text := strings.TrimSpace(*raw)
	if text == "" || strings.EqualFold(text, "null") {
		return nil
	}
	return &text
}
