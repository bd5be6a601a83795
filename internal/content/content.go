// Package content turns heterogeneous upstream items into uniform prompt lines.
package content

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"safesight/internal/core"
	"safesight/internal/logger"
)

// maxLineRunes caps a single normalized line so one long review cannot crowd out the rest.
const maxLineRunes = 1000

// maxLines caps the number of lines per content type.
var maxLines = map[core.ContentType]int{
	core.ContentReviews:  60,
	core.ContentInsights: 60,
	core.ContentVideos:   120,
}

// Item is one piece of upstream content about a subject.
type Item interface {
	// ExtractText returns a display-ready line, or "" if the item carries no text.
	ExtractText() string
}

// Review is a guest review of a listing.
type Review struct {
	Text   string  `json:"text" yaml:"text"`
	Rating float64 `json:"rating" yaml:"rating"`
	Author string  `json:"author" yaml:"author"`
}

func (r Review) ExtractText() string {
	text := cleanText(r.Text)
	if text == "" {
		return ""
	}
	var b strings.Builder
	if r.Rating > 0 {
		b.WriteString("[Rating: ")
		b.WriteString(strconv.FormatFloat(r.Rating, 'f', -1, 64))
		b.WriteString("/5] ")
	}
	b.WriteString(text)
	if author := cleanText(r.Author); author != "" {
		b.WriteString(" (by ")
		b.WriteString(author)
		b.WriteString(")")
	}
	return b.String()
}

// Insight is a community comment about an area, already filtered for safety relevance.
type Insight struct {
	Text      string `json:"text" yaml:"text"`
	Sentiment string `json:"sentiment" yaml:"sentiment"`
}

func (i Insight) ExtractText() string {
	text := cleanText(i.Text)
	if text == "" {
		return ""
	}
	if s := strings.ToLower(cleanText(i.Sentiment)); s != "" {
		return fmt.Sprintf("[Sentiment: %s] %s", s, text)
	}
	return text
}

// FragmentKind says which part of a video a fragment came from.
type FragmentKind string

const (
	FragmentTranscript  FragmentKind = "transcript"
	FragmentDescription FragmentKind = "description"
	FragmentComment     FragmentKind = "comment"
	FragmentTitle       FragmentKind = "title"
)

var fragmentLabels = map[FragmentKind]string{
	FragmentTranscript:  "Transcript",
	FragmentDescription: "Description",
	FragmentComment:     "Comment",
	FragmentTitle:       "Title",
}

// VideoFragment is one textual part of a short video.
type VideoFragment struct {
	Kind FragmentKind `json:"kind" yaml:"kind"`
	Text string       `json:"text" yaml:"text"`
}

func (v VideoFragment) ExtractText() string {
	text := cleanText(v.Text)
	if text == "" {
		return ""
	}
	kind := v.Kind
	if _, ok := fragmentLabels[kind]; !ok {
		kind = FragmentComment
	}
	return fmt.Sprintf("[%s] %s", fragmentLabels[kind], text)
}

// Normalize extracts one line per item, dropping items without text and capping the
// result per content type. Capped items are logged. An empty result means there is
// nothing to summarize.
func Normalize(items []Item, contentType core.ContentType) []string {
	limit, ok := maxLines[contentType]
	if !ok {
		limit = maxLines[core.ContentReviews]
	}

	lines := make([]string, 0, min(len(items), limit))
	shortened := 0
	for i, item := range items {
		if item == nil {
			continue
		}
		line := strings.TrimSpace(item.ExtractText())
		if line == "" {
			continue
		}
		if len(lines) == limit {
			logger.Warn("Content capped, dropping remaining items",
				"content_type", contentType, "kept", limit, "unread", len(items)-i)
			break
		}
		if utf8.RuneCountInString(line) > maxLineRunes {
			shortened++
		}
		lines = append(lines, truncateRunes(line, maxLineRunes))
	}
	if shortened > 0 {
		logger.Info("Long content lines shortened",
			"content_type", contentType, "lines", shortened, "max_runes", maxLineRunes)
	}
	return lines
}

// Reviews adapts a review slice to items.
func Reviews(reviews []Review) []Item {
	items := make([]Item, len(reviews))
	for i, r := range reviews {
		items[i] = r
	}
	return items
}

// Insights adapts an insight slice to items.
func Insights(insights []Insight) []Item {
	items := make([]Item, len(insights))
	for i, in := range insights {
		items[i] = in
	}
	return items
}

// Video flattens a video's metadata into fragments in prompt order:
// title, description, transcript, then comments.
func Video(title, description, transcript string, comments []string) []Item {
	items := []Item{
		VideoFragment{Kind: FragmentTitle, Text: title},
		VideoFragment{Kind: FragmentDescription, Text: description},
		VideoFragment{Kind: FragmentTranscript, Text: transcript},
	}
	for _, c := range comments {
		items = append(items, VideoFragment{Kind: FragmentComment, Text: c})
	}
	return items
}

var (
	markupTag    = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(?:\s[^<>]*)?/?>`)
	markupEntity = regexp.MustCompile(`&(?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);`)
)

// cleanText strips markup and collapses whitespace. Text without tags or entities is
// left as is, so a plain "a<b" survives.
func cleanText(s string) string {
	if markupTag.MatchString(s) || markupEntity.MatchString(s) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(escapeStrayBrackets(s)))
		if err == nil {
			doc.Find("script, style").Remove()
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// escapeStrayBrackets escapes every "<" that does not open a recognised tag.
func escapeStrayBrackets(s string) string {
	tags := markupTag.FindAllStringIndex(s, -1)
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, loc := range tags {
		b.WriteString(strings.ReplaceAll(s[last:loc[0]], "<", "&lt;"))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(strings.ReplaceAll(s[last:], "<", "&lt;"))
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
