package summarize

import (
	"fmt"
	"strings"

	"safesight/internal/core"
	"safesight/internal/logger"
)

// maxPromptContentChars bounds the embedded content block.
const maxPromptContentChars = 24000

// PromptInput is everything the takeaway prompt is built from.
type PromptInput struct {
	Lines          []string         // Normalized content lines
	ContentType    core.ContentType // Selects the per-type guidance
	SubjectName    string           // Optional display name of the subject
	IncludeSummary bool             // Ask for the optional "summary" field
	MaxPoints      int              // Upper bound on points per list
}

// DefaultMaxPoints is used when PromptInput.MaxPoints is zero.
const DefaultMaxPoints = 5

// contentGuidance holds the content-type-specific instructions.
var contentGuidance = map[core.ContentType]string{
	core.ContentReviews: `These are guest reviews of a place to stay.
- Look for EXPLICIT safety mentions (e.g. "felt safe walking back at night", "car was broken into").
- Also look for IMPLICIT safety signals (lighting, locks, neighbourhood noise, who is around at night, host responsiveness to security issues).
- Weigh points that several reviewers agree on more heavily than one-off remarks.
- Use the ratings as context, but do not report the ratings themselves.`,

	core.ContentInsights: `These are comments from people describing their own local experience of an area.
- Only use PERSONAL, FIRST-HAND local experience (what happened to them or what they saw).
- EXCLUDE generic boilerplate advice that could apply anywhere ("always be aware of your surroundings", "lock your doors", "don't walk alone at night").
- Prefer concrete places, times of day and situations over vague impressions.`,

	core.ContentVideos: `This is the title, description, transcript and viewer comments of a short video filmed in an area.
- Actively search for BOTH positive and negative safety signals, even when neither is obvious on the surface.
- Consider what is shown or said about crowds, lighting, police presence, traffic, scams, theft and how people behave.
- Viewer comments from locals often carry the strongest signal; creator commentary may be promotional.`,
}

// BuildTakeawayPrompt builds the single instruction string sent to the inference service.
// It is deterministic: identical input always yields an identical prompt.
func BuildTakeawayPrompt(in PromptInput) string {
	maxPoints := in.MaxPoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	guidance, ok := contentGuidance[in.ContentType]
	if !ok {
		guidance = contentGuidance[core.ContentReviews]
	}

	var prompt strings.Builder

	prompt.WriteString("You are summarizing safety-relevant observations about a place for a traveller.\n\n")
	if name := strings.TrimSpace(in.SubjectName); name != "" {
		prompt.WriteString(fmt.Sprintf("**Place:** %s\n\n", name))
	}

	prompt.WriteString("**Guidance:**\n")
	prompt.WriteString(guidance)
	prompt.WriteString("\n\n")

	prompt.WriteString(fmt.Sprintf("**Content (%d items):**\n", len(in.Lines)))
	body := joinLines(in.Lines)
	if len(body) > maxPromptContentChars {
		logger.Warn("Prompt content truncated",
			"content_type", in.ContentType, "chars", len(body), "max_chars", maxPromptContentChars)
	}
	prompt.WriteString(truncateContent(body, maxPromptContentChars))
	prompt.WriteString("\n\n")

	prompt.WriteString("**FORMATTING RULES:**\n")
	prompt.WriteString(fmt.Sprintf("1. Write at most %d points per list, one point per line.\n", maxPoints))
	prompt.WriteString(fmt.Sprintf("2. Start EVERY positive line with \"%s \" and EVERY negative line with \"%s \".\n", core.PositiveMarker, core.NegativeMarker))
	prompt.WriteString("3. Each line must be a complete, standalone sentence. No headings, no numbering, no blank lines.\n")
	prompt.WriteString("4. Only state what the content supports. Do not invent details, places or statistics.\n")
	prompt.WriteString("5. If there is no genuine signal for a list, return null for it instead of inventing content.\n\n")

	prompt.WriteString("**OUTPUT FORMAT:**\n")
	prompt.WriteString("Return ONLY a JSON object, with no surrounding text, in exactly this shape:\n")
	prompt.WriteString("{\n")
	prompt.WriteString(fmt.Sprintf("  \"positive_takeaway\": \"%s First point.\\n%s Second point.\" or null,\n", core.PositiveMarker, core.PositiveMarker))
	if in.IncludeSummary {
		prompt.WriteString(fmt.Sprintf("  \"negative_takeaway\": \"%s First point.\\n%s Second point.\" or null,\n", core.NegativeMarker, core.NegativeMarker))
		prompt.WriteString("  \"summary\": \"Two or three neutral sentences summarizing the overall safety picture.\" or null\n")
	} else {
		prompt.WriteString(fmt.Sprintf("  \"negative_takeaway\": \"%s First point.\\n%s Second point.\" or null\n", core.NegativeMarker, core.NegativeMarker))
	}
	prompt.WriteString("}\n")

	return prompt.String()
}

func joinLines(lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, line))
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateContent cuts content to maxChars, preferring a line or word boundary.
func truncateContent(content string, maxChars int) string {
	if len(content) <= maxChars {
		return content
	}

	truncated := content[:maxChars]

	if lastNewline := strings.LastIndex(truncated, "\n"); lastNewline > maxChars/2 {
		truncated = truncated[:lastNewline]
	} else if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}
