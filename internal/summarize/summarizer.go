package summarize

import (
	"context"
	"fmt"

	"safesight/internal/core"
)

// LLMClient defines the interface for LLM operations
type LLMClient interface {
	// GenerateText sends one prompt and returns the reply text
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Summarizer turns normalized content into formatted takeaways using an LLM
type Summarizer struct {
	llmClient LLMClient
	options   SummarizerOptions
}

// SummarizerOptions configures the summarizer behavior
type SummarizerOptions struct {
	// Maximum points per polarity list
	MaxPoints int

	// Recorded on generated takeaways
	ModelName string
}

// DefaultSummarizerOptions returns sensible defaults
func DefaultSummarizerOptions() SummarizerOptions {
	return SummarizerOptions{
		MaxPoints: DefaultMaxPoints,
		ModelName: "gemini-flash-lite-latest",
	}
}

// NewSummarizer creates a new summarizer with the given LLM client
func NewSummarizer(llmClient LLMClient, options SummarizerOptions) *Summarizer {
	if options.MaxPoints <= 0 {
		options.MaxPoints = DefaultMaxPoints
	}
	return &Summarizer{
		llmClient: llmClient,
		options:   options,
	}
}

// NewSummarizerWithDefaults creates a summarizer with default options
func NewSummarizerWithDefaults(llmClient LLMClient) *Summarizer {
	return NewSummarizer(llmClient, DefaultSummarizerOptions())
}

// ModelName returns the model recorded on generated takeaways
func (s *Summarizer) ModelName() string {
	return s.options.ModelName
}

// GenerateRequest is the input of one takeaway generation
type GenerateRequest struct {
	Lines          []string
	ContentType    core.ContentType
	SubjectName    string
	IncludeSummary bool
}

// Generation is a formatted takeaway plus how its reply was parsed
type Generation struct {
	Positive *string
	Negative *string
	Summary  *string
	Status   ParseStatus
	ParseErr error
}

// Empty reports whether the generation produced no text at all
func (g *Generation) Empty() bool {
	return g.Positive == nil && g.Negative == nil && g.Summary == nil
}

// GenerateTakeaways runs prompt building, inference, parsing and formatting for any
// content type. Only inference errors are returned; parse problems are reported on the
// Generation.
func (s *Summarizer) GenerateTakeaways(ctx context.Context, req GenerateRequest) (*Generation, error) {
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("no content to summarize")
	}

	prompt := BuildTakeawayPrompt(PromptInput{
		Lines:          req.Lines,
		ContentType:    req.ContentType,
		SubjectName:    req.SubjectName,
		IncludeSummary: req.IncludeSummary,
		MaxPoints:      s.options.MaxPoints,
	})

	response, err := s.llmClient.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s takeaways: %w", req.ContentType, err)
	}

	parsed := ParseTakeawayResponse(response)

	gen := &Generation{
		Positive: FormatChecklist(parsed.Takeaway.Positive, core.Positive),
		Negative: FormatChecklist(parsed.Takeaway.Negative, core.Negative),
		Status:   parsed.Status,
		ParseErr: parsed.Err,
	}
	if req.IncludeSummary {
		gen.Summary = FormatSummary(parsed.Takeaway.Summary)
	}

	return gen, nil
}
