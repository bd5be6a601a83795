package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"safesight/internal/core"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	summaryStyle  = lipgloss.NewStyle().Italic(true)
	cardStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// renderTakeaway writes t in the requested format ("text" or "json")
func renderTakeaway(w io.Writer, t *core.Takeaway, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}
	_, err := fmt.Fprintln(w, formatTakeaway(t))
	return err
}

// formatTakeaway renders a checklist card for terminal output
func formatTakeaway(t *core.Takeaway) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(t.Subject.Key()))
	b.WriteString("\n")

	if t.SummaryText != nil {
		b.WriteString(summaryStyle.Render(*t.SummaryText))
		b.WriteString("\n")
	}

	writeChecklist(&b, t.PositiveText, positiveStyle)
	writeChecklist(&b, t.NegativeText, negativeStyle)
	if t.PositiveText == nil && t.NegativeText == nil {
		b.WriteString(mutedStyle.Render("No safety signal available."))
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render(fmt.Sprintf("%s · expires %s", t.Outcome, t.ExpiresAt.Format(time.RFC3339))))

	return cardStyle.Render(b.String())
}

func writeChecklist(b *strings.Builder, text *string, style lipgloss.Style) {
	if text == nil {
		return
	}
	for _, line := range strings.Split(*text, "\n") {
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
}
