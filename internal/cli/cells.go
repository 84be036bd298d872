package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tOgg1/postview/internal/models"
)

var (
	headerStyle      = lipgloss.NewStyle().Bold(true)
	subjectStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	nameStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	quoteStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Underline(true)
	greentextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	spoilerStyle     = lipgloss.NewStyle().Reverse(true)
	linkStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Underline(true)
	highlightStyle   = lipgloss.NewStyle().BorderLeft(true).BorderStyle(lipgloss.ThickBorder()).BorderForeground(lipgloss.Color("11")).PaddingLeft(1)
	cellStyle        = lipgloss.NewStyle().PaddingLeft(2)
	placeholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// formatCell renders a cell for terminal display, wrapped to width.
func formatCell(cell models.RenderReadyCell, width int) string {
	rec := cell.Record

	header := []string{headerStyle.Render(fmt.Sprintf("No.%d", rec.Descriptor.PostNo))}
	if cell.Subject != "" {
		header = append(header, subjectStyle.Render(cell.Subject))
	}
	name := rec.Name
	if name == "" {
		name = "Anonymous"
	}
	header = append(header, nameStyle.Render(name), mutedStyle.Render(rec.PostedAt.Local().Format("2006-01-02 15:04")))
	if rec.Flags.Sticky {
		header = append(header, mutedStyle.Render("[sticky]"))
	}
	if rec.Flags.Closed {
		header = append(header, mutedStyle.Render("[closed]"))
	}
	if replies := replyCount(rec); replies > 0 {
		header = append(header, mutedStyle.Render(fmt.Sprintf("%d replies", replies)))
	}

	lines := []string{strings.Join(header, " ")}
	for _, img := range cell.Images {
		label := img.Filename + img.Extension
		if img.Hidden {
			label = "[spoiler image]"
		}
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("File: %s (%dx%d) %s", label, img.Width, img.Height, img.DisplayURL)))
	}
	if body := formatSpans(cell.Comment); body != "" {
		lines = append(lines, body)
	}

	style := cellStyle
	if cell.Highlighted {
		style = highlightStyle
	}
	if width > 4 {
		style = style.Width(width - 2)
	}
	return style.Render(strings.Join(lines, "\n"))
}

// replyCount is the thread reply counter for original posts and the number
// of quoting posts otherwise.
func replyCount(rec models.RawPostRecord) int {
	if rec.Descriptor.IsOP() {
		return max(rec.Replies, rec.QuotedBy)
	}
	return rec.QuotedBy
}

func formatSpans(spans []models.Span) string {
	var b strings.Builder
	for _, span := range spans {
		switch span.Kind {
		case models.SpanLineBreak:
			b.WriteString("\n")
		case models.SpanQuote:
			b.WriteString(quoteStyle.Render(span.Text))
		case models.SpanGreentext:
			b.WriteString(greentextStyle.Render(span.Text))
		case models.SpanSpoiler:
			b.WriteString(spoilerStyle.Render(span.Text))
		case models.SpanLink:
			b.WriteString(linkStyle.Render(span.Text))
		default:
			b.WriteString(span.Text)
		}
	}
	return b.String()
}

func formatPlaceholder(desc models.PostDescriptor) string {
	return cellStyle.Render(placeholderStyle.Render(fmt.Sprintf("No.%d …", desc.PostNo)))
}

// formatCells joins cells with blank lines.
func formatCells(cells []models.RenderReadyCell, width int) string {
	parts := make([]string, 0, len(cells))
	for _, cell := range cells {
		parts = append(parts, formatCell(cell, width))
	}
	return strings.Join(parts, "\n\n")
}
