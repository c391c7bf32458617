package cli

import "github.com/charmbracelet/lipgloss"

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	Padding(1, 5).
	MarginBottom(1).
	Align(lipgloss.Center).
	Border(lipgloss.RoundedBorder())

// Classification badges, keyed by retry.Classification.String().
var classificationStyles = map[string]lipgloss.Style{
	"fatal":                  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F87")),
	"retriable_immediately":  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD75F")),
	"retriable_after_reauth": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FD7FF")),
}

func renderClassification(name string) string {
	if style, ok := classificationStyles[name]; ok {
		return style.Render(name)
	}
	return name
}
