package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pressbridge/pressbridge/internal/models"
)

// Theme holds the color scheme for CLI output.
type Theme struct {
	Info    lipgloss.Color
	Success lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Info:    lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Warn:    lipgloss.Color("#FFAF00"), // amber
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) infoStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Info)
}

func (t Theme) successStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Warn).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// renderStatus colors a health status word.
func (t Theme) renderStatus(status models.HealthStatus) string {
	switch status {
	case models.HealthHealthy:
		return t.successStyle().Render(string(status))
	case models.HealthDegraded:
		return t.warnStyle().Render(string(status))
	default:
		return t.errorStyle().Render(string(status))
	}
}
