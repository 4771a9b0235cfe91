package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Bar block characters.
const (
	BarFilled = '█'
	BarEmpty  = '░'
)

// ClampPercent clamps a percentage to the 0-100 range.
func ClampPercent(percent float64) float64 {
	return min(max(percent, 0), 100)
}

// BarString builds an unstyled bar of width cells for percent (0-100).
func BarString(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(ClampPercent(percent) / 100 * float64(width))
	return strings.Repeat(string(BarFilled), filled) + strings.Repeat(string(BarEmpty), width-filled)
}

// UsageBar renders a bar coloured by ThresholdColor.
func UsageBar(percent float64, width int) string {
	return lipgloss.NewStyle().Foreground(ThresholdColor(percent)).Render(BarString(percent, width))
}

// Colorize renders s in the threshold colour for percent. Useful for
// sparklines whose latest point is percent.
func Colorize(s string, percent float64) string {
	return lipgloss.NewStyle().Foreground(ThresholdColor(percent)).Render(s)
}
