package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// StatusBadge renders a connection status name ("connected", "connecting",
// "disconnected", "failed") as a coloured symbol and label.
func StatusBadge(status string) string {
	symbol, color := SymbolPending, ColorMuted
	switch status {
	case "connected":
		symbol, color = SymbolComplete, ColorSuccess
	case "connecting":
		symbol, color = SymbolProgress, ColorSecondary
	case "failed":
		symbol, color = SymbolFail, ColorError
	}
	return lipgloss.NewStyle().Foreground(color).Render(symbol + " " + status)
}

// StatusLine renders "<badge> <id>  <detail>" with the detail muted.
func StatusLine(id, status, detail string) string {
	line := fmt.Sprintf("%s %s", StatusBadge(status), Bold(id))
	if detail != "" {
		line += "  " + Muted(detail)
	}
	return line
}

// Success renders a green check followed by msg.
func Success(msg string) string {
	return lipgloss.NewStyle().Foreground(ColorSuccess).Render(SymbolSuccess) + " " + msg
}

// Warning renders a yellow warning sign followed by msg.
func Warning(msg string) string {
	return lipgloss.NewStyle().Foreground(ColorWarning).Render(SymbolWarning) + " " + msg
}
