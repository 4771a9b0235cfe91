package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table renders rows under headers with a rounded muted border and a bold
// header row.
func Table(headers []string, rows [][]string) string {
	style := func(row, _ int) lipgloss.Style {
		s := lipgloss.NewStyle().Padding(0, 1)
		if row == table.HeaderRow {
			return s.Bold(true).Foreground(ColorInfo)
		}
		return s
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		StyleFunc(style).
		Headers(headers...).
		Rows(rows...).
		Render()
}
