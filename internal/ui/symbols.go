package ui

// Status symbols.
const (
	SymbolSuccess  = "✓"
	SymbolFail     = "✗"
	SymbolPending  = "○"
	SymbolProgress = "◐"
	SymbolComplete = "●"
	SymbolWarning  = "⚠"
)
