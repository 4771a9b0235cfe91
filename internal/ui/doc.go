// Package ui renders the CLI's terminal output with Lip Gloss: connection
// status badges, usage bars, and tables. Colours are ANSI codes so output
// degrades cleanly on basic terminals; DisableColors switches to plain text
// for --no-color and for pipes.
package ui
