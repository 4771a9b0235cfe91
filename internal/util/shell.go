// Package util holds small helpers shared by the CLI and the remote probes.
package util

import "strings"

// ShellQuote wraps s in single quotes for a POSIX shell, so the remote side
// sees it as one literal word.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
