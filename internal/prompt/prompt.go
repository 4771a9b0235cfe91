// Package prompt asks the user for passwords when no stored secret exists.
package prompt

import (
	"context"
	"io"
	"os"

	"golang.org/x/term"
)

// Prompter asks for a secret. ok is false when the user cancels or no
// answer can be obtained; an empty answer is reported as ok=false too.
type Prompter interface {
	Password(ctx context.Context, message string) (value string, ok bool, err error)
}

// Func adapts a function to the Prompter interface.
type Func func(ctx context.Context, message string) (string, bool, error)

func (f Func) Password(ctx context.Context, message string) (string, bool, error) {
	return f(ctx, message)
}

// Static answers every prompt with the same value. An empty value behaves
// like a cancelled prompt.
type Static string

func (s Static) Password(ctx context.Context, message string) (string, bool, error) {
	if s == "" {
		return "", false, nil
	}
	return string(s), true, nil
}

// None never yields a password. Use it for non-interactive runs.
var None Prompter = Static("")

// Default picks the richest prompt the attached terminal supports: a huh
// form when both stdin and stdout are terminals, otherwise a line read from
// stdin.
func Default() Prompter {
	return ForTerminal(os.Stdin, os.Stdout)
}

// ForTerminal is Default for explicit streams.
func ForTerminal(in *os.File, out io.Writer) Prompter {
	outIsTTY := false
	if f, ok := out.(*os.File); ok {
		outIsTTY = term.IsTerminal(int(f.Fd()))
	}
	if term.IsTerminal(int(in.Fd())) && outIsTTY {
		return &Form{}
	}
	return &Term{In: in, Out: out}
}
