package prompt

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// Form prompts with a masked huh input.
type Form struct{}

func (f *Form) Password(ctx context.Context, message string) (string, bool, error) {
	var value string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(message).
				EchoMode(huh.EchoModePassword).
				Value(&value),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
			return "", false, nil
		}
		return "", false, err
	}
	if strings.TrimSpace(value) == "" {
		return "", false, nil
	}
	return value, true, nil
}
