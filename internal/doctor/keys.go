package doctor

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sort"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/secret"
	"golang.org/x/crypto/ssh"
)

// KeyFileCheck verifies a private key can be read and decoded with what the
// secret store holds.
type KeyFileCheck struct {
	Label         string // e.g. "web" or "db via jump host bastion"
	Path          string
	PassphraseKey string
	Secrets       secret.Store
}

func (c *KeyFileCheck) Name() string     { return "key_" + c.Label }
func (c *KeyFileCheck) Category() string { return CategoryKeys }

func (c *KeyFileCheck) Run(context.Context) CheckResult {
	path := config.ExpandTilde(c.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: can't read %s", c.Label, path),
			Suggestion: "Check private_key_path in the profile",
		}
	}

	_, err = ssh.ParseRawPrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case stderrors.As(err, &missing):
		passphrase, ok, serr := c.Secrets.Get(c.PassphraseKey)
		if serr != nil {
			return resultFromError(c.Name(), StatusFail, serr)
		}
		if !ok {
			return CheckResult{
				Name:       c.Name(),
				Status:     StatusFail,
				Message:    fmt.Sprintf("%s: %s is encrypted and no passphrase is stored", c.Label, path),
				Suggestion: "Store it with: sshmux secret set --passphrase <profile>",
			}
		}
		if _, err := ssh.ParseRawPrivateKeyWithPassphrase(data, []byte(passphrase)); err != nil {
			return CheckResult{
				Name:       c.Name(),
				Status:     StatusFail,
				Message:    fmt.Sprintf("%s: stored passphrase doesn't open %s", c.Label, path),
				Suggestion: "Store it again with: sshmux secret set --passphrase <profile>",
			}
		}
	case err != nil:
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: %s is not a private key", c.Label, path),
			Suggestion: "Point private_key_path at the private half, not the .pub file",
		}
	}

	if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o077 != 0 {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%s: %s is readable by others (%04o)", c.Label, path, info.Mode().Perm()),
			Suggestion: "Fix: chmod 600 " + path,
		}
	}

	return CheckResult{Name: c.Name(), Status: StatusPass, Message: fmt.Sprintf("%s: %s", c.Label, path)}
}

// NewKeyChecks creates a check for every private key the profiles use,
// jump host keys included. Checks are ordered by profile id.
func NewKeyChecks(profiles map[string]config.Profile, secrets secret.Store) []Check {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var checks []Check
	for _, id := range ids {
		p := profiles[id]
		if p.AuthType == config.AuthPrivateKey {
			checks = append(checks, &KeyFileCheck{
				Label:         id,
				Path:          p.PrivateKeyPath,
				PassphraseKey: secret.PassphraseKey(id),
				Secrets:       secrets,
			})
		}
		if p.Proxy != nil && p.Proxy.AuthType == config.AuthPrivateKey {
			checks = append(checks, &KeyFileCheck{
				Label:         fmt.Sprintf("%s via jump host %s", id, p.Proxy.Host),
				Path:          p.Proxy.PrivateKeyPath,
				PassphraseKey: secret.PassphraseKey("proxy_" + p.Proxy.Host),
				Secrets:       secrets,
			})
		}
	}
	return checks
}
