package doctor

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/secret"
	"github.com/rileyhilliard/sshmux/internal/util"
)

// SecretStoreCheck verifies every stored secret decrypts with the key file.
type SecretStoreCheck struct {
	Config config.SecretsConfig
}

func (c *SecretStoreCheck) Name() string     { return "secret_store" }
func (c *SecretStoreCheck) Category() string { return CategorySecrets }

func (c *SecretStoreCheck) Run(context.Context) CheckResult {
	if c.Config.Backend != config.SecretsFile {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: "Memory backend, passwords are asked once per run",
		}
	}

	path := config.ExpandTilde(c.Config.Path)
	store := secret.NewFileStore(path, config.ExpandTilde(c.Config.KeyPath))
	keys, err := store.Keys()
	if err != nil {
		return resultFromError(c.Name(), StatusFail, err)
	}
	for _, key := range keys {
		if _, _, err := store.Get(key); err != nil {
			return resultFromError(c.Name(), StatusFail, err)
		}
	}

	n := len(keys)
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%d %s in %s", n, util.Pluralize(n, "secret", "secrets"), path),
	}
}
