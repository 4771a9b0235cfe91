package doctor

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// writeKey writes a fresh ed25519 key, encrypted when passphrase is set.
func writeKey(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	require.NoError(t, err)
	return writeFile(t, "id_ed25519", string(pem.EncodeToMemory(block)))
}

func TestKeyFileCheck(t *testing.T) {
	plain := writeKey(t, "")
	encrypted := writeKey(t, "hunter2")
	loose := writeKey(t, "")
	require.NoError(t, os.Chmod(loose, 0o644))
	notAKey := writeFile(t, "id_ed25519.pub", "ssh-ed25519 AAAA test\n")

	stored := secret.NewMemoryStore()
	require.NoError(t, stored.Store(secret.PassphraseKey("web"), "hunter2"))
	wrong := secret.NewMemoryStore()
	require.NoError(t, wrong.Store(secret.PassphraseKey("web"), "nope"))

	tests := []struct {
		name    string
		path    string
		secrets secret.Store
		status  CheckStatus
		message string
	}{
		{name: "plain key", path: plain, secrets: secret.NewMemoryStore(), status: StatusPass},
		{name: "encrypted with stored passphrase", path: encrypted, secrets: stored, status: StatusPass},
		{name: "encrypted without passphrase", path: encrypted, secrets: secret.NewMemoryStore(), status: StatusFail, message: "no passphrase is stored"},
		{name: "wrong passphrase", path: encrypted, secrets: wrong, status: StatusFail, message: "doesn't open"},
		{name: "loose permissions", path: loose, secrets: secret.NewMemoryStore(), status: StatusWarn, message: "(0644)"},
		{name: "public key", path: notAKey, secrets: secret.NewMemoryStore(), status: StatusFail, message: "not a private key"},
		{name: "missing", path: filepath.Join(t.TempDir(), "absent"), secrets: secret.NewMemoryStore(), status: StatusFail, message: "can't read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := &KeyFileCheck{Label: "web", Path: tt.path, PassphraseKey: secret.PassphraseKey("web"), Secrets: tt.secrets}
			res := check.Run(context.Background())
			assert.Equal(t, tt.status, res.Status, res.Message)
			assert.Contains(t, res.Message, tt.message)
			assert.Equal(t, "key_web", res.Name)
		})
	}
}

func TestNewKeyChecks(t *testing.T) {
	profiles := map[string]config.Profile{
		"web": {ID: "web", AuthType: config.AuthPassword},
		"db": {
			ID: "db", AuthType: config.AuthPrivateKey, PrivateKeyPath: "/keys/db",
			Proxy: &config.ProxyProfile{Host: "bastion", AuthType: config.AuthPrivateKey, PrivateKeyPath: "/keys/bastion"},
		},
	}

	checks := NewKeyChecks(profiles, secret.NewMemoryStore())
	require.Len(t, checks, 2)

	own := checks[0].(*KeyFileCheck)
	assert.Equal(t, "db", own.Label)
	assert.Equal(t, secret.PassphraseKey("db"), own.PassphraseKey)

	jump := checks[1].(*KeyFileCheck)
	assert.Equal(t, "db via jump host bastion", jump.Label)
	assert.Equal(t, "/keys/bastion", jump.Path)
	assert.Equal(t, secret.PassphraseKey("proxy_bastion"), jump.PassphraseKey)
}

func TestSecretStoreCheck(t *testing.T) {
	res := (&SecretStoreCheck{Config: config.SecretsConfig{Backend: config.SecretsMemory}}).Run(context.Background())
	assert.Equal(t, StatusPass, res.Status)

	dir := t.TempDir()
	cfg := config.SecretsConfig{
		Backend: config.SecretsFile,
		Path:    filepath.Join(dir, "secrets.yaml"),
		KeyPath: filepath.Join(dir, "secret.key"),
	}
	check := &SecretStoreCheck{Config: cfg}

	res = check.Run(context.Background())
	assert.Equal(t, StatusPass, res.Status)
	assert.Contains(t, res.Message, "0 secrets in")

	require.NoError(t, secret.NewFileStore(cfg.Path, cfg.KeyPath).Store(secret.PasswordKey("web"), "pw"))
	res = check.Run(context.Background())
	assert.Equal(t, StatusPass, res.Status)
	assert.Contains(t, res.Message, "1 secret in")

	require.NoError(t, os.Remove(cfg.KeyPath))
	res = check.Run(context.Background())
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Message, "secret key file")
}
