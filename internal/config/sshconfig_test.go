package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSHConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestImportSSHConfig(t *testing.T) {
	t.Setenv("USER", "fallback")
	path := writeSSHConfig(t, `
Host bastion
    HostName bastion.example.com
    User jump
    Port 2200
    IdentityFile /keys/jump

Host web
    HostName 10.0.0.5
    User deploy

Host db
    HostName db.internal
    User admin
    IdentityFile /keys/db
    ProxyJump bastion

Host inline
    HostName 10.0.0.9
    ProxyJump ops@gw.example.com:2022

Host chained
    HostName 10.0.0.10
    ProxyJump a,b

Host *.corp
    User nobody
`)

	res, err := ImportSSHConfig(path)
	require.NoError(t, err)

	byID := map[string]Profile{}
	for _, p := range res.Profiles {
		byID[p.ID] = p
	}
	require.Len(t, byID, 4)

	web := byID["web"]
	assert.Equal(t, "10.0.0.5:22", web.Address())
	assert.Equal(t, "deploy", web.Username)
	assert.Equal(t, AuthPassword, web.AuthType)
	assert.Nil(t, web.Proxy)

	db := byID["db"]
	assert.Equal(t, AuthPrivateKey, db.AuthType)
	assert.Equal(t, "/keys/db", db.PrivateKeyPath)
	require.NotNil(t, db.Proxy)
	assert.Equal(t, "bastion.example.com:2200", db.Proxy.Address())
	assert.Equal(t, "jump", db.Proxy.Username)
	assert.Equal(t, AuthPrivateKey, db.Proxy.AuthType)

	inline := byID["inline"]
	assert.Equal(t, "fallback", inline.Username)
	require.NotNil(t, inline.Proxy)
	assert.Equal(t, "gw.example.com:2022", inline.Proxy.Address())
	assert.Equal(t, "ops", inline.Proxy.Username)

	assert.Contains(t, res.Skipped, "chained")
	assert.NotContains(t, byID, "*.corp")

	for _, p := range res.Profiles {
		assert.NoError(t, ValidateProfile(p), p.ID)
	}
}

func TestImportSSHConfig_MissingFile(t *testing.T) {
	res, err := ImportSSHConfig(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, res.Profiles)
}

func TestImportSSHConfig_StopsAtMatch(t *testing.T) {
	path := writeSSHConfig(t, `Host early
    HostName 1.2.3.4
    User u

Match host late
    User other

Host late
    HostName 5.6.7.8
`)

	res, err := ImportSSHConfig(path)
	require.NoError(t, err)
	require.Len(t, res.Profiles, 1)
	assert.Equal(t, "early", res.Profiles[0].ID)
	assert.Contains(t, res.Skipped, "Match")
}
