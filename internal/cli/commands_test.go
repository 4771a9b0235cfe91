package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/docker"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/registry"
	"github.com/rileyhilliard/sshmux/internal/remotefs"
	"github.com/rileyhilliard/sshmux/internal/secret"
	"github.com/rileyhilliard/sshmux/pkg/sshutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfig points --config at a temp file for one test.
func useConfig(t *testing.T, content string) string {
	t.Helper()
	path := writeFile(t, "config.yaml", content)
	orig := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = orig })
	return path
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

const testConfig = `version: 1
ssh_config: /nonexistent/sshmux-test/ssh_config
secrets:
  backend: memory
profiles:
  web:
    host: 10.0.0.1
    username: deploy
    auth_type: password
  db:
    host: 10.0.0.2
    port: 2222
    username: admin
    auth_type: password
    proxy:
      host: bastion
      username: jump
      auth_type: password
`

func TestProfilesList(t *testing.T) {
	useConfig(t, testConfig)

	out, err := runCommand(t, profilesListCmd)
	require.NoError(t, err)

	assert.Contains(t, out, "deploy@10.0.0.1:22")
	assert.Contains(t, out, "admin@10.0.0.2:2222")
	assert.Contains(t, out, "jump@bastion:22")
	assert.Less(t, strings.Index(out, "db"), strings.Index(out, "web"))
}

func TestProfilesList_Empty(t *testing.T) {
	useConfig(t, "version: 1\nssh_config: /nonexistent/sshmux-test/ssh_config\n")

	out, err := runCommand(t, profilesListCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "No profiles configured.")
}

// withSaveFlags sets the profiles save flags for one test.
func withSaveFlags(t *testing.T, host, user, proxyHost string) {
	t.Helper()
	orig := []string{saveHost, saveUser, saveAuth, saveKey, saveProxyHost, saveProxyUser, saveProxyAuth}
	origPort, origProxyPort := savePort, saveProxyPort
	t.Cleanup(func() {
		saveHost, saveUser, saveAuth, saveKey = orig[0], orig[1], orig[2], orig[3]
		saveProxyHost, saveProxyUser, saveProxyAuth = orig[4], orig[5], orig[6]
		savePort, saveProxyPort = origPort, origProxyPort
	})
	saveHost, saveUser, saveAuth, saveKey = host, user, string(config.AuthPassword), ""
	saveProxyHost, saveProxyUser, saveProxyAuth = proxyHost, "jump", string(config.AuthPassword)
	savePort, saveProxyPort = 22, 22
}

func TestProfilesSaveAndRemove(t *testing.T) {
	path := useConfig(t, testConfig)
	withSaveFlags(t, "10.0.0.9", "ops", "gate")

	out, err := runCommand(t, profilesSaveCmd, "cache")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved profile cache")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Profiles, "cache")
	assert.Equal(t, "10.0.0.9", cfg.Profiles["cache"].Host)
	require.NotNil(t, cfg.Profiles["cache"].Proxy)
	assert.Equal(t, "gate", cfg.Profiles["cache"].Proxy.Host)
	assert.Contains(t, cfg.Profiles, "web", "other profiles are kept")

	_, err = runCommand(t, profilesRemoveCmd, "cache")
	require.NoError(t, err)
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.NotContains(t, cfg.Profiles, "cache")

	_, err = runCommand(t, profilesRemoveCmd, "cache")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestProfilesSave_Invalid(t *testing.T) {
	useConfig(t, testConfig)
	withSaveFlags(t, "10.0.0.9", "", "")

	_, err := runCommand(t, profilesSaveCmd, "broken")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestProfileRows(t *testing.T) {
	profiles := map[string]knownProfile{
		"web": {Profile: config.Profile{ID: "web", Host: "10.0.0.1", Port: 22, Username: "deploy", AuthType: config.AuthPassword}, Source: sourceConfig},
		"db": {Profile: config.Profile{
			ID: "db", Host: "10.0.0.2", Port: 2222, Username: "admin", AuthType: config.AuthPrivateKey,
			Proxy: &config.ProxyProfile{Host: "bastion", Port: 22, Username: "jump"},
		}, Source: sourceSSHConfig},
	}

	assert.Equal(t, [][]string{
		{"db", "admin@10.0.0.2:2222", "privateKey", "jump@bastion:22", "ssh_config"},
		{"web", "deploy@10.0.0.1:22", "password", "-", "config"},
	}, profileRows(profiles))
}

func TestSecretKeyFor(t *testing.T) {
	plain := config.Profile{ID: "web"}
	proxied := config.Profile{ID: "db", Proxy: &config.ProxyProfile{Host: "bastion"}}

	tests := []struct {
		name       string
		profile    config.Profile
		passphrase bool
		proxy      bool
		wantKey    string
		wantLabel  string
	}{
		{name: "password", profile: plain, wantKey: secret.PasswordKey("web"), wantLabel: "password for web"},
		{name: "passphrase", profile: plain, passphrase: true, wantKey: secret.PassphraseKey("web"), wantLabel: "key passphrase for web"},
		{name: "jump host", profile: proxied, proxy: true, wantKey: secret.ProxyPasswordKey("bastion"), wantLabel: "password for jump host bastion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, label, err := secretKeyFor(tt.profile, tt.passphrase, tt.proxy)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantLabel, label)
		})
	}

	_, _, err := secretKeyFor(plain, false, true)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestEntryRows(t *testing.T) {
	mod := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	entries := []remotefs.Entry{
		{Name: "logs", Mode: 0o40755, Size: 4096, ModTime: mod},
		{Name: "app.conf", Mode: 0o100644, Size: 1536, ModTime: mod},
		{Name: "empty", Mode: 0o100600},
	}

	assert.Equal(t, [][]string{
		{"drwxr-xr-x", "-", "2024-03-01 12:30", "logs/"},
		{"-rw-r--r--", "1.5 KiB", "2024-03-01 12:30", "app.conf"},
		{"-rw-------", "0 B", "-", "empty"},
	}, entryRows(entries))
}

func TestTransferSummary(t *testing.T) {
	assert.Equal(t, "Downloaded /etc/hosts to hosts (2.0 KiB)", transferSummary("Downloaded", "/etc/hosts", "hosts", 2048))
	assert.Equal(t, "Uploaded a to b (0 B)", transferSummary("Uploaded", "a", "b", 0))
}

func TestContainerRows(t *testing.T) {
	containers := []docker.Container{
		{
			ID: "abcdef1234567890", Name: "web", Image: "nginx:1.25", Status: "Up 3 hours", State: "running",
			CPUPercent: 12.5, MemUsed: 1610612736, MemLimit: 8589934592, NetRx: 1200, NetTx: 648, PIDs: 5,
		},
		{ID: "0123456789abcdef", Name: "old", Image: "busybox", Status: "Exited (0) 2 days ago", State: "exited"},
	}

	assert.Equal(t, [][]string{
		{"abcdef123456", "web", "nginx:1.25", "Up 3 hours", "12.5%", "1.5 GiB / 8.0 GiB", "1.2 kB / 648 B", "5"},
		{"0123456789ab", "old", "busybox", "Exited (0) 2 days ago", "-", "-", "-", "-"},
	}, containerRows(containers))
}

func TestStatusDetail(t *testing.T) {
	assert.Equal(t, "Connection 'web' is not connected", statusDetail(nil, errors.NewNotConnected("web")))
	assert.Equal(t, "", statusDetail(nil, nil))
}

func TestStatsDetail(t *testing.T) {
	assert.Equal(t, []string{"via jump host", "2 missed keepalives"},
		statsDetail(sshutil.Stats{ViaProxy: true, KeepalivesMissed: 2}))
	assert.Empty(t, statsDetail(sshutil.Stats{KeepalivesOK: 10}))
	assert.Equal(t, []string{"since 1 hour ago"}, statsDetail(sshutil.Stats{ConnectedAt: time.Now().Add(-time.Hour - time.Minute)}))
}

func TestTransitionTrail(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)
	trail := transitionTrail([]registry.Transition{
		{From: registry.StatusDisconnected, To: registry.StatusConnecting, At: at},
		{From: registry.StatusConnecting, To: registry.StatusConnected, At: at},
	})
	assert.Equal(t, "disconnected → connecting → connected (12:30:05)", trail)
	assert.Equal(t, "no transitions", transitionTrail(nil))
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)

	printEvent(&buf, registry.StatusEvent{ConnectionID: "web", Status: registry.StatusConnected, At: at})
	printEvent(&buf, registry.StatusEvent{
		ConnectionID: "db", Status: registry.StatusFailed, At: at,
		Err: errors.New(errors.ErrAuth, "Authentication failed for admin@10.0.0.2:22", ""),
	})

	assert.Equal(t,
		"● connected web  12:30:05\n"+
			"✗ failed db  12:30:05  Authentication failed for admin@10.0.0.2:22\n",
		buf.String())
}

func TestDrain(t *testing.T) {
	events := make(chan registry.StatusEvent, 3)
	events <- registry.StatusEvent{ConnectionID: "a"}
	events <- registry.StatusEvent{ConnectionID: "b"}

	drain(events)
	assert.Empty(t, events)
}
