package registry

import (
	"context"
	"testing"
	"time"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/internal/secret"
	"github.com/rileyhilliard/sshmux/pkg/sshutil"
	sshtesting "github.com/rileyhilliard/sshmux/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OverSSH(t *testing.T) {
	srv, err := sshtesting.NewServer(sshtesting.ServerOptions{Passwords: map[string]string{"deploy": "pw"}})
	require.NoError(t, err)
	defer srv.Close()

	store := secret.NewMemoryStore()
	require.NoError(t, store.Store(secret.PasswordKey("web"), "pw"))
	connector := sshutil.NewConnector(store, nil, sshutil.Options{HandshakeTimeout: 5 * time.Second})
	connector.Logger = logger.Noop()

	sleeps := &delayRecorder{}
	r := New(connector, Options{Sleep: sleeps.sleep, Logger: logger.NewBufferLogger()})
	defer r.Close()
	notices := noticeChan(r)

	p := config.Profile{
		ID:       "web",
		Host:     srv.Host(),
		Port:     srv.Port(),
		Username: "deploy",
		AuthType: config.AuthPassword,
	}
	ctx := context.Background()

	_, err = r.Connect(ctx, p)
	require.NoError(t, err)

	out, err := r.ExecCommand(ctx, "web", "printf ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = r.ExecCommand(ctx, "web", "exit 3")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCommand))
	f, ok := errors.AsCommandFailure(err)
	require.True(t, ok)
	assert.Equal(t, 3, f.ExitCode)

	_, err = r.ExecCommand(ctx, "web", "echo denied >&2; exit 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")

	// The server vanishing is an unintentional drop.
	srv.DropConnections()
	waitNotice(t, notices, NoticeReconnected)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps.recorded())

	out, err = r.ExecCommand(ctx, "web", "printf again")
	require.NoError(t, err)
	assert.Equal(t, "again", out)

	// An intentional disconnect is final.
	require.NoError(t, r.Disconnect("web", true))
	_, err = r.ExecCommand(ctx, "web", "printf ok")
	assert.True(t, errors.IsCode(err, errors.ErrNotConnected))
	assert.Eventually(t, func() bool { return srv.ActiveConns() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Len(t, sleeps.recorded(), 1)
}

func TestRegistry_OpenSFTPAndShell(t *testing.T) {
	srv, err := sshtesting.NewServer(sshtesting.ServerOptions{Passwords: map[string]string{"deploy": "pw"}})
	require.NoError(t, err)
	defer srv.Close()

	store := secret.NewMemoryStore()
	require.NoError(t, store.Store(secret.PasswordKey("web"), "pw"))
	r := New(sshutil.NewConnector(store, nil, sshutil.Options{HandshakeTimeout: 5 * time.Second}),
		Options{Logger: logger.NewBufferLogger()})
	defer r.Close()

	_, err = r.Connect(context.Background(), config.Profile{
		ID: "web", Host: srv.Host(), Port: srv.Port(), Username: "deploy", AuthType: config.AuthPassword,
	})
	require.NoError(t, err)

	fs, err := r.OpenSFTP("web")
	require.NoError(t, err)
	defer fs.Close()
	_, err = fs.Getwd()
	require.NoError(t, err)

	sh, err := r.OpenShell("web", sshutil.ShellOptions{})
	require.NoError(t, err)
	defer sh.Close()
	assert.Eventually(t, func() bool { return len(srv.WindowSizes()) == 1 }, 5*time.Second, 10*time.Millisecond)

	session, err := r.OpenExec("web")
	require.NoError(t, err)
	out, err := session.Output("printf raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(out))
}
