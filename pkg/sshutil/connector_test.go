package sshutil

import (
	"fmt"
	"testing"

	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestSuggestionForDialError(t *testing.T) {
	tests := []struct {
		errMsg   string
		contains string
	}{
		{"dial tcp 10.0.0.5:22: connect: connection refused", "Is SSH running"},
		{"connect: no route to host", "Can't route"},
		{"connect: network is unreachable", "Can't route"},
		{"dial tcp: i/o timeout", "timed out"},
		{"dial tcp: lookup nope: no such host", "doesn't resolve"},
		{"random error", "reachable"},
	}

	for _, tt := range tests {
		t.Run(tt.errMsg, func(t *testing.T) {
			assert.Contains(t, suggestionForDialError(fmt.Errorf("%s", tt.errMsg)), tt.contains)
		})
	}
}

func TestSuggestionForHandshakeError(t *testing.T) {
	tests := []struct {
		errMsg   string
		contains string
	}{
		{"ssh: handshake failed: knownhosts: key is unknown (host key)", "known_hosts"},
		{"ssh: handshake failed: EOF", "closed the connection"},
		{"read: connection reset by peer", "closed the connection"},
		{"random error", "SSH setup"},
	}

	for _, tt := range tests {
		t.Run(tt.errMsg, func(t *testing.T) {
			assert.Contains(t, suggestionForHandshakeError(fmt.Errorf("%s", tt.errMsg)), tt.contains)
		})
	}
}

func TestHandshakeError_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{
			name: "rejected credentials",
			err:  fmt.Errorf("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain"),
			code: errors.ErrAuth,
		},
		{
			name: "host key mismatch",
			err:  &HostKeyMismatchError{Hostname: "web:22", ReceivedType: "ssh-ed25519", KnownHosts: "/tmp/kh"},
			code: errors.ErrSSH,
		},
		{
			name: "protocol failure",
			err:  fmt.Errorf("ssh: handshake failed: EOF"),
			code: errors.ErrSSH,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handshakeError(tt.err, "web:22")
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestHostKeyMismatchError_Suggestion(t *testing.T) {
	err := &HostKeyMismatchError{
		Hostname:     "[10.0.0.5]:2222",
		ReceivedType: "ssh-ed25519",
		KnownHosts:   "/home/me/.ssh/known_hosts",
	}

	assert.Contains(t, err.Error(), "ssh-ed25519")
	s := err.Suggestion()
	assert.Contains(t, s, "Known types: unknown")
	assert.Contains(t, s, "ssh-keygen -R")
	assert.Contains(t, s, "/home/me/.ssh/known_hosts")
}

func TestOptionsFromConfig(t *testing.T) {
	opts := DefaultOptions()

	assert.Greater(t, opts.HandshakeTimeout.Seconds(), 0.0)
	assert.Greater(t, opts.KeepaliveInterval.Seconds(), 0.0)
	assert.Equal(t, 3, opts.KeepaliveMaxMissed)
	assert.False(t, opts.StrictHostKeyChecking)
}

func TestShellOptions_Defaults(t *testing.T) {
	o := ShellOptions{}.withDefaults()
	assert.Equal(t, "xterm-256color", o.Term)
	assert.Equal(t, 80, o.Width)
	assert.Equal(t, 24, o.Height)

	o = ShellOptions{Term: "vt100", Width: 132, Height: 50}.withDefaults()
	assert.Equal(t, ShellOptions{Term: "vt100", Width: 132, Height: 50}, o)
}
