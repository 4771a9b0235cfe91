// Package testing provides test doubles for pkg/sshutil: a scripted mock
// transport and an in-process SSH server.
package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/sshmux/pkg/sshutil"
	"golang.org/x/crypto/ssh"
)

// ErrUnsupported is returned by MockTransport for channel types it can't fake.
var ErrUnsupported = errors.New("not supported by MockTransport")

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

type commandPattern struct {
	pattern string
	re      *regexp.Regexp
	resp    CommandResponse
}

// MockTransport simulates an established transport. Commands are answered
// from registered responses; anything unregistered exits 127.
type MockTransport struct {
	mu       sync.Mutex
	address  string
	commands []commandPattern
	calls    []string

	done      chan struct{}
	closeOnce sync.Once
	reason    error
}

var _ sshutil.Transport = (*MockTransport)(nil)

// NewMockTransport creates a live mock transport for address.
func NewMockTransport(address string) *MockTransport {
	return &MockTransport{
		address: address,
		done:    make(chan struct{}),
	}
}

// SetCommandResponse registers a canned response for a command pattern.
// The pattern can be an exact string or a regex pattern. Exact matches win;
// regex patterns are tried in registration order.
func (m *MockTransport) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()

	re, _ := regexp.Compile(pattern)
	for i := range m.commands {
		if m.commands[i].pattern == pattern {
			m.commands[i].resp = resp
			return
		}
	}
	m.commands = append(m.commands, commandPattern{pattern: pattern, re: re, resp: resp})
}

// Exec answers cmd from the registered responses.
func (m *MockTransport) Exec(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, -1, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isClosed() {
		return nil, nil, -1, errors.New("connection closed")
	}
	m.calls = append(m.calls, cmd)

	for _, c := range m.commands {
		if c.pattern == cmd {
			return c.resp.Stdout, c.resp.Stderr, c.resp.ExitCode, c.resp.Error
		}
	}
	for _, c := range m.commands {
		if c.re != nil && c.re.MatchString(cmd) {
			return c.resp.Stdout, c.resp.Stderr, c.resp.ExitCode, c.resp.Error
		}
	}
	return nil, []byte(fmt.Sprintf("sh: %s: command not found\n", cmd)), 127, nil
}

// ExecStream runs Exec and copies its output to the writers.
func (m *MockTransport) ExecStream(ctx context.Context, cmd string, stdout, stderr io.Writer) (int, error) {
	out, errOut, code, err := m.Exec(ctx, cmd)
	if err != nil {
		return code, err
	}
	if stdout != nil {
		io.Copy(stdout, bytes.NewReader(out))
	}
	if stderr != nil {
		io.Copy(stderr, bytes.NewReader(errOut))
	}
	return code, nil
}

func (m *MockTransport) OpenShell(opts sshutil.ShellOptions) (*sshutil.Shell, error) {
	return nil, ErrUnsupported
}

func (m *MockTransport) OpenExec() (*ssh.Session, error) {
	return nil, ErrUnsupported
}

func (m *MockTransport) OpenSFTP() (*sftp.Client, error) {
	return nil, ErrUnsupported
}

// Calls returns the commands executed so far.
func (m *MockTransport) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockTransport) Done() <-chan struct{} {
	return m.done
}

func (m *MockTransport) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isClosed() {
		return nil
	}
	return m.reason
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.Drop(sshutil.ErrClosed)
	return nil
}

// Drop simulates the transport going away with the given reason.
func (m *MockTransport) Drop(reason error) {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.reason = reason
		m.mu.Unlock()
		close(m.done)
	})
}

// IsClosed reports whether Close or Drop was called.
func (m *MockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed()
}

func (m *MockTransport) isClosed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *MockTransport) Address() string {
	return m.address
}
