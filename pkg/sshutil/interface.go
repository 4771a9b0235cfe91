package sshutil

import (
	"context"
	"io"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Transport is one established SSH connection that channels are multiplexed
// over. The real Client and the mock in pkg/sshutil/testing satisfy it.
type Transport interface {
	// Exec runs a command on a fresh exec channel and returns stdout, stderr,
	// and exit code. Exit code is -1 if the command couldn't be run at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error)

	// ExecStream runs a command and streams output to the provided writers.
	ExecStream(ctx context.Context, cmd string, stdout, stderr io.Writer) (exitCode int, err error)

	// OpenShell opens an interactive shell channel with a PTY.
	OpenShell(opts ShellOptions) (*Shell, error)

	// OpenExec opens a bare session for callers that drive exec themselves.
	OpenExec() (*ssh.Session, error)

	// OpenSFTP starts the sftp subsystem on a new channel.
	OpenSFTP() (*sftp.Client, error)

	// Done is closed once the transport is down, for whatever reason.
	Done() <-chan struct{}

	// Err reports why the transport went down. It returns nil while Done is open.
	Err() error

	// Close tears the transport down. It is idempotent.
	Close() error

	// Address returns the host:port of the final hop.
	Address() string
}

var _ Transport = (*Client)(nil)
