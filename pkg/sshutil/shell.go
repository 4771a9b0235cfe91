package sshutil

import (
	"io"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ShellOptions sizes the PTY requested for a shell channel.
type ShellOptions struct {
	Term   string
	Width  int
	Height int
}

func (o ShellOptions) withDefaults() ShellOptions {
	if o.Term == "" {
		o.Term = "xterm-256color"
	}
	if o.Width <= 0 {
		o.Width = 80
	}
	if o.Height <= 0 {
		o.Height = 24
	}
	return o
}

// Shell is an interactive shell channel. Write to Stdin, read Stdout and
// Stderr. The shell is unusable once the owning transport closes.
type Shell struct {
	session *ssh.Session

	Stdin  io.WriteCloser
	Stdout io.Reader
	Stderr io.Reader
}

// OpenShell opens a shell channel with a PTY.
func (c *Client) OpenShell(opts ShellOptions) (*Shell, error) {
	opts = opts.withDefaults()

	session, err := c.newSession()
	if err != nil {
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(opts.Term, opts.Height, opts.Width, modes); err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to allocate PTY for shell",
			"The remote host may not support pseudo-terminals.")
	}

	sh := &Shell{session: session}
	if sh.Stdin, err = session.StdinPipe(); err == nil {
		if sh.Stdout, err = session.StdoutPipe(); err == nil {
			sh.Stderr, err = session.StderrPipe()
		}
	}
	if err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrSSH, "Failed to wire shell streams", "")
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to start shell",
			"Check if your user has shell access on the remote host.")
	}
	return sh, nil
}

// Resize tells the remote PTY about a new window size.
func (s *Shell) Resize(width, height int) error {
	return s.session.WindowChange(height, width)
}

// Wait blocks until the remote shell exits.
func (s *Shell) Wait() error {
	return s.session.Wait()
}

// Close closes the shell channel.
func (s *Shell) Close() error {
	return s.session.Close()
}

// OpenExec opens a bare session. The caller runs one command on it and closes it.
func (c *Client) OpenExec() (*ssh.Session, error) {
	return c.newSession()
}

// OpenSFTP starts the sftp subsystem on a new channel.
func (c *Client) OpenSFTP() (*sftp.Client, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if err := c.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrNotConnected,
			"Connection to "+c.address+" is closed",
			"Reconnect and try again.")
	}

	client, err := sftp.NewClient(c.conn)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to start SFTP on "+c.address,
			"Check the server has the sftp subsystem enabled.")
	}
	return client, nil
}
