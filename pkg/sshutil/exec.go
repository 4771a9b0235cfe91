package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/rileyhilliard/sshmux/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Exec runs a command on a fresh exec channel and returns the output.
// Returns stdout, stderr, exit code, and any error.
// Exit code is -1 if the command couldn't be executed at all.
// Cancelling ctx closes the channel and returns a timeout error.
func (c *Client) Exec(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode, err = c.ExecStream(ctx, cmd, &stdoutBuf, &stderrBuf)
	if err != nil {
		return nil, nil, -1, err
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitCode, nil
}

// ExecStream runs a command and streams output to the provided writers.
// Returns the exit code and any error.
// Exit code is -1 if the command couldn't be executed at all.
func (c *Client) ExecStream(ctx context.Context, cmd string, stdout, stderr io.Writer) (exitCode int, err error) {
	session, err := c.newSession()
	if err != nil {
		return -1, err
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		session.Close()
		<-errCh
		return -1, errors.WrapWithCode(ctx.Err(), errors.ErrTimeout,
			fmt.Sprintf("Command on %s didn't finish in time", c.address),
			"Try a longer timeout or check the command isn't waiting for input.")
	case err = <-errCh:
	}

	return exitStatus(err, cmd)
}

// exitStatus maps session.Run's error to an exit code. A command that ran
// and exited nonzero is not an error.
func exitStatus(err error, cmd string) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, errors.WrapWithCode(err, errors.ErrSSH,
		fmt.Sprintf("Failed to execute command: %s", cmd),
		"Connection may have dropped while the command was running.")
}
