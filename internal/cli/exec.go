package cli

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

var (
	execTimeout time.Duration
	execStdin   bool
)

var execCmd = &cobra.Command{
	Use:   "exec <profile> -- <command>",
	Short: "Run a command on a host",
	Long: `Run a command on a host and stream its output.

The process exits with the remote command's exit status. With --stdin the
local standard input is forwarded to the command until EOF, which makes it
usable in pipelines.`,
	Example: `  sshmux exec web -- uptime
  sshmux exec db --timeout 30s -- pg_isready
  tar cz ./site | sshmux exec web --stdin -- tar xz -C /srv`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if execTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, execTimeout)
			defer cancel()
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		id, command := args[0], strings.Join(args[1:], " ")
		if err := a.connect(ctx, id); err != nil {
			return err
		}

		var code int
		if execStdin {
			code, err = runWithStdin(a, id, command, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		} else {
			code, err = a.reg.Transport(id).ExecStream(ctx, command, cmd.OutOrStdout(), cmd.ErrOrStderr())
		}
		if err != nil {
			return err
		}
		logger.NewEnvLogger("[exec]").Debug("%s: %q exited %d", id, logger.Sanitize(command), code)
		if code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}

func init() {
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 0, "give up after this long (0 waits forever)")
	execCmd.Flags().BoolVar(&execStdin, "stdin", false, "forward local stdin to the command")
	rootCmd.AddCommand(execCmd)
}

// runWithStdin drives a bare exec session so stdin can be attached. The
// session only finishes once stdin reaches EOF.
func runWithStdin(a *app, id, command string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	session, err := a.reg.OpenExec(id)
	if err != nil {
		return -1, err
	}
	defer session.Close()

	session.Stdin = stdin
	session.Stdout = stdout
	session.Stderr = stderr

	err = session.Run(command)
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, errors.WrapWithCode(err, errors.ErrSSH,
		"Failed to execute command: "+command,
		"Connection may have dropped while the command was running.")
}
