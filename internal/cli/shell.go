package cli

import (
	stderrors "errors"
	"io"
	"os"

	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/pkg/sshutil"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

var shellCmd = &cobra.Command{
	Use:   "shell <profile>",
	Short: "Open an interactive shell on a host",
	Long: `Open an interactive login shell with a pseudo-terminal.

The local terminal switches to raw mode for the session and window size
changes are forwarded to the remote side. The process exits with the
shell's exit status.`,
	Example: `  sshmux shell web`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		id := args[0]
		if err := a.connect(cmd.Context(), id); err != nil {
			return err
		}
		return runShell(a, id)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(a *app, id string) error {
	fd := int(os.Stdin.Fd())
	interactive := term.IsTerminal(fd)

	opts := sshutil.ShellOptions{Term: os.Getenv("TERM")}
	if interactive {
		if w, h, err := term.GetSize(fd); err == nil {
			opts.Width, opts.Height = w, h
		}
	}

	sh, err := a.reg.OpenShell(id, opts)
	if err != nil {
		return err
	}
	defer sh.Close()

	if interactive {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer func() { _ = term.Restore(fd, state) }()

		stop := watchResize(fd, func(w, h int) {
			if err := sh.Resize(w, h); err != nil {
				logger.NewEnvLogger("[shell]").Debug("%s: resize: %v", id, err)
			}
		})
		defer stop()
	}

	go func() {
		_, _ = io.Copy(sh.Stdin, os.Stdin)
		_ = sh.Stdin.Close()
	}()
	go func() { _, _ = io.Copy(os.Stdout, sh.Stdout) }()
	go func() { _, _ = io.Copy(os.Stderr, sh.Stderr) }()

	err = sh.Wait()
	var exitErr *ssh.ExitError
	if stderrors.As(err, &exitErr) {
		return &exitError{code: exitErr.ExitStatus()}
	}
	return err
}
