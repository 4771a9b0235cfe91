package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/rileyhilliard/sshmux/internal/util"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "sshmux",
	Short: "Manage SSH connections to many hosts",
	Long: `sshmux keeps SSH connections to your hosts open, reconnects them when
they drop, and runs commands, shells, file transfers, metrics and docker
controls over them.

Profiles come from ~/.config/sshmux/config.yaml and from ~/.ssh/config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			_ = os.Setenv(logger.DebugEnv, "1")
		}
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/sshmux/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug logs")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// exitError carries a remote exit status that the process should exit with.
// The remote command already printed its own output.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command and exits nonzero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var exit *exitError
	if stderrors.As(err, &exit) {
		os.Exit(exit.code)
	}

	if isUnknownCommandError(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if name := extractUnknownCommand(err); name != "" {
			if similar := util.SuggestSimilar(name, commandNames(), 3); len(similar) > 0 {
				fmt.Fprintf(os.Stderr, "\nDid you mean %s?\n", util.JoinOrNone(similar))
			}
		}
		fmt.Fprintln(os.Stderr, "\nRun 'sshmux --help' for usage.")
		os.Exit(1)
	}

	printError(err)
	os.Exit(exitCode(err))
}

// printError writes err to stderr. Structured errors already carry their
// own layout and trailing newline.
func printError(err error) {
	msg := err.Error()
	if !strings.HasSuffix(msg, "\n") {
		msg = ui.SymbolFail + " " + msg + "\n"
	}
	fmt.Fprint(os.Stderr, msg)
}

// exitCode maps err to a process exit status: a failed remote command keeps
// its own status, everything else exits 1.
func exitCode(err error) int {
	var exit *exitError
	if stderrors.As(err, &exit) {
		return exit.code
	}
	if f, ok := errors.AsCommandFailure(err); ok && f.ExitCode > 0 {
		return f.ExitCode
	}
	return 1
}

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the command name out of cobra's
// `unknown command "foo" for "sshmux"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

func commandNames() []string {
	var names []string
	for _, c := range rootCmd.Commands() {
		if c.Hidden {
			continue
		}
		names = append(names, c.Name())
		names = append(names, c.Aliases...)
	}
	return names
}
