package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/sshmux/internal/registry"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/rileyhilliard/sshmux/pkg/sshutil"
	"github.com/spf13/cobra"
)

var statusFollow bool

var statusCmd = &cobra.Command{
	Use:   "status [profile...]",
	Short: "Connect to profiles and report their status",
	Long: `Connect to each profile (default: every configured profile) and print
its status.

With --follow the connections stay open and every status change is printed
as it happens, including reconnect attempts after a drop. Press Ctrl+C to
stop.`,
	Example: `  sshmux status
  sshmux status web db --follow`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ids := args
		if len(ids) == 0 {
			for _, id := range sortedIDs(a.profiles) {
				if a.profiles[id].Source == sourceConfig {
					ids = append(ids, id)
				}
			}
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No profiles configured.")
			return nil
		}

		events, unsubscribe := a.reg.Subscribe()
		defer unsubscribe()

		failed := a.connectAll(cmd.Context(), ids)
		out := cmd.OutOrStdout()
		for _, id := range ids {
			fmt.Fprintln(out, ui.StatusLine(id, a.reg.Status(id).String(), statusDetail(a.reg.Transport(id), failed[id])))
			if verbose {
				fmt.Fprintln(out, "  "+ui.Muted(transitionTrail(a.reg.Transitions(id))))
			}
		}

		if !statusFollow {
			if len(failed) > 0 {
				return &exitError{code: 1}
			}
			return nil
		}

		fmt.Fprintln(out, ui.Muted("Watching for changes, Ctrl+C to stop."))
		drain(events)
		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				printEvent(out, ev)
			}
		}
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "keep connections open and print status changes")
	rootCmd.AddCommand(statusCmd)
}

// drain discards events already buffered, which the initial report covers.
func drain(events <-chan registry.StatusEvent) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

func printEvent(w io.Writer, ev registry.StatusEvent) {
	detail := ev.At.Format("15:04:05")
	if ev.Err != nil {
		detail += "  " + firstLine(ev.Err.Error())
	}
	fmt.Fprintln(w, ui.StatusLine(ev.ConnectionID, ev.Status.String(), detail))
}

// statusDetail describes a live transport, or the error for a failed one.
func statusDetail(t sshutil.Transport, err error) string {
	if err != nil {
		return firstLine(err.Error())
	}
	if t == nil {
		return ""
	}
	parts := []string{t.Address()}
	if c, ok := t.(*sshutil.Client); ok {
		parts = append(parts, statsDetail(c.Stats())...)
	}
	return strings.Join(parts, "  ")
}

func statsDetail(s sshutil.Stats) []string {
	var parts []string
	if s.ViaProxy {
		parts = append(parts, "via jump host")
	}
	if !s.ConnectedAt.IsZero() {
		parts = append(parts, "since "+humanize.Time(s.ConnectedAt))
	}
	if s.KeepalivesMissed > 0 {
		parts = append(parts, fmt.Sprintf("%d missed keepalives", s.KeepalivesMissed))
	}
	return parts
}

// transitionTrail renders the status history as "disconnected → connecting → connected".
func transitionTrail(ts []registry.Transition) string {
	if len(ts) == 0 {
		return "no transitions"
	}
	names := []string{ts[0].From.String()}
	for _, t := range ts {
		names = append(names, t.To.String())
	}
	return strings.Join(names, " → ") + fmt.Sprintf(" (%s)", ts[len(ts)-1].At.Format(time.TimeOnly))
}
