package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/internal/monitor"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/spf13/cobra"
)

var (
	metricsWatch    bool
	metricsInterval time.Duration
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <profile>...",
	Short: "Show CPU, memory, disk and network usage of hosts",
	Long: `Collect one round of metrics from each host and print them.

With --watch the hosts are sampled every interval (default from the monitor
section of the config) and CPU usage reflects the time between samples.
Press q to quit.`,
	Example: `  sshmux metrics web db
  sshmux metrics web --watch --interval 5s`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		interval := metricsInterval
		if interval <= 0 {
			interval = a.cfg.Monitor.Interval
		}

		collector := monitor.NewCollector(a.reg)
		collector.SetLogger(logger.NewEnvLogger("[metrics]"))

		failed := a.connectAll(cmd.Context(), args)
		ids := make([]string, 0, len(args))
		for _, id := range args {
			if err, ok := failed[id]; ok {
				fmt.Fprintln(cmd.ErrOrStderr(), ui.StatusLine(id, "failed", firstLine(err.Error())))
				continue
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return fmt.Errorf("no host could be reached")
		}

		if metricsWatch {
			p := tea.NewProgram(newWatchModel(cmd.Context(), collector, ids, interval), tea.WithAltScreen())
			_, err := p.Run()
			return err
		}

		results := collector.Collect(cmd.Context(), ids)
		fmt.Fprint(cmd.OutOrStdout(), renderMetrics(results, collector.History(), interval))
		return nil
	},
}

func init() {
	metricsCmd.Flags().BoolVarP(&metricsWatch, "watch", "w", false, "refresh until interrupted")
	metricsCmd.Flags().DurationVar(&metricsInterval, "interval", 0, "refresh interval for --watch")
	rootCmd.AddCommand(metricsCmd)
}

const (
	barWidth   = 20
	sparkWidth = 20
)

// renderMetrics renders one block per result. Sparklines and network rates
// appear once the history holds at least two samples.
func renderMetrics(results []monitor.Result, h *monitor.History, interval time.Duration) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		if r.Err != nil {
			b.WriteString(ui.StatusLine(r.ID, "failed", firstLine(r.Err.Error())) + "\n")
			continue
		}
		b.WriteString(renderHost(r.ID, r.Metrics, h, interval))
	}
	return b.String()
}

func renderHost(id string, m *monitor.HostMetrics, h *monitor.History, interval time.Duration) string {
	var b strings.Builder

	title := ui.Bold(id)
	if m.System.Hostname != "" && m.System.Hostname != id {
		title += " " + ui.Muted("("+m.System.Hostname+")")
	}
	var info []string
	if m.System.Uptime > 0 {
		info = append(info, "up "+formatUptime(m.System.Uptime))
	}
	if m.CPU.Cores > 0 {
		info = append(info, fmt.Sprintf("%d cores", m.CPU.Cores))
	}
	info = append(info, fmt.Sprintf("load %.2f %.2f %.2f", m.CPU.LoadAvg[0], m.CPU.LoadAvg[1], m.CPU.LoadAvg[2]))
	fmt.Fprintf(&b, "%s  %s\n", title, ui.Muted(strings.Join(info, "  ")))

	spark := func(series []float64, latest float64) string {
		if len(series) < 2 {
			return ""
		}
		return "  " + ui.Colorize(monitor.Sparkline(series, sparkWidth), latest)
	}

	fmt.Fprintf(&b, "  %-6s %s %5.1f%%%s\n", "CPU", ui.UsageBar(m.CPU.Percent, barWidth), m.CPU.Percent,
		spark(h.CPU(id, monitor.DefaultHistorySize), m.CPU.Percent))
	fmt.Fprintf(&b, "  %-6s %s %5.1f%%  %s%s\n", "RAM", ui.UsageBar(m.RAM.UsagePercent, barWidth), m.RAM.UsagePercent,
		usedOfTotal(m.RAM.UsedBytes, m.RAM.TotalBytes), spark(h.RAM(id, monitor.DefaultHistorySize), m.RAM.UsagePercent))
	if m.Swap.Total > 0 {
		fmt.Fprintf(&b, "  %-6s %s %5.1f%%  %s\n", "Swap", ui.UsageBar(m.Swap.UsagePercent, barWidth), m.Swap.UsagePercent,
			usedOfTotal(m.Swap.Used, m.Swap.Total))
	}
	for _, d := range m.Disks {
		fmt.Fprintf(&b, "  %-6s %s %5.1f%%  %s  %s\n", "Disk", ui.UsageBar(d.UsagePercent, barWidth), d.UsagePercent,
			usedOfTotal(d.Used, d.Total), d.Mount)
	}

	if h.Count(id) >= 2 {
		in, out := h.NetworkRate(id, interval.Seconds())
		fmt.Fprintf(&b, "  %-6s ↓ %s/s  ↑ %s/s\n", "Net", humanize.IBytes(uint64(in)), humanize.IBytes(uint64(out)))
	} else {
		var rx, tx int64
		for _, n := range m.Network {
			if n.Name == "lo" {
				continue
			}
			rx += n.BytesIn
			tx += n.BytesOut
		}
		fmt.Fprintf(&b, "  %-6s ↓ %s  ↑ %s total\n", "Net", humanize.IBytes(uint64(max(rx, 0))), humanize.IBytes(uint64(max(tx, 0))))
	}
	return b.String()
}

func usedOfTotal(used, total int64) string {
	return fmt.Sprintf("%s / %s", humanize.IBytes(uint64(max(used, 0))), humanize.IBytes(uint64(max(total, 0))))
}

// formatUptime renders d as days, hours and minutes, dropping leading zero
// units: "3d 4h 5m", "2h 0m", "7m".
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
