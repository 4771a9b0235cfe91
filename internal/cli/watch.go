package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/sshmux/internal/monitor"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/rileyhilliard/sshmux/internal/util"
)

// spinnerFrames matches the progress symbol used in status badges.
var spinnerFrames = spinner.Spinner{
	Frames: []string{"◐", "◓", "◑", "◒"},
	FPS:    time.Second / 10,
}

// watchModel is the Bubble Tea model behind metrics --watch. One collection
// round runs at a time; the next is scheduled an interval after the last
// one finished.
type watchModel struct {
	ctx       context.Context
	collector *monitor.Collector
	ids       []string
	interval  time.Duration

	spinner    spinner.Model
	results    []monitor.Result
	lastUpdate time.Time
	collecting bool
	quitting   bool
}

// roundMsg carries the results of one collection round.
type roundMsg struct {
	results []monitor.Result
	at      time.Time
}

// watchTickMsg starts the next round.
type watchTickMsg time.Time

func newWatchModel(ctx context.Context, collector *monitor.Collector, ids []string, interval time.Duration) watchModel {
	sp := spinner.New()
	sp.Spinner = spinnerFrames
	sp.Style = lipgloss.NewStyle().Foreground(ui.ColorSecondary)

	return watchModel{
		ctx:        ctx,
		collector:  collector,
		ids:        ids,
		interval:   interval,
		spinner:    sp,
		collecting: true,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.collectCmd())
}

func (m watchModel) collectCmd() tea.Cmd {
	ctx, collector, ids := m.ctx, m.collector, m.ids
	return func() tea.Msg {
		return roundMsg{results: collector.Collect(ctx, ids), at: time.Now()}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case roundMsg:
		m.results = msg.results
		m.lastUpdate = msg.at
		m.collecting = false
		if m.ctx.Err() != nil {
			m.quitting = true
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg {
			return watchTickMsg(t)
		})

	case watchTickMsg:
		m.collecting = true
		return m, m.collectCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	header := ui.Bold("sshmux metrics") + "  " + ui.Muted(fmt.Sprintf("every %s, q to quit", m.interval))
	if m.results == nil {
		return fmt.Sprintf("%s\n\n%s collecting from %d %s...\n", header, m.spinner.View(), len(m.ids), util.Pluralize(len(m.ids), "host", "hosts"))
	}

	status := ui.Muted("updated " + m.lastUpdate.Format("15:04:05"))
	if m.collecting {
		status = m.spinner.View() + " " + status
	}
	return fmt.Sprintf("%s\n\n%s\n%s\n", header, renderMetrics(m.results, m.collector.History(), m.interval), status)
}
