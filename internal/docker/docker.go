// Package docker lists and controls containers on a remote host by running
// the docker CLI over an established connection. Nothing talks to the daemon
// socket directly.
package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/internal/monitor"
	"github.com/rileyhilliard/sshmux/internal/util"
)

// Section names in the probe output.
const (
	SectionDocker = "DOCKER"
	SectionPS     = "PS"
	SectionStats  = "STATS"
)

// Missing is printed in the DOCKER section when the CLI is absent or the
// daemon does not answer.
const Missing = "MISSING"

// ShortIDLen is the length of a truncated container ID.
const ShortIDLen = 12

const (
	psFormat    = "{{.ID}}|{{.Names}}|{{.Image}}|{{.Status}}|{{.State}}"
	statsFormat = "{{.ID}}|{{.CPUPerc}}|{{.MemUsage}}|{{.MemPerc}}|{{.NetIO}}|{{.BlockIO}}|{{.PIDs}}"
)

// Container is one container from `docker ps -a`, with live stats attached
// when it is running. Stopped containers carry zero resource fields.
type Container struct {
	ID     string
	Name   string
	Image  string
	Status string // e.g. "Up 3 hours"
	State  string // e.g. "running", "exited"

	CPUPercent float64
	MemUsed    int64
	MemLimit   int64
	MemPercent float64
	NetRx      int64
	NetTx      int64
	BlockRead  int64
	BlockWrite int64
	PIDs       int
}

// ShortID returns the 12-character form of the container ID.
func (c Container) ShortID() string {
	return shortID(c.ID)
}

// Running reports whether the container state is "running".
func (c Container) Running() bool {
	return c.State == "running"
}

// BuildProbeCommand returns one batched command that checks the daemon,
// lists every container and samples live stats.
func BuildProbeCommand() string {
	return strings.Join([]string{
		"echo '" + monitor.Marker(SectionDocker) + "'",
		"docker version --format '{{.Server.Version}}' 2>/dev/null || echo " + Missing,
		"echo '" + monitor.Marker(SectionPS) + "'",
		"docker ps -a --no-trunc --format '" + psFormat + "' 2>/dev/null",
		"echo '" + monitor.Marker(SectionStats) + "'",
		"docker stats --no-stream --no-trunc --format '" + statsFormat + "' 2>/dev/null",
		"exit 0",
	}, "; ")
}

// ParseContainers turns the output of BuildProbeCommand into containers,
// joining stats to containers on the full or short ID. A missing CLI or an
// unreachable daemon yields an empty slice.
func ParseContainers(output string) []Container {
	containers, _ := parseContainers(output)
	return containers
}

func parseContainers(output string) ([]Container, int) {
	sections := monitor.ParseSections(output)
	containers := []Container{}

	probe := sections[SectionDocker]
	if len(probe) == 0 || strings.TrimSpace(probe[0]) == Missing {
		return containers, 0
	}

	skipped := 0
	stats := make(map[string]Container)
	for _, line := range sections[SectionStats] {
		s, ok := parseStatsLine(line)
		if !ok {
			skipped++
			continue
		}
		stats[s.ID] = s
		stats[shortID(s.ID)] = s
	}

	for _, line := range sections[SectionPS] {
		c, ok := parsePSLine(line)
		if !ok {
			skipped++
			continue
		}
		s, found := stats[c.ID]
		if !found {
			s, found = stats[shortID(c.ID)]
		}
		if found {
			c.CPUPercent = s.CPUPercent
			c.MemUsed, c.MemLimit = s.MemUsed, s.MemLimit
			c.MemPercent = s.MemPercent
			c.NetRx, c.NetTx = s.NetRx, s.NetTx
			c.BlockRead, c.BlockWrite = s.BlockRead, s.BlockWrite
			c.PIDs = s.PIDs
		}
		containers = append(containers, c)
	}
	return containers, skipped
}

func parsePSLine(line string) (Container, bool) {
	f := strings.Split(line, "|")
	if len(f) != 5 || strings.TrimSpace(f[0]) == "" {
		return Container{}, false
	}
	return Container{
		ID:     strings.TrimSpace(f[0]),
		Name:   strings.TrimSpace(f[1]),
		Image:  strings.TrimSpace(f[2]),
		Status: strings.TrimSpace(f[3]),
		State:  strings.TrimSpace(f[4]),
	}, true
}

func parseStatsLine(line string) (Container, bool) {
	f := strings.Split(line, "|")
	if len(f) != 7 || strings.TrimSpace(f[0]) == "" {
		return Container{}, false
	}
	c := Container{
		ID:         strings.TrimSpace(f[0]),
		CPUPercent: parsePercent(f[1]),
		MemPercent: parsePercent(f[3]),
	}
	c.MemUsed, c.MemLimit = util.SplitPair(f[2])
	c.NetRx, c.NetTx = util.SplitPair(f[4])
	c.BlockRead, c.BlockWrite = util.SplitPair(f[5])
	c.PIDs, _ = strconv.Atoi(strings.TrimSpace(f[6]))
	return c, true
}

func parsePercent(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0
	}
	return v
}

func shortID(id string) string {
	if len(id) > ShortIDLen {
		return id[:ShortIDLen]
	}
	return id
}

// Executor runs a command on a connected profile and returns its stdout.
// registry.Registry satisfies it.
type Executor interface {
	ExecCommand(ctx context.Context, id, command string) (string, error)
}

// Client runs docker commands on one profile.
type Client struct {
	exec    Executor
	profile string
	log     logger.Logger
}

// New returns a client for profile.
func New(exec Executor, profile string) *Client {
	return &Client{exec: exec, profile: profile, log: logger.Noop()}
}

// SetLogger sets the logger used for parse diagnostics.
func (c *Client) SetLogger(log logger.Logger) {
	c.log = log
}

// Containers lists every container with live stats. Only a transport-level
// failure is an error; a host without docker returns an empty slice.
func (c *Client) Containers(ctx context.Context) ([]Container, error) {
	output, err := c.exec.ExecCommand(ctx, c.profile, BuildProbeCommand())
	if err != nil {
		return nil, err
	}
	containers, skipped := parseContainers(output)
	if skipped > 0 {
		c.log.Debug("%s: skipped %d malformed docker line(s)", c.profile, skipped)
	}
	return containers, nil
}

// Start starts a container.
func (c *Client) Start(ctx context.Context, container string) error {
	return c.action(ctx, "start", container)
}

// Stop stops a container.
func (c *Client) Stop(ctx context.Context, container string) error {
	return c.action(ctx, "stop", container)
}

// Restart restarts a container.
func (c *Client) Restart(ctx context.Context, container string) error {
	return c.action(ctx, "restart", container)
}

// action runs `docker <verb> <container>`. The outcome is judged by whether
// the combined output mentions "error", not by the exit status: a failure
// that never says "error" reads as success.
func (c *Client) action(ctx context.Context, verb, container string) error {
	command := fmt.Sprintf("docker %s %s", verb, util.ShellQuote(container))
	out, err := c.exec.ExecCommand(ctx, c.profile, command)

	combined, exitCode := out, 0
	if err != nil {
		failure, ok := errors.AsCommandFailure(err)
		if !ok {
			return err
		}
		combined += "\n" + failure.Stderr
		exitCode = failure.ExitCode
	}

	if !strings.Contains(strings.ToLower(combined), "error") {
		c.log.Info("%s: docker %s %s", c.profile, verb, logger.Sanitize(container))
		return nil
	}

	msg := strings.TrimSpace(combined)
	c.log.Warn("%s: docker %s %s failed: %s", c.profile, verb, logger.Sanitize(container), logger.Sanitize(msg))
	cmdErr := errors.NewCommandError(command, exitCode, msg)
	cmdErr.Suggestion = "Check the container name with 'sshmux docker ps'."
	return cmdErr
}
