package doctor

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rileyhilliard/sshmux/internal/config"
)

// DefaultProbeTimeout bounds the TCP dial plus the banner read.
const DefaultProbeTimeout = 5 * time.Second

// ReachabilityCheck dials the first hop of a profile (its jump host when it
// has one) and reads the SSH version banner. It never authenticates, so it
// doesn't prompt or touch the secret store.
type ReachabilityCheck struct {
	Profile config.Profile
	Timeout time.Duration
}

func (c *ReachabilityCheck) Name() string     { return "host_" + c.Profile.ID }
func (c *ReachabilityCheck) Category() string { return CategoryHosts }

func (c *ReachabilityCheck) Run(ctx context.Context) CheckResult {
	addr, via := c.Profile.Address(), ""
	if c.Profile.Proxy != nil {
		addr, via = c.Profile.Proxy.Address(), ", jump host"
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	banner, err := readBanner(ctx, addr)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: %s %s%s", c.Profile.ID, addr, probeReason(err), via),
			Suggestion: probeSuggestion(err),
		}
	}
	if !strings.HasPrefix(banner, "SSH-") {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%s: %s answered but is not an SSH server%s", c.Profile.ID, addr, via),
			Suggestion: "Check the port in the profile",
		}
	}

	return CheckResult{
		Name:   c.Name(),
		Status: StatusPass,
		Message: fmt.Sprintf("%s: %s reachable%s (%s, %s)",
			c.Profile.ID, addr, via, serverVersion(banner), time.Since(start).Round(time.Millisecond)),
	}
}

// NewHostsChecks creates a reachability check per profile, ordered by id.
func NewHostsChecks(profiles map[string]config.Profile, timeout time.Duration) []Check {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	checks := make([]Check, 0, len(ids))
	for _, id := range ids {
		checks = append(checks, &ReachabilityCheck{Profile: profiles[id], Timeout: timeout})
	}
	return checks
}

// readBanner connects to addr and returns the first line the server sends.
func readBanner(ctx context.Context, addr string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// serverVersion returns the software part of "SSH-2.0-OpenSSH_9.6p1 Ubuntu".
func serverVersion(banner string) string {
	parts := strings.SplitN(banner, "-", 3)
	if len(parts) < 3 {
		return banner
	}
	if f := strings.Fields(parts[2]); len(f) > 0 {
		return f[0]
	}
	return banner
}

func probeReason(err error) string {
	var netErr net.Error
	switch {
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.As(err, &netErr) && netErr.Timeout():
		return "timed out"
	case stderrors.Is(err, syscall.ECONNREFUSED):
		return "refused the connection"
	default:
		var dnsErr *net.DNSError
		if stderrors.As(err, &dnsErr) {
			return "could not be resolved"
		}
		return "is unreachable"
	}
}

func probeSuggestion(err error) string {
	switch probeReason(err) {
	case "timed out":
		return "Host may be offline or blocked by a firewall"
	case "refused the connection":
		return "SSH server may not be running on that port"
	case "could not be resolved":
		return "Check the host name in the profile"
	default:
		return "Check the network route to the host"
	}
}
