package monitor

import (
	"strings"
	"time"

	"github.com/rileyhilliard/sshmux/internal/monitor/parsers"
)

// ParseMetrics converts the output of BuildMetricsCommand into HostMetrics.
// It never fails: missing sections stay zero and malformed lines are skipped.
// CPU percent is computed from a single sample (busy time since boot).
func ParseMetrics(output string) HostMetrics {
	m, _ := parseMetrics(output)
	if m.cpuOK {
		m.metrics.CPU.Percent = percent(m.jiffies.Busy(), m.jiffies.Total)
	}
	return m.metrics
}

type parsed struct {
	metrics HostMetrics
	jiffies parsers.Jiffies
	cpuOK   bool
}

// parseMetrics parses everything and reports how many lines were skipped.
func parseMetrics(output string) (parsed, int) {
	sections := ParseSections(output)
	var p parsed
	skipped := 0
	m := &p.metrics
	m.Timestamp = time.Now()

	p.jiffies, m.CPU.Cores, p.cpuOK = parsers.ParseCPUStat(sections[SectionCPU])

	if lines := sections[SectionLoad]; len(lines) > 0 {
		m.CPU.LoadAvg = parsers.ParseLoadAvg(lines[0])
	}

	if row, ok := parsers.ParseFreeRow(sections[SectionMem], "Mem"); ok {
		m.RAM = RAMMetrics{
			TotalBytes: row.Col(0),
			UsedBytes:  row.Col(1),
			FreeBytes:  row.Col(2),
			Shared:     row.Col(3),
			Cached:     row.Col(4),
			Available:  row.Col(5),
		}
		m.RAM.UsagePercent = percent(m.RAM.UsedBytes, m.RAM.TotalBytes)
	}

	if row, ok := parsers.ParseFreeRow(sections[SectionSwap], "Swap"); ok {
		m.Swap = SwapMetrics{
			Total: row.Col(0),
			Used:  row.Col(1),
			Free:  row.Col(2),
		}
		m.Swap.UsagePercent = percent(m.Swap.Used, m.Swap.Total)
	}

	for _, line := range sections[SectionDisk] {
		d, ok := parsers.ParseDiskLine(line)
		if !ok {
			skipped++
			continue
		}
		m.Disks = append(m.Disks, DiskUsage{
			Filesystem:   d.Filesystem,
			Mount:        d.Mount,
			Total:        d.Total,
			Used:         d.Used,
			Available:    d.Available,
			UsagePercent: d.Percent,
		})
	}

	for _, line := range sections[SectionNet] {
		n, ok := parsers.ParseNetLine(line)
		if !ok {
			skipped++
			continue
		}
		m.Network = append(m.Network, NetworkInterface{
			Name:       n.Name,
			BytesIn:    n.BytesIn,
			BytesOut:   n.BytesOut,
			PacketsIn:  n.PacketsIn,
			PacketsOut: n.PacketsOut,
		})
	}

	if lines := sections[SectionUptime]; len(lines) > 0 {
		m.System.Uptime = parsers.ParseUptime(lines[0])
	}
	if lines := sections[SectionHost]; len(lines) > 0 {
		m.System.Hostname = strings.TrimSpace(lines[0])
	}

	return p, skipped
}
