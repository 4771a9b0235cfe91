package monitor

import (
	"strings"
)

// Section markers in the batched probe output. A marker is a line that is
// exactly "=NAME=".
const (
	SectionCPU    = "CPU"
	SectionLoad   = "LOAD"
	SectionMem    = "MEM"
	SectionSwap   = "SWAP"
	SectionDisk   = "DISK"
	SectionNet    = "NET"
	SectionUptime = "UPTIME"
	SectionHost   = "HOST"
)

// Marker returns the marker line for a section name.
func Marker(name string) string {
	return "=" + name + "="
}

// metricsProbes lists each section with the shell probe that fills it, in
// output order. Probe failures are silenced so a missing tool only leaves its
// section empty.
var metricsProbes = []struct {
	section string
	probe   string
}{
	{SectionCPU, "grep '^cpu' /proc/stat"},
	{SectionLoad, "cat /proc/loadavg"},
	{SectionMem, "free -b | grep '^Mem:'"},
	{SectionSwap, "free -b | grep '^Swap:'"},
	{SectionDisk, "df -B1 -P -x tmpfs -x devtmpfs -x overlay -x squashfs | tail -n +2"},
	{SectionNet, "tail -n +3 /proc/net/dev"},
	{SectionUptime, "cat /proc/uptime"},
	{SectionHost, "hostname"},
}

// BuildMetricsCommand returns one batched command that collects every metric
// section in a single exec round-trip.
func BuildMetricsCommand() string {
	parts := make([]string, 0, len(metricsProbes))
	for _, p := range metricsProbes {
		parts = append(parts, "echo '"+Marker(p.section)+"'; "+p.probe+" 2>/dev/null")
	}
	// The last probe's status must not decide the command's exit code.
	return strings.Join(parts, "; ") + "; exit 0"
}

// ParseSections splits batched probe output into named sections. A section
// holds the lines after its marker up to the next marker or blank line; lines
// outside any section are ignored. A repeated marker keeps the first block.
func ParseSections(output string) map[string][]string {
	sections := make(map[string][]string)
	current := ""
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimRight(raw, "\r")
		if name, ok := markerName(line); ok {
			current = ""
			if _, seen := sections[name]; !seen {
				current = name
				sections[name] = []string{}
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			current = ""
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], line)
		}
	}
	return sections
}

func markerName(line string) (string, bool) {
	if len(line) < 3 || line[0] != '=' || line[len(line)-1] != '=' {
		return "", false
	}
	name := line[1 : len(line)-1]
	if name == "" || strings.ContainsAny(name, "= \t") {
		return "", false
	}
	return name, true
}
