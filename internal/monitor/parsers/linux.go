// Package parsers holds the line-level parsers for Linux probe output. Every
// parser is tolerant: a malformed line reports ok=false and a non-numeric
// field becomes 0 rather than an error.
package parsers

import (
	"strconv"
	"strings"
	"time"
)

// Int parses s as a base-10 integer, returning 0 when it isn't one.
func Int(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Float parses s as a float, returning 0 when it isn't one. A trailing "%"
// is ignored.
func Float(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil {
		return 0
	}
	return f
}

// Jiffies are the counters of one /proc/stat cpu line.
type Jiffies struct {
	Total int64
	Idle  int64 // idle + iowait
}

// Busy returns the non-idle jiffies.
func (j Jiffies) Busy() int64 {
	return j.Total - j.Idle
}

// ParseCPUStat reads /proc/stat cpu lines. The aggregate "cpu " line gives
// the jiffies; each "cpuN" line counts one core.
func ParseCPUStat(lines []string) (j Jiffies, cores int, ok bool) {
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		if fields[0] != "cpu" {
			cores++
			continue
		}
		// cpu user nice system idle iowait irq softirq steal guest guest_nice
		// guest time is already counted in user and nice.
		if len(fields) < 5 {
			continue
		}
		values := fields[1:]
		if len(values) > 8 {
			values = values[:8]
		}
		for i, f := range values {
			v := Int(f)
			j.Total += v
			if i == 3 || i == 4 {
				j.Idle += v
			}
		}
		ok = true
	}
	return j, cores, ok
}

// ParseLoadAvg reads the first three fields of /proc/loadavg.
func ParseLoadAvg(line string) [3]float64 {
	var load [3]float64
	fields := strings.Fields(line)
	for i := 0; i < 3 && i < len(fields); i++ {
		load[i] = Float(fields[i])
	}
	return load
}

// FreeRow is one row of `free -b`: the label ("Mem:" or "Swap:") is dropped
// and the remaining columns are kept in order (total used free [shared
// buff/cache available]).
type FreeRow []int64

// Col returns column i, or 0 when the row is shorter.
func (r FreeRow) Col(i int) int64 {
	if i < 0 || i >= len(r) {
		return 0
	}
	return r[i]
}

// ParseFreeRow finds the row with the given label ("Mem" or "Swap").
func ParseFreeRow(lines []string, label string) (FreeRow, bool) {
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.TrimSuffix(fields[0], ":") != label {
			continue
		}
		row := make(FreeRow, 0, len(fields)-1)
		for _, f := range fields[1:] {
			row = append(row, Int(f))
		}
		return row, true
	}
	return nil, false
}

// DiskLine is one row of `df -B1 -P`.
type DiskLine struct {
	Filesystem string
	Total      int64
	Used       int64
	Available  int64
	Percent    float64
	Mount      string
}

// ParseDiskLine reads "fs 1K-blocks used avail use% mount". Header rows and
// short lines are rejected.
func ParseDiskLine(line string) (DiskLine, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 || fields[0] == "Filesystem" {
		return DiskLine{}, false
	}
	return DiskLine{
		Filesystem: fields[0],
		Total:      Int(fields[1]),
		Used:       Int(fields[2]),
		Available:  Int(fields[3]),
		Percent:    Float(fields[4]),
		Mount:      strings.Join(fields[5:], " "),
	}, true
}

// NetLine is one interface row of /proc/net/dev.
type NetLine struct {
	Name       string
	BytesIn    int64
	PacketsIn  int64
	BytesOut   int64
	PacketsOut int64
}

// ParseNetLine reads "iface: rx_bytes rx_packets ... tx_bytes tx_packets ...".
// Header rows have no colon-separated interface and are rejected.
func ParseNetLine(line string) (NetLine, bool) {
	name, rest, found := strings.Cut(line, ":")
	if !found {
		return NetLine{}, false
	}
	name = strings.TrimSpace(name)
	fields := strings.Fields(rest)
	// 8 receive columns followed by 8 transmit columns.
	if name == "" || len(fields) < 10 {
		return NetLine{}, false
	}
	return NetLine{
		Name:       name,
		BytesIn:    Int(fields[0]),
		PacketsIn:  Int(fields[1]),
		BytesOut:   Int(fields[8]),
		PacketsOut: Int(fields[9]),
	}, true
}

// ParseUptime reads the first field of /proc/uptime (seconds since boot).
func ParseUptime(line string) time.Duration {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}
	return time.Duration(Float(fields[0]) * float64(time.Second))
}
