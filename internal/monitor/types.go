package monitor

import "time"

// HostMetrics contains all collected metrics from a remote host. Sections
// missing from the probe output leave their fields at zero.
type HostMetrics struct {
	Timestamp time.Time
	CPU       CPUMetrics
	RAM       RAMMetrics
	Swap      SwapMetrics
	Disks     []DiskUsage
	Network   []NetworkInterface
	System    SystemInfo
}

// CPUMetrics contains CPU usage information.
type CPUMetrics struct {
	// Percent is busy time since boot for a single sample, or over the last
	// interval when computed by a Collector.
	Percent float64
	Cores   int
	LoadAvg [3]float64
}

// RAMMetrics contains memory usage information from `free -b`.
type RAMMetrics struct {
	TotalBytes   int64
	UsedBytes    int64
	FreeBytes    int64
	Shared       int64
	Cached       int64
	Available    int64
	UsagePercent float64
}

// SwapMetrics contains swap usage information from `free -b`.
type SwapMetrics struct {
	Total        int64
	Used         int64
	Free         int64
	UsagePercent float64
}

// DiskUsage is one mounted filesystem.
type DiskUsage struct {
	Filesystem   string
	Mount        string
	Total        int64
	Used         int64
	Available    int64
	UsagePercent float64
}

// NetworkInterface contains network I/O statistics for a single interface.
type NetworkInterface struct {
	Name       string
	BytesIn    int64
	BytesOut   int64
	PacketsIn  int64
	PacketsOut int64
}

// SystemInfo contains general system information.
type SystemInfo struct {
	Hostname string
	Uptime   time.Duration
}

func percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
