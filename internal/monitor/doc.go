// Package monitor collects host metrics over an established connection.
//
// One batched shell command (BuildMetricsCommand) prints every probe behind
// a "=NAME=" marker line, so a whole sample costs one exec round-trip:
//
//	=CPU=     /proc/stat cpu lines
//	=LOAD=    /proc/loadavg
//	=MEM=     free -b, Mem row
//	=SWAP=    free -b, Swap row
//	=DISK=    df -B1 -P rows
//	=NET=     /proc/net/dev interface rows
//	=UPTIME=  /proc/uptime
//	=HOST=    hostname
//
// ParseSections splits that output and ParseMetrics turns it into
// HostMetrics. Parsing never fails: a missing section leaves its fields at
// zero and a malformed line is skipped.
//
// Collector runs the probe through any Executor (the connection registry in
// practice), probes several profiles concurrently, derives CPU percent from
// the delta against the previous sample, and records a short History for
// sparklines.
package monitor
