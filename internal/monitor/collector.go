package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/internal/monitor/parsers"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many hosts are probed at once.
const DefaultConcurrency = 8

// Executor runs a command on a connected profile and returns its stdout.
// registry.Registry satisfies it.
type Executor interface {
	ExecCommand(ctx context.Context, id, command string) (string, error)
}

// Result is the outcome of one collection for one profile.
type Result struct {
	ID      string
	Metrics *HostMetrics // nil when Err is set
	Err     error
	Latency time.Duration
}

// Collector gathers metrics from connected profiles. It remembers the last
// CPU counters per profile so that CPU percent reflects the interval between
// two collections rather than the time since boot.
type Collector struct {
	exec        Executor
	timeout     time.Duration
	concurrency int
	history     *History
	log         logger.Logger

	mu          sync.Mutex
	prevJiffies map[string]parsers.Jiffies
}

// NewCollector creates a collector that runs probes through exec.
func NewCollector(exec Executor) *Collector {
	return &Collector{
		exec:        exec,
		timeout:     30 * time.Second,
		concurrency: DefaultConcurrency,
		history:     NewHistory(DefaultHistorySize),
		log:         logger.Noop(),
		prevJiffies: make(map[string]parsers.Jiffies),
	}
}

// SetTimeout sets the per-profile collection timeout.
func (c *Collector) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SetConcurrency sets how many profiles are probed at once.
func (c *Collector) SetConcurrency(n int) {
	if n > 0 {
		c.concurrency = n
	}
}

// SetLogger sets the logger used for parse diagnostics.
func (c *Collector) SetLogger(log logger.Logger) {
	c.log = log
}

// History returns the samples recorded by previous collections.
func (c *Collector) History() *History {
	return c.history
}

// CollectOne probes a single profile.
func (c *Collector) CollectOne(ctx context.Context, id string) (*HostMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.exec.ExecCommand(ctx, id, BuildMetricsCommand())
	if err != nil {
		return nil, err
	}

	p, skipped := parseMetrics(output)
	if skipped > 0 {
		c.log.Debug("%s: skipped %d malformed metrics line(s)", id, skipped)
	}
	if p.cpuOK {
		p.metrics.CPU.Percent = c.cpuPercent(id, p.jiffies)
	}

	m := p.metrics
	c.history.Push(id, &m)
	return &m, nil
}

// Collect probes every profile in ids concurrently. Results come back in the
// order of ids; a failing profile reports its error without affecting the rest.
func (c *Collector) Collect(ctx context.Context, ids []string) []Result {
	results := make([]Result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			start := time.Now()
			m, err := c.CollectOne(gctx, id)
			results[i] = Result{ID: id, Metrics: m, Err: err, Latency: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Watch collects ids every interval and hands each round to fn until ctx is
// done. The first round runs immediately.
func (c *Collector) Watch(ctx context.Context, ids []string, interval time.Duration, fn func([]Result)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn(c.Collect(ctx, ids))
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Forget drops the stored CPU counters and history for id.
func (c *Collector) Forget(id string) {
	c.mu.Lock()
	delete(c.prevJiffies, id)
	c.mu.Unlock()
	c.history.Clear(id)
}

// cpuPercent uses the delta against the previous sample when there is one,
// falling back to the since-boot ratio on the first sample or after a
// counter reset.
func (c *Collector) cpuPercent(id string, cur parsers.Jiffies) float64 {
	c.mu.Lock()
	prev, ok := c.prevJiffies[id]
	c.prevJiffies[id] = cur
	c.mu.Unlock()

	if ok {
		total := cur.Total - prev.Total
		busy := cur.Busy() - prev.Busy()
		if total > 0 && busy >= 0 {
			return percent(busy, total)
		}
	}
	return percent(cur.Busy(), cur.Total)
}
