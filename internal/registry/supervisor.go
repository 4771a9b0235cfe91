package registry

import (
	"context"
	"time"

	"github.com/rileyhilliard/sshmux/internal/logger"
)

type supervisorRun struct {
	cancel context.CancelFunc
}

// backoff returns the wait before attempt n (1-based): base * 2^n.
func backoff(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// startSupervisor begins reconnecting id unless a supervisor for it is
// already running or the registry is closed.
func (r *Registry) startSupervisor(id string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	r.superMu.Lock()
	if _, running := r.supervisors[id]; running {
		r.superMu.Unlock()
		r.log.Debug("%s: reconnect already in progress", id)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &supervisorRun{cancel: cancel}
	r.supervisors[id] = run
	r.superMu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.clearSupervisor(id, run)
		r.supervise(ctx, id)
	}()
}

// clearSupervisor drops the guard for id if run still owns it.
func (r *Registry) clearSupervisor(id string, run *supervisorRun) {
	r.superMu.Lock()
	defer r.superMu.Unlock()
	if r.supervisors[id] == run {
		delete(r.supervisors, id)
	}
	run.cancel()
}

// cancelSupervisor stops the supervisor for id, if any, and clears its guard.
func (r *Registry) cancelSupervisor(id string) {
	r.superMu.Lock()
	defer r.superMu.Unlock()
	if run, ok := r.supervisors[id]; ok {
		run.cancel()
		delete(r.supervisors, id)
	}
}

func (r *Registry) cancelAllSupervisors() {
	r.superMu.Lock()
	defer r.superMu.Unlock()
	for id, run := range r.supervisors {
		run.cancel()
		delete(r.supervisors, id)
	}
}

// Reconnecting reports whether a supervisor is running for id.
func (r *Registry) Reconnecting(id string) bool {
	r.superMu.Lock()
	defer r.superMu.Unlock()
	_, ok := r.supervisors[id]
	return ok
}

// supervise retries Connect with the last profile for id. Cancellation is
// checked before each wait and again on waking, so a cancelled run never
// makes another attempt.
func (r *Registry) supervise(ctx context.Context, id string) {
	maxAttempts := r.opts.Reconnect.MaxAttempts
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			r.log.Debug("%s: reconnect cancelled", id)
			return
		}

		delay := backoff(r.opts.Reconnect.BaseDelay, attempt)
		r.log.Info("%s: reconnect attempt %d/%d in %s", id, attempt, maxAttempts, delay)
		r.notify(Notice{ConnectionID: id, Kind: NoticeReconnecting, Attempt: attempt, Delay: delay})

		if err := r.opts.Sleep(ctx, delay); err != nil || ctx.Err() != nil {
			r.log.Debug("%s: reconnect cancelled during backoff", id)
			return
		}

		p, ok := r.Profile(id)
		if !ok {
			return
		}

		_, err := r.Connect(ctx, p)
		if err == nil {
			r.log.Info("%s: reconnected after %d attempt(s)", id, attempt)
			r.notify(Notice{ConnectionID: id, Kind: NoticeReconnected, Attempt: attempt})
			return
		}
		if ctx.Err() != nil {
			r.log.Debug("%s: reconnect cancelled", id)
			return
		}
		lastErr = err
		r.log.Warn("%s: reconnect attempt %d/%d failed: %s", id, attempt, maxAttempts, logger.Sanitize(err.Error()))
	}

	r.log.Error("%s: gave up reconnecting after %d attempts", id, maxAttempts)
	r.notify(Notice{ConnectionID: id, Kind: NoticeReconnectFailed, Attempt: maxAttempts, Err: lastErr})
}
