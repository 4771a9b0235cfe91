// Package registry owns the live SSH transports, one per profile ID. It runs
// the status state machine, publishes status events, and hands dropped
// connections to a reconnection supervisor.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/pkg/sshutil"
	"golang.org/x/crypto/ssh"
)

// Connector establishes a transport for a profile. *sshutil.Connector
// satisfies it.
type Connector interface {
	Connect(ctx context.Context, p config.Profile) (sshutil.Transport, error)
}

// SleepFunc waits for d. It returns early with an error if ctx ends first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes a Registry. Zero values fall back to defaults.
type Options struct {
	// Reconnect bounds the supervisor. MaxAttempts defaults to 5 and
	// BaseDelay to 1s, so attempt n waits BaseDelay * 2^n.
	Reconnect config.ReconnectConfig

	// SubscriberBuffer is the channel capacity of each subscriber.
	SubscriberBuffer int

	// Sleep replaces the supervisor's backoff wait.
	Sleep SleepFunc

	Logger logger.Logger
}

type conn struct {
	transport sshutil.Transport
	profile   config.Profile
}

// Registry is the connection state machine. It is safe for concurrent use.
// Connect and Disconnect for one ID are serialized; reads are snapshots.
type Registry struct {
	connector Connector
	opts      Options
	log       logger.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu       sync.RWMutex
	conns    map[string]*conn
	profiles map[string]config.Profile
	closed   bool

	state  *stateTracker
	events *broadcaster

	superMu     sync.Mutex
	supervisors map[string]*supervisorRun

	noticeMu  sync.RWMutex
	listeners []NoticeListener

	wg sync.WaitGroup
}

// New returns an empty Registry that establishes transports with connector.
func New(connector Connector, opts Options) *Registry {
	if opts.Reconnect.MaxAttempts <= 0 {
		opts.Reconnect.MaxAttempts = config.DefaultConfig().Reconnect.MaxAttempts
	}
	if opts.Reconnect.BaseDelay <= 0 {
		opts.Reconnect.BaseDelay = config.DefaultConfig().Reconnect.BaseDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewEnvLogger("[registry]")
	}

	return &Registry{
		connector:   connector,
		opts:        opts,
		log:         log,
		locks:       make(map[string]*sync.Mutex),
		conns:       make(map[string]*conn),
		profiles:    make(map[string]config.Profile),
		state:       newStateTracker(),
		events:      newBroadcaster(opts.SubscriberBuffer, log),
		supervisors: make(map[string]*supervisorRun),
	}
}

func (r *Registry) lockFor(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Connect establishes a transport for p and makes it the live transport for
// p.ID. A transport already live for the ID is torn down first without
// triggering a reconnect. On failure the status becomes Failed and the
// connector's error is returned unchanged.
func (r *Registry) Connect(ctx context.Context, p config.Profile) (sshutil.Transport, error) {
	if p.ID == "" {
		return nil, errors.New(errors.ErrConfig, "Profile has no ID", "")
	}

	lock := r.lockFor(p.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New(errors.ErrNotConnected, "Connection registry is closed", "")
	}
	r.profiles[p.ID] = p
	old := r.conns[p.ID]
	delete(r.conns, p.ID)
	r.mu.Unlock()

	if old != nil {
		r.log.Debug("%s: replacing live transport", p.ID)
		old.transport.Close()
		r.setStatus(p.ID, StatusDisconnected, nil, "replaced by a new connect")
	}

	r.setStatus(p.ID, StatusConnecting, nil, "connect")

	t, err := r.connector.Connect(ctx, p)
	if err != nil {
		r.log.Debug("%s: connect failed: %s", p.ID, logger.Sanitize(err.Error()))
		r.setStatus(p.ID, StatusFailed, err, "connect failed")
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.Close()
		r.setStatus(p.ID, StatusDisconnected, nil, "registry closed")
		return nil, errors.New(errors.ErrNotConnected, "Connection registry is closed", "")
	}
	c := &conn{transport: t, profile: p}
	r.conns[p.ID] = c
	r.wg.Add(1)
	r.mu.Unlock()

	r.setStatus(p.ID, StatusConnected, nil, "connected")
	r.cancelSupervisor(p.ID)
	go r.watch(p.ID, c)

	r.log.Info("%s: connected to %s", p.ID, t.Address())
	return t, nil
}

// Disconnect closes the live transport for id. An intentional disconnect
// first stops any reconnection in progress so it can't bring the ID back.
// An unintentional one is treated like a dropped transport and starts the
// supervisor. An unintentional disconnect of an ID with no transport leaves
// its status alone, so Failed stays Failed until the next Connect.
func (r *Registry) Disconnect(id string, intentional bool) error {
	if intentional {
		r.cancelSupervisor(id)
	}

	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	c := r.conns[id]
	delete(r.conns, id)
	_, known := r.profiles[id]
	r.mu.Unlock()

	var closeErr error
	if c != nil {
		closeErr = c.transport.Close()
	}

	if c == nil && !intentional {
		return nil
	}
	if intentional {
		r.setStatus(id, StatusDisconnected, nil, "disconnected")
		return closeErr
	}

	r.setStatus(id, StatusDisconnected, sshutil.ErrClosed, "dropped")
	if known {
		r.startSupervisor(id)
	}
	return closeErr
}

// watch waits for the transport to go down. A transport that is still the
// live one for id when it closes was lost unintentionally.
func (r *Registry) watch(id string, c *conn) {
	defer r.wg.Done()
	<-c.transport.Done()

	lock := r.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	current := r.conns[id] == c && !r.closed
	if current {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if !current {
		return
	}

	reason := c.transport.Err()
	if reason == nil {
		reason = sshutil.ErrClosed
	}
	r.log.Warn("%s: transport to %s lost: %v", id, c.transport.Address(), reason)
	r.setStatus(id, StatusDisconnected, reason, "transport lost")
	r.startSupervisor(id)
}

func (r *Registry) setStatus(id string, status Status, err error, reason string) {
	t, changed := r.state.set(id, status, err, reason)
	if !changed {
		return
	}
	r.events.publish(StatusEvent{ConnectionID: id, Status: status, Err: err, At: t.At})
}

// Transport returns the live transport for id, or nil.
func (r *Registry) Transport(id string) sshutil.Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok {
		return c.transport
	}
	return nil
}

// Status returns the current status of id. Unknown IDs are Disconnected.
func (r *Registry) Status(id string) Status {
	return r.state.status(id)
}

// IsConnected reports whether id has a live transport.
func (r *Registry) IsConnected(id string) bool {
	return r.Transport(id) != nil
}

// LastError returns the most recent failure recorded for id.
func (r *Registry) LastError(id string) error {
	return r.state.lastError(id)
}

// Transitions returns up to the last 50 status transitions for id, oldest first.
func (r *Registry) Transitions(id string) []Transition {
	return r.state.transitions(id)
}

// Profile returns the last profile connected under id.
func (r *Registry) Profile(id string) (config.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	return p, ok
}

// IDs returns the IDs with a live transport.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// Subscribe returns a channel of status events and a function that ends the
// subscription and closes the channel. A subscriber that falls behind by
// more than its buffer misses events.
func (r *Registry) Subscribe() (<-chan StatusEvent, func()) {
	return r.events.subscribe()
}

// OnNotice registers a listener for reconnection notices.
func (r *Registry) OnNotice(l NoticeListener) {
	r.noticeMu.Lock()
	defer r.noticeMu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) notify(n Notice) {
	n.At = time.Now()
	r.noticeMu.RLock()
	listeners := make([]NoticeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.noticeMu.RUnlock()

	for _, l := range listeners {
		l(n)
	}
}

func (r *Registry) live(id string) (sshutil.Transport, error) {
	t := r.Transport(id)
	if t == nil {
		return nil, errors.NewNotConnected(id)
	}
	return t, nil
}

// ExecCommand runs command on one new exec channel and returns its stdout.
// A nonzero exit fails with a COMMAND error carrying stderr.
func (r *Registry) ExecCommand(ctx context.Context, id, command string) (string, error) {
	t, err := r.live(id)
	if err != nil {
		return "", err
	}

	stdout, stderr, code, err := t.Exec(ctx, command)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", errors.NewCommandError(command, code, string(stderr))
	}
	return string(stdout), nil
}

// OpenShell opens a shell channel on the live transport for id.
func (r *Registry) OpenShell(id string, opts sshutil.ShellOptions) (*sshutil.Shell, error) {
	t, err := r.live(id)
	if err != nil {
		return nil, err
	}
	return t.OpenShell(opts)
}

// OpenExec opens a bare exec session on the live transport for id.
func (r *Registry) OpenExec(id string) (*ssh.Session, error) {
	t, err := r.live(id)
	if err != nil {
		return nil, err
	}
	return t.OpenExec()
}

// OpenSFTP starts an SFTP client on the live transport for id.
func (r *Registry) OpenSFTP(id string) (*sftp.Client, error) {
	t, err := r.live(id)
	if err != nil {
		return nil, err
	}
	return t.OpenSFTP()
}

// Close disconnects every ID intentionally, stops all supervisors, and ends
// every subscription. The registry can't be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	r.cancelAllSupervisors()

	var firstErr error
	for _, id := range ids {
		if err := r.Disconnect(id, true); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", id, err)
		}
	}

	r.wg.Wait()
	r.events.close()
	return firstErr
}
