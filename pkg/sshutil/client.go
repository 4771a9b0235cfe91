package sshutil

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"golang.org/x/crypto/ssh"
)

// keepaliveRequest is the global request OpenSSH answers for liveness probes.
const keepaliveRequest = "keepalive@openssh.com"

var (
	// ErrClosed is the close reason when Close was called.
	ErrClosed = stderrors.New("transport closed")
	// ErrKeepaliveTimeout is the close reason after too many unanswered probes.
	ErrKeepaliveTimeout = stderrors.New("keep-alive probes went unanswered")
	// ErrProxyClosed is the close reason when the jump host connection died.
	ErrProxyClosed = stderrors.New("jump host connection closed")
)

// KeepaliveOptions controls liveness probing. A zero Interval disables it.
type KeepaliveOptions struct {
	Interval  time.Duration
	MaxMissed int
}

// Stats is a snapshot of a transport's health counters.
type Stats struct {
	ConnectedAt      time.Time
	KeepalivesOK     int64
	KeepalivesMissed int64
	ViaProxy         bool
}

// Client is an established SSH transport. Channel opens are serialized;
// I/O on open channels runs concurrently. If the client tunnels through a
// jump host it owns that connection: closing either side closes both.
type Client struct {
	conn    *ssh.Client
	proxy   *Client
	id      string
	address string
	log     logger.Logger

	openMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
	reasonMu  sync.Mutex
	reason    error

	connectedAt  time.Time
	probesOK     atomic.Int64
	probesMissed atomic.Int64
}

func newClient(conn *ssh.Client, id, address string, proxy *Client, ka KeepaliveOptions, log logger.Logger) *Client {
	if log == nil {
		log = logger.Noop()
	}
	c := &Client{
		conn:        conn,
		proxy:       proxy,
		id:          id,
		address:     address,
		log:         log,
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}

	go c.wait()
	if proxy != nil {
		go c.followProxy()
	}
	if ka.Interval > 0 && ka.MaxMissed > 0 {
		go c.keepalive(ka)
	}
	return c
}

// ID returns the profile ID this transport was established for.
func (c *Client) ID() string {
	return c.id
}

// Address returns the host:port of the final hop.
func (c *Client) Address() string {
	return c.address
}

// Done is closed once the transport is down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the transport went down, or nil while it is up.
func (c *Client) Err() error {
	select {
	case <-c.done:
	default:
		return nil
	}
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.reason
}

// Close tears the transport down. It is idempotent.
func (c *Client) Close() error {
	return c.closeWithReason(ErrClosed)
}

func (c *Client) closeWithReason(reason error) error {
	var err error
	c.closeOnce.Do(func() {
		c.setReason(reason)
		err = c.conn.Close()
		if err != nil && stderrors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

func (c *Client) setReason(reason error) {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	if c.reason == nil {
		c.reason = reason
	}
}

// wait blocks until the underlying connection ends and fires Done.
func (c *Client) wait() {
	err := c.conn.Wait()
	if err == nil {
		err = ErrClosed
	}
	c.setReason(err)
	c.doneOnce.Do(func() { close(c.done) })
	if c.proxy != nil {
		c.proxy.Close()
	}
}

func (c *Client) followProxy() {
	select {
	case <-c.proxy.Done():
		c.log.Debug("jump host for %s went away, closing", c.id)
		c.closeWithReason(ErrProxyClosed)
	case <-c.done:
	}
}

// keepalive probes the server every interval. A probe still unanswered at
// the next tick counts as missed, as does a failed reply. MaxMissed
// consecutive misses close the transport.
func (c *Client) keepalive(ka KeepaliveOptions) {
	ticker := time.NewTicker(ka.Interval)
	defer ticker.Stop()

	var pending chan error
	missed := 0
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		if pending != nil {
			select {
			case err := <-pending:
				pending = nil
				if err != nil {
					missed++
				} else {
					missed = 0
					c.probesOK.Add(1)
				}
			default:
				missed++
			}
			if missed > 0 {
				c.probesMissed.Add(1)
			}
		}

		if missed >= ka.MaxMissed {
			c.log.Warn("%s: %d keep-alive probes missed, closing transport", c.id, missed)
			c.closeWithReason(ErrKeepaliveTimeout)
			return
		}

		if pending == nil {
			pending = make(chan error, 1)
			go func(ch chan<- error) {
				_, _, err := c.conn.SendRequest(keepaliveRequest, true, nil)
				ch <- err
			}(pending)
		}
	}
}

// Stats returns a snapshot of the transport's health counters.
func (c *Client) Stats() Stats {
	return Stats{
		ConnectedAt:      c.connectedAt,
		KeepalivesOK:     c.probesOK.Load(),
		KeepalivesMissed: c.probesMissed.Load(),
		ViaProxy:         c.proxy != nil,
	}
}

// newSession opens an exec/shell channel. Opens on one transport are serialized.
func (c *Client) newSession() (*ssh.Session, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if err := c.Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrNotConnected,
			"Connection to "+c.address+" is closed",
			"Reconnect and try again.")
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to open a channel to "+c.address,
			"Connection may have been closed. Try reconnecting.")
	}
	return session, nil
}

// dialThrough opens a direct-tcpip channel to addr, used to tunnel a second
// SSH connection through this one.
func (c *Client) dialThrough(ctx context.Context, addr string) (net.Conn, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	return c.conn.DialContext(ctx, "tcp", addr)
}
