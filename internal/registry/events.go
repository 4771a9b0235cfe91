package registry

import (
	"sync"
	"time"

	"github.com/rileyhilliard/sshmux/internal/logger"
)

// DefaultSubscriberBuffer is the channel capacity given to each subscriber.
const DefaultSubscriberBuffer = 64

// StatusEvent is published on every status transition.
type StatusEvent struct {
	ConnectionID string
	Status       Status
	// Err is the failure behind a Failed or unintentional Disconnected status.
	Err error
	At  time.Time
}

// NoticeKind says what a reconnection notice is about.
type NoticeKind string

const (
	NoticeReconnecting    NoticeKind = "reconnecting"
	NoticeReconnected     NoticeKind = "reconnected"
	NoticeReconnectFailed NoticeKind = "reconnect_failed"
)

// Notice is a user-facing message from the reconnection supervisor.
type Notice struct {
	ConnectionID string
	Kind         NoticeKind
	// Attempt is the 1-based attempt the notice refers to.
	Attempt int
	// Delay is the wait before the attempt, set on NoticeReconnecting.
	Delay time.Duration
	// Err is the last connect error, set on NoticeReconnectFailed.
	Err error
	At  time.Time
}

// NoticeListener receives supervisor notices. Listeners run on the
// supervisor goroutine and must not block.
type NoticeListener func(Notice)

// broadcaster fans status events out to subscribers. A subscriber whose
// buffer is full misses the event; the registry never blocks on it.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan StatusEvent
	next   int
	size   int
	closed bool
	log    logger.Logger
}

func newBroadcaster(size int, log logger.Logger) *broadcaster {
	if size <= 0 {
		size = DefaultSubscriberBuffer
	}
	return &broadcaster{subs: make(map[int]chan StatusEvent), size: size, log: log}
}

func (b *broadcaster) subscribe() (<-chan StatusEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan StatusEvent, b.size)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broadcaster) publish(ev StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("subscriber %d is full, dropped %s event for %s", id, ev.Status, logger.Sanitize(ev.ConnectionID))
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
