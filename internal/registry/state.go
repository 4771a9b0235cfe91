package registry

import (
	"sync"
	"time"
)

// Status is the lifecycle state of one connection ID.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusFailed
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transitionBufferSize is how many transitions are kept per ID.
const transitionBufferSize = 50

// Transition records a single status change.
type Transition struct {
	From   Status
	To     Status
	At     time.Time
	Reason string
}

type stateEntry struct {
	current     Status
	lastErr     error
	transitions [transitionBufferSize]Transition
	head        int
	count       int
}

func (e *stateEntry) record(t Transition) {
	e.transitions[e.head] = t
	e.head = (e.head + 1) % transitionBufferSize
	if e.count < transitionBufferSize {
		e.count++
	}
}

// history returns the transitions oldest first.
func (e *stateEntry) history() []Transition {
	if e.count == 0 {
		return nil
	}
	out := make([]Transition, e.count)
	if e.count < transitionBufferSize {
		copy(out, e.transitions[:e.count])
	} else {
		n := copy(out, e.transitions[e.head:])
		copy(out[n:], e.transitions[:e.head])
	}
	return out
}

// stateTracker holds the status, last error and transition history of
// every ID the registry has seen. Unknown IDs read as Disconnected.
type stateTracker struct {
	mu     sync.RWMutex
	states map[string]*stateEntry
}

func newStateTracker() *stateTracker {
	return &stateTracker{states: make(map[string]*stateEntry)}
}

// set moves id to status and records the transition. It returns false when
// the status did not change. A nil err leaves the last error in place unless
// the new status is Connected, which clears it.
func (st *stateTracker) set(id string, status Status, err error, reason string) (Transition, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	entry, ok := st.states[id]
	if !ok {
		entry = &stateEntry{current: StatusDisconnected}
		st.states[id] = entry
	}
	if err != nil {
		entry.lastErr = err
	} else if status == StatusConnected {
		entry.lastErr = nil
	}
	if entry.current == status {
		return Transition{}, false
	}

	t := Transition{From: entry.current, To: status, At: time.Now(), Reason: reason}
	entry.current = status
	entry.record(t)
	return t, true
}

func (st *stateTracker) status(id string) Status {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if entry, ok := st.states[id]; ok {
		return entry.current
	}
	return StatusDisconnected
}

func (st *stateTracker) lastError(id string) error {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if entry, ok := st.states[id]; ok {
		return entry.lastErr
	}
	return nil
}

func (st *stateTracker) transitions(id string) []Transition {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if entry, ok := st.states[id]; ok {
		return entry.history()
	}
	return nil
}
