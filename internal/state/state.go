// Package state holds the daemon's in-memory state: the current idle
// snapshot and the table of permission requests awaiting a remote answer.
// Nothing here is persisted; pending requests die with the process.
package state

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrDuplicateRequest is returned by Insert for an ID already in the table.
var ErrDuplicateRequest = errors.New("request id already pending")

// Pending is a permission request that was posted to chat and is waiting
// for a button press, the user's local return, a peer disconnect, or a
// timeout.
type Pending struct {
	// ID is the daemon-assigned request identifier carried in chat
	// button values.
	ID string

	// ToolName and ToolInput echo the hook's request fields.
	ToolName  string
	ToolInput map[string]any

	// CreatedAt is when the request was accepted for forwarding.
	CreatedAt time.Time

	// Conn is the hook connection the response must be written to.
	Conn net.Conn

	// ChatChannel and ChatTimestamp identify the chat message so it can
	// be rewritten when the request resolves.
	ChatChannel   string
	ChatTimestamp string

	// Timer and CancelWatch are attached through Arm after the entry is
	// in the table. Both may be nil if resolution won the race first.
	Timer       *time.Timer
	CancelWatch context.CancelFunc
}

// Store is the daemon's shared state. All methods are safe for concurrent
// use; none of them perform I/O while holding the lock.
type Store struct {
	mu sync.RWMutex

	idle      bool
	idleSince time.Time

	pending map[string]*Pending
}

// NewStore creates a Store. The user counts as active until an idle
// backend reports otherwise.
func NewStore() *Store {
	return &Store{
		idleSince: time.Now(),
		pending:   make(map[string]*Pending),
	}
}

// IdleSnapshot is a point-in-time view of the idle state.
type IdleSnapshot struct {
	IsIdle   bool
	Since    time.Time
	Duration time.Duration
}

// SnapshotIdle returns the current idle state with the time spent in it.
func (s *Store) SnapshotIdle() IdleSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IdleSnapshot{
		IsIdle:   s.idle,
		Since:    s.idleSince,
		Duration: time.Since(s.idleSince),
	}
}

// SetIdle records a new idle state. It reports whether the state actually
// changed; repeated reports of the same state are no-ops.
func (s *Store) SetIdle(idle bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idle == idle {
		return false
	}
	s.idle = idle
	s.idleSince = time.Now()
	return true
}

// Insert adds a pending request to the table.
func (s *Store) Insert(p *Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, p.ID)
	}
	s.pending[p.ID] = p
	return nil
}

// Remove takes a pending request out of the table and returns it. At most
// one caller observes a given entry; later calls get nil. Every resolution
// path goes through Remove first, so each request resolves exactly once no
// matter how many event sources race for it.
func (s *Store) Remove(id string) *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pending[id]
	delete(s.pending, id)
	return p
}

// Arm attaches the timeout timer and the peer-watcher cancel to a pending
// entry. It reports false when the request already resolved, in which case
// the caller still owns both and must dispose of them itself.
func (s *Store) Arm(id string, timer *time.Timer, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[id]
	if !ok {
		return false
	}
	p.Timer = timer
	p.CancelWatch = cancel
	return true
}

// Drain removes and returns every pending request.
func (s *Store) Drain() []*Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}
	out := make([]*Pending, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p)
	}
	s.pending = make(map[string]*Pending)
	return out
}

// Len returns the number of requests awaiting resolution.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}
