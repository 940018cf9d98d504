package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one live push channel belonging to one user. A user may hold
// several at once (tabs, devices); the registry fans out to all of them.
type Session struct {
	UserID      int
	Handle      string
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

// NewSession allocates a session with a buffered outbound queue.
func NewSession(userID int) *Session {
	return &Session{
		UserID:      userID,
		Handle:      uuid.NewString(),
		ConnectedAt: time.Now(),
		send:        make(chan []byte, 256),
	}
}

// TrySend queues a frame without blocking. A full queue means the peer is not
// draining; the caller treats that, and a closed session, the same as offline.
func (s *Session) TrySend(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// Registry is the in-memory map from user id to live sessions. It is hit
// concurrently by dispatches (lookups) and connect/disconnect events
// (register/unregister).
type Registry struct {
	mu       sync.RWMutex
	sessions map[int]map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int]map[string]*Session)}
}

func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byHandle, ok := r.sessions[s.UserID]
	if !ok {
		byHandle = make(map[string]*Session)
		r.sessions[s.UserID] = byHandle
	}
	byHandle[s.Handle] = s
}

func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byHandle, ok := r.sessions[s.UserID]
	if !ok {
		return
	}
	if _, ok := byHandle[s.Handle]; !ok {
		return
	}
	delete(byHandle, s.Handle)
	if len(byHandle) == 0 {
		delete(r.sessions, s.UserID)
	}
	s.closeSend()
}

// ChannelsFor returns a snapshot of the user's live sessions. Zero sessions
// simply means offline; the delivery record persists either way.
func (r *Registry) ChannelsFor(userID int) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byHandle := r.sessions[userID]
	if len(byHandle) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(byHandle))
	for _, s := range byHandle {
		out = append(out, s)
	}
	return out
}

func (r *Registry) IsOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID]) > 0
}
