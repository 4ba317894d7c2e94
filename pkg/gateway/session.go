package gateway

import (
	"sync"

	"chatzalo/pkg/auth"
	"chatzalo/pkg/transport"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// Session is one realtime connection and the identity bound to it.
type Session struct {
	conn *transport.Connection

	mu       sync.RWMutex
	state    State
	identity auth.Identity

	// lifecycle serializes Open's registration with Close's teardown so a
	// session is never left registered after it closed.
	lifecycle sync.Mutex
	closeOnce sync.Once
}

func (s *Session) ID() string { return s.conn.ID() }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Email() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.Email
}

// authenticate moves an unauthenticated session to authenticated.
func (s *Session) authenticate(id auth.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnauthenticated {
		return false
	}
	s.state = StateAuthenticated
	s.identity = id
	return true
}

func (s *Session) markClosed() (State, auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateClosed
	return prev, s.identity
}
