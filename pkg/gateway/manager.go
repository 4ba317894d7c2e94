// Package gateway runs the realtime connection lifecycle: handshake,
// registration in presence and the router, inbound event dispatch, and
// teardown with the offline broadcast.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"chatzalo/pkg/auth"
	"chatzalo/pkg/coordinator"
	"chatzalo/pkg/events"
	"chatzalo/pkg/fanout"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
	"chatzalo/pkg/presence"
	"chatzalo/pkg/ratelimit"
	"chatzalo/pkg/rooms"
	"chatzalo/pkg/social"
	"chatzalo/pkg/transport"
	"chatzalo/pkg/utils"
)

// Authenticator turns a session token into an identity.
type Authenticator interface {
	Authenticate(token string) (auth.Identity, error)
}

type Deps struct {
	Presence    *presence.Registry
	Rooms       *rooms.Tracker
	Router      *fanout.Router
	Auth        Authenticator
	Coordinator *coordinator.Coordinator
	Social      *social.Service
}

type Options struct {
	HandshakeTimeout time.Duration
	Transport        transport.Config
	EventRPS         float64
	EventBurst       int
	// AllowedOrigins are websocket origin patterns; empty accepts any origin.
	AllowedOrigins []string
}

type Manager struct {
	presence *presence.Registry
	rooms    *rooms.Tracker
	router   *fanout.Router
	auth     Authenticator
	coord    *coordinator.Coordinator
	social   *social.Service
	limiter  *ratelimit.Pool
	opts     Options
	handlers map[string]handlerFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewManager(d Deps, opts Options) *Manager {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.EventRPS <= 0 {
		opts.EventRPS = 20
	}
	if opts.EventBurst <= 0 {
		opts.EventBurst = 40
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		presence: d.Presence,
		rooms:    d.Rooms,
		router:   d.Router,
		auth:     d.Auth,
		coord:    d.Coordinator,
		social:   d.Social,
		limiter:  ratelimit.New("realtime", opts.EventRPS, opts.EventBurst),
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	m.handlers = m.routes()
	return m
}

// ServeHTTP upgrades the request. A token in ?token= or the Authorization
// header is verified before the upgrade and a bad one is refused with 401.
// Without one the client has HandshakeTimeout to send an authenticate frame.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	var ident *auth.Identity
	if token != "" {
		id, err := m.auth.Authenticate(token)
		if err != nil {
			m.rejected("invalid_token", r.RemoteAddr, err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ident = &id
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     m.opts.AllowedOrigins,
		InsecureSkipVerify: len(m.opts.AllowedOrigins) == 0,
	})
	if err != nil {
		logger.Warn("ws_accept_failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := &Session{}
	sess.conn = transport.NewConnection(m.ctx, ws, m.opts.Transport, m.dispatch(sess),
		func(*transport.Connection, error) { m.Close(sess) })
	if !m.track(sess) {
		sess.conn.CloseWith(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer m.wg.Done()

	if ident != nil {
		m.Open(sess, *ident)
	} else {
		timer := time.AfterFunc(m.opts.HandshakeTimeout, func() {
			if sess.State() == StateUnauthenticated {
				m.rejected("handshake_timeout", r.RemoteAddr, nil)
				sess.conn.CloseWith(transport.StatusUnauthorized, "authentication required")
			}
		})
		defer timer.Stop()
	}
	sess.conn.Run()
}

func (m *Manager) rejected(reason, peer string, err error) {
	metrics.HandshakeRejected.WithLabelValues(reason).Inc()
	logger.Warn("ws_handshake_rejected", "reason", reason, "peer", peer, "error", err)
}

func (m *Manager) track(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return false
	}
	m.sessions[s.ID()] = s
	m.wg.Add(1)
	return true
}

func (m *Manager) untrack(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()
}

// Open binds an identity to the session and makes it reachable. There is
// no online broadcast here; clients announce themselves with userStatus.
func (m *Manager) Open(s *Session, id auth.Identity) bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.authenticate(id) {
		return false
	}
	m.router.Attach(s.conn)
	m.presence.Register(id.Email, s.ID())
	metrics.Connections.Inc()
	metrics.OnlineUsers.Set(float64(m.presence.Len()))
	logger.Info("ws_authenticated", "conn", s.ID(), "user", id.UserID)
	return true
}

// Close tears the session down exactly once: it leaves the router, every
// room and presence, and when that was the user's last connection tells
// each friend the user went offline. It does not close the socket; call
// Disconnect for that.
func (m *Manager) Close(s *Session) {
	s.closeOnce.Do(func() {
		s.lifecycle.Lock()
		prev, id := s.markClosed()
		m.untrack(s)
		if prev != StateAuthenticated {
			s.lifecycle.Unlock()
			return
		}
		m.router.Detach(s.ID())
		m.rooms.RemoveConnectionFromAllRooms(s.ID())
		offline := m.presence.Unregister(id.Email, s.ID())
		s.lifecycle.Unlock()
		metrics.Connections.Dec()
		metrics.OnlineUsers.Set(float64(m.presence.Len()))
		if offline {
			m.limiter.Forget(id.Email)
			m.broadcastStatus(id.Email, false)
		}
	})
}

// Disconnect closes the socket, which in turn runs Close.
func (m *Manager) Disconnect(s *Session) {
	s.conn.Close(nil)
}

func (m *Manager) broadcastStatus(email string, online bool) []string {
	friends, err := m.social.FriendEmails(email)
	if err != nil {
		logger.Warn("friend_status_notify_failed", "online", online, "error", err)
		return nil
	}
	friends = utils.Dedupe(friends)
	m.router.EmitToUsers(friends, events.FriendStatusUpdate, events.StatusPayload{Email: email, Online: online}, "")
	return friends
}

// Sessions returns the number of open sockets, authenticated or not.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every socket and waits for their teardown or ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.cancel()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		go s.conn.CloseWith(websocket.StatusGoingAway, "server shutting down")
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	defer m.limiter.Close()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(ctx.Err(), errors.New("realtime sessions still open"))
	}
}
