// Package fanout resolves users and rooms to live connections and pushes
// encoded events to them. Delivery is best-effort: nothing is queued for
// offline users and nothing is retried.
package fanout

import (
	"sync"

	"chatzalo/pkg/events"
	"chatzalo/pkg/logger"
	"chatzalo/pkg/metrics"
	"chatzalo/pkg/presence"
	"chatzalo/pkg/rooms"
)

// Sender is a live connection's outbound side. Send must not block; it
// reports false when the frame was dropped.
type Sender interface {
	ID() string
	Send(frame []byte) bool
}

type Router struct {
	presence *presence.Registry
	rooms    *rooms.Tracker

	mu    sync.RWMutex
	conns map[string]Sender
}

func NewRouter(p *presence.Registry, r *rooms.Tracker) *Router {
	return &Router{presence: p, rooms: r, conns: make(map[string]Sender)}
}

// Attach makes s reachable by its id.
func (r *Router) Attach(s Sender) {
	r.mu.Lock()
	r.conns[s.ID()] = s
	r.mu.Unlock()
}

// Detach forgets connID.
func (r *Router) Detach(connID string) {
	r.mu.Lock()
	delete(r.conns, connID)
	r.mu.Unlock()
}

func (r *Router) lookup(connID string) (Sender, bool) {
	r.mu.RLock()
	s, ok := r.conns[connID]
	r.mu.RUnlock()
	return s, ok
}

// EmitToUser pushes event to every connection of userID and returns how
// many accepted it.
func (r *Router) EmitToUser(userID, event string, payload any) int {
	return r.EmitToUserExcept(userID, event, payload, "")
}

// EmitToUserExcept is EmitToUser skipping excludeConnID, used to sync a
// user's other devices.
func (r *Router) EmitToUserExcept(userID, event string, payload any, excludeConnID string) int {
	conns := r.presence.ConnectionsFor(userID)
	if len(conns) == 0 {
		return 0
	}
	frame, ok := encode(event, payload)
	if !ok {
		return 0
	}
	return r.push(conns, event, frame, excludeConnID)
}

// EmitToUsers pushes one event to several users, encoding it once.
func (r *Router) EmitToUsers(userIDs []string, event string, payload any, excludeConnID string) int {
	var frame []byte
	n := 0
	for _, uid := range userIDs {
		conns := r.presence.ConnectionsFor(uid)
		if len(conns) == 0 {
			continue
		}
		if frame == nil {
			var ok bool
			if frame, ok = encode(event, payload); !ok {
				return 0
			}
		}
		n += r.push(conns, event, frame, excludeConnID)
	}
	return n
}

// EmitToRoom pushes event to every connection subscribed to roomID except
// excludeConnID ("" excludes none).
func (r *Router) EmitToRoom(roomID, event string, payload any, excludeConnID string) int {
	conns := r.rooms.MembersOf(roomID)
	if len(conns) == 0 {
		return 0
	}
	frame, ok := encode(event, payload)
	if !ok {
		return 0
	}
	return r.push(conns, event, frame, excludeConnID)
}

// EmitToConnection pushes event to a single connection, typically an ack.
func (r *Router) EmitToConnection(connID, event string, payload any) bool {
	s, ok := r.lookup(connID)
	if !ok {
		return false
	}
	frame, ok := encode(event, payload)
	if !ok {
		return false
	}
	return deliver(s, event, frame)
}

// EvictFromRoom unsubscribes every connection of userID from roomID and
// returns how many were removed. Used when a user stops being a member.
func (r *Router) EvictFromRoom(roomID, userID string) int {
	n := 0
	for _, id := range r.presence.ConnectionsFor(userID) {
		if r.rooms.Leave(roomID, id) {
			n++
		}
	}
	return n
}

func (r *Router) push(conns []string, event string, frame []byte, exclude string) int {
	n := 0
	for _, id := range conns {
		if id == exclude {
			continue
		}
		s, ok := r.lookup(id)
		if !ok {
			continue
		}
		if deliver(s, event, frame) {
			n++
		}
	}
	return n
}

func deliver(s Sender, event string, frame []byte) bool {
	if s.Send(frame) {
		metrics.FramesDelivered.WithLabelValues(event).Inc()
		return true
	}
	metrics.FramesDropped.WithLabelValues(event).Inc()
	logger.Warn("frame_dropped", "conn", s.ID(), "event", event)
	return false
}

func encode(event string, payload any) ([]byte, bool) {
	frame, err := events.Encode(event, payload)
	if err != nil {
		logger.Error("event_encode_failed", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}
