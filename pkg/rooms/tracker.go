// Package rooms tracks which connections are subscribed to which group rooms.
package rooms

import (
	"sort"
	"sync"
)

// Tracker maps room ids to connection ids. It also keeps the reverse index
// so a closing connection leaves all its rooms without scanning every room.
type Tracker struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		rooms:  make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join subscribes connID to roomID. Idempotent.
func (t *Tracker) Join(roomID, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	add(t.rooms, roomID, connID)
	add(t.byConn, connID, roomID)
}

// Leave unsubscribes connID from roomID; empty rooms are removed. Reports
// whether connID was subscribed.
func (t *Tracker) Leave(roomID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	drop(t.byConn, connID, roomID)
	return drop(t.rooms, roomID, connID)
}

// MembersOf returns the sorted connection ids subscribed to roomID.
func (t *Tracker) MembersOf(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.rooms[roomID])
}

// RoomsOf returns the sorted room ids connID is subscribed to.
func (t *Tracker) RoomsOf(connID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.byConn[connID])
}

// RemoveConnectionFromAllRooms unsubscribes connID everywhere and returns the
// rooms it left.
func (t *Tracker) RemoveConnectionFromAllRooms(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	left := sortedKeys(t.byConn[connID])
	for _, roomID := range left {
		drop(t.rooms, roomID, connID)
	}
	delete(t.byConn, connID)
	return left
}

// Len returns the number of non-empty rooms.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

func add(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func drop(m map[string]map[string]struct{}, k, v string) bool {
	set, ok := m[k]
	if !ok {
		return false
	}
	if _, ok := set[v]; !ok {
		return false
	}
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
