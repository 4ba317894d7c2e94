// Package presence tracks which users have live connections.
package presence

import (
	"sort"
	"sync"
)

// Registry maps a user identity to the set of its open connection ids. A
// user is present iff it has at least one connection.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[string]struct{})}
}

// Register adds connID under userID. first reports that the user had no
// connections before this call. Registering an existing pair is a no-op.
func (r *Registry) Register(userID, connID string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[userID] = conns
	}
	first = len(conns) == 0
	conns[connID] = struct{}{}
	return first
}

// Unregister removes connID from userID. offline reports that this removed
// the user's last connection. Unknown pairs are ignored.
func (r *Registry) Unregister(userID, connID string) (offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// ConnectionsFor returns a sorted copy of userID's connection ids; empty
// when the user is offline.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.users[userID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// FilterOnline returns the subset of userIDs that are online, in input order.
func (r *Registry) FilterOnline(userIDs []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if len(r.users[id]) > 0 {
			out = append(out, id)
		}
	}
	return out
}
