// Package presence хранит, кто сейчас подключён, и рассылает список онлайн-пользователей.
package presence

import (
	"sort"
	"sync"

	"github.com/dmchat/internal/event"
)

// Conn — живое соединение одного пользователя. Send не блокирует:
// false означает, что событие не принято (соединение закрыто или перегружено).
type Conn interface {
	Send(ev event.Outgoing) bool
	Close()
}

// Registry maps a user to at most one live connection.
// Mutations and snapshots are serialised by mu; lookups share the read lock.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register stores c for userID and returns the handle it replaced, if any.
// The replaced handle is stale; the caller decides whether to close it.
func (r *Registry) Register(userID string, c Conn) Conn {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = c
	r.mu.Unlock()
	if prev == c {
		return nil
	}
	return prev
}

// Unregister removes userID. Returns false when nothing was registered.
func (r *Registry) Unregister(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[userID]; !ok {
		return false
	}
	delete(r.conns, userID)
	return true
}

// UnregisterConn removes userID only while c is still its current handle,
// so a late disconnect of a replaced connection keeps the new one registered.
func (r *Registry) UnregisterConn(userID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[userID]
	if !ok || cur != c {
		return false
	}
	delete(r.conns, userID)
	return true
}

func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[userID]
	r.mu.RUnlock()
	return c, ok
}

// Snapshot returns a sorted copy of the registered user IDs.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// entries returns the key set and the live handles captured under the same lock.
func (r *Registry) entries() ([]string, []Conn) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	conns := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		ids = append(ids, id)
		conns = append(conns, c)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids, conns
}

// Len — число зарегистрированных пользователей.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Drain empties the registry and returns every handle it held (shutdown).
func (r *Registry) Drain() []Conn {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]Conn)
	r.mu.Unlock()
	return conns
}
