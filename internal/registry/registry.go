// Package registry tracks the outbound sink for every authenticated
// session, keyed by username. It is the single shared mutable
// structure in the relay; every access goes through its lock.
package registry

import (
	"sort"
	"sync"
)

// Sink is the write side of one connection, used to deliver an
// encoded message to that peer. The registry holds non-owning
// references; the connection's own session retains ownership.
type Sink interface {
	Send(v any) error
	Close() error
}

// Entry pairs a username with its sink in a registry snapshot.
type Entry struct {
	Username string
	Sink     Sink
}

// Registry is a mutex-guarded username-to-sink map. Mutations are
// linearized; snapshots are copies and never observe a torn state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Sink
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]Sink),
	}
}

// Put registers or replaces the sink for a username.
func (r *Registry) Put(username string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[username] = sink
}

// PutIfAbsent registers the sink only when the username has no active
// session, reporting whether registration happened. The check and the
// insert are one atomic step, so two concurrent logins for the same
// name cannot both succeed.
func (r *Registry) PutIfAbsent(username string, sink Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[username]; exists {
		return false
	}
	r.sessions[username] = sink
	return true
}

// Remove unregisters a username. No-op if absent.
func (r *Registry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}

// Get returns the sink for a username.
func (r *Registry) Get(username string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sessions[username]
	return sink, ok
}

// Snapshot returns the registry contents at call time, sorted by
// username. The returned slice is a copy and stays valid while other
// goroutines keep mutating the registry.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.sessions))
	for username, sink := range r.sessions {
		entries = append(entries, Entry{Username: username, Sink: sink})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Username < entries[j].Username
	})
	return entries
}

// Usernames returns the current roster, sorted.
func (r *Registry) Usernames() []string {
	entries := r.Snapshot()
	users := make([]string, len(entries))
	for i, e := range entries {
		users[i] = e.Username
	}
	return users
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
