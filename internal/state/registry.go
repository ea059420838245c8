// SPDX-License-Identifier: MIT

package state

import (
	"sort"
	"sync"
)

// Registry is the authoritative host → Connection map. It is a pure data
// structure: it never performs I/O and holds its lock only for map
// operations, never across a network wait.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Connection)}
}

// Insert stores the connection record, replacing any existing entry.
func (r *Registry) Insert(c Connection) {
	r.mu.Lock()
	r.conns[c.Host] = c
	r.mu.Unlock()
}

// Update applies fn to the record for host under the write lock.
// It returns false without calling fn when the host is unknown, so a
// stray late update can never re-insert a removed entry.
func (r *Registry) Update(host string, fn func(*Connection)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[host]
	if !ok {
		return false
	}
	fn(&c)
	c.Host = host // key is immutable
	r.conns[host] = c
	return true
}

// Remove deletes the record for host, reporting whether it existed.
func (r *Registry) Remove(host string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[host]; !ok {
		return false
	}
	delete(r.conns, host)
	return true
}

// Get returns a copy of the record for host.
func (r *Registry) Get(host string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[host]
	return c, ok
}

// List returns a snapshot copy of all records, ordered by host.
func (r *Registry) List() []Connection {
	r.mu.RLock()
	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CountByStatus returns how many records currently have the given status.
func (r *Registry) CountByStatus(s Status) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.conns {
		if c.Status == s {
			n++
		}
	}
	return n
}
