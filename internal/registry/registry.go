// SPDX-License-Identifier: MIT

// Package registry is the single source of truth for which rooms are
// currently live. It maps room names to sessions and nothing else; teardown
// logic lives in the lifecycle package.
package registry

import (
	"errors"
	"sort"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/parlorvoice/parlor/internal/metrics"
)

var (
	ErrDuplicateRoom = errors.New("registry: room already registered")
	ErrNotFound      = errors.New("registry: room not found")
)

// Registry is a concurrency-safe room -> session mapping. Create one at
// process start and inject it; there is deliberately no package-level
// instance.
type Registry struct {
	sessions cmap.ConcurrentMap[string, *Session]
}

func New() *Registry {
	return &Registry{sessions: cmap.New[*Session]()}
}

// Insert registers a session under its room name. Fails with
// ErrDuplicateRoom if the room is already present.
func (r *Registry) Insert(s *Session) error {
	if !r.sessions.SetIfAbsent(s.RoomName, s) {
		return ErrDuplicateRoom
	}
	metrics.SetSessionsActive(r.sessions.Count())
	return nil
}

// Get returns the session for a room, or ErrNotFound.
func (r *Registry) Get(roomName string) (*Session, error) {
	s, ok := r.sessions.Get(roomName)
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove drops a room from the registry. Removing an absent key is a no-op,
// not an error: duplicate cleanup triggers race here.
func (r *Registry) Remove(roomName string) {
	r.sessions.Remove(roomName)
	metrics.SetSessionsActive(r.sessions.Count())
}

// List returns a point-in-time snapshot of all sessions ordered by creation
// time. Concurrent inserts and removes are not blocked; the caller sees the
// map as it was at call time.
func (r *Registry) List() []*Session {
	items := r.sessions.Items()
	out := make([]*Session, 0, len(items))
	for _, s := range items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return r.sessions.Count()
}
