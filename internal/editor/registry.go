package editor

import (
	"context"
	"sort"
	"sync"

	"github.com/hpungsan/sitesmith/internal/frame"
)

// Loader reads a frame snapshot.
type Loader interface {
	LoadFrame(ctx context.Context, id string) (*frame.Snapshot, error)
}

// Registry keeps one live session per frame for long-running servers.
type Registry struct {
	loader Loader
	deps   SessionDeps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry. Sessions it opens share deps.
func NewRegistry(loader Loader, deps SessionDeps) *Registry {
	return &Registry{loader: loader, deps: deps, sessions: map[string]*Session{}}
}

// Open returns the live session for frameID, loading it on first use.
func (r *Registry) Open(ctx context.Context, frameID string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[frameID]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	snap, err := r.loader.LoadFrame(ctx, frameID)
	if err != nil {
		return nil, err
	}
	s, err := NewSession(r.deps, snap)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[frameID]; ok {
		// Lost a race with another Open.
		s.Close()
		return existing, nil
	}
	r.sessions[frameID] = s
	return s, nil
}

// Get returns the live session for frameID without loading it.
func (r *Registry) Get(frameID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[frameID]
	return s, ok
}

// IDs lists the frames with a live session.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close ends the session for frameID, if any.
func (r *Registry) Close(frameID string) {
	r.mu.Lock()
	s, ok := r.sessions[frameID]
	delete(r.sessions, frameID)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll ends every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*Session{}
	r.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
