package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rpattn/dashlens/internal/repository"
	"github.com/rpattn/dashlens/pkg/pagekey"
)

// Registry is the arena of per-page stores: one independent state machine
// per page identity, created lazily on first access and kept for the process
// lifetime. Page state never crosses stores.
type Registry struct {
	repo repository.StateRepository
	opts []Option

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates an empty registry. opts apply to every store it
// creates.
func NewRegistry(repo repository.StateRepository, opts ...Option) *Registry {
	return &Registry{
		repo:   repo,
		opts:   opts,
		stores: make(map[string]*Store),
	}
}

// Store returns the page's store, creating and rehydrating it on first use.
func (r *Registry) Store(ctx context.Context, pageID string) *Store {
	id := pagekey.Sanitize(pageID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[id]; ok {
		return s
	}
	s := New(ctx, id, r.repo, r.opts...)
	r.stores[id] = s
	return s
}

// Peek returns the page's store only if it already exists.
func (r *Registry) Peek(pageID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[pagekey.Sanitize(pageID)]
	return s, ok
}

// Pages lists the ids of live stores, sorted.
func (r *Registry) Pages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Navigate routes a router pathname change: the target page's store is
// created on demand and every live store is told which page is now active,
// so the page being entered starts from fresh transient state while
// persisted filters survive.
func (r *Registry) Navigate(ctx context.Context, pathname string) *Store {
	target := r.Store(ctx, pathname)

	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.Unlock()

	for _, s := range stores {
		s.HandleNavigation(pathname)
	}
	return target
}

// Close shuts every store down, flushing pending writes.
func (r *Registry) Close() {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}
