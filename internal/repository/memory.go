package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rpattn/dashlens/internal/domain"
)

// memoryStateRepository implements StateRepository in process memory. It
// backs the memory storage driver and tests; contents are lost on restart.
type memoryStateRepository struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStateRepository creates a new in-memory state repository.
func NewMemoryStateRepository() StateRepository {
	return &memoryStateRepository{items: make(map[string][]byte)}
}

func (r *memoryStateRepository) Load(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	payload, ok := r.items[key]
	if !ok {
		return nil, fmt.Errorf("page state %q: %w", key, ErrNotFound)
	}
	return append([]byte(nil), payload...), nil
}

func (r *memoryStateRepository) Save(_ context.Context, key string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = append([]byte(nil), payload...)
	return nil
}

func (r *memoryStateRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
	return nil
}

func (r *memoryStateRepository) Keys(_ context.Context, prefix string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := []string{}
	for key := range r.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// memoryCatalogRepository implements CatalogRepository in process memory.
type memoryCatalogRepository struct {
	mu        sync.RWMutex
	districts map[string]domain.District
}

// NewMemoryCatalogRepository creates a new in-memory catalog repository.
func NewMemoryCatalogRepository() CatalogRepository {
	return &memoryCatalogRepository{districts: make(map[string]domain.District)}
}

func (r *memoryCatalogRepository) ReplaceDistricts(_ context.Context, districts []domain.District) error {
	next := make(map[string]domain.District, len(districts))
	for _, d := range districts {
		next[d.Code] = d
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.districts = next
	return nil
}

func (r *memoryCatalogRepository) ListDistricts(_ context.Context) ([]domain.District, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(domain.District) bool { return true }), nil
}

func (r *memoryCatalogRepository) ListDistrictsByRegion(_ context.Context, region string) ([]domain.District, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(d domain.District) bool { return d.Region == region }), nil
}

func (r *memoryCatalogRepository) GetDistrict(_ context.Context, code string) (domain.District, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.districts[code]
	if !ok {
		return domain.District{}, fmt.Errorf("district %q: %w", code, ErrNotFound)
	}
	return d, nil
}

func (r *memoryCatalogRepository) ListRegions(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	regions := []string{}
	for _, d := range r.districts {
		if !seen[d.Region] {
			seen[d.Region] = true
			regions = append(regions, d.Region)
		}
	}
	sort.Strings(regions)
	return regions, nil
}

// collect must be called with the lock held.
func (r *memoryCatalogRepository) collect(keep func(domain.District) bool) []domain.District {
	out := []domain.District{}
	for _, d := range r.districts {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
