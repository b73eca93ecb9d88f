package store

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rpattn/dashlens/internal/domain"
	"github.com/rpattn/dashlens/internal/repository"
	"github.com/rpattn/dashlens/pkg/pagekey"
)

const defaultPersistTimeout = 5 * time.Second

// Store owns the filter and navigation state for one page. All mutation goes
// through named actions so the drill invariants in the domain package hold;
// reads hand out copies, never internal references. Changes to the persisted
// subset are written through to the repository off the caller's path, best
// effort: a failing save is logged and dropped, it never blocks or fails an
// action.
type Store struct {
	pageID         string
	namespace      string
	repo           repository.StateRepository
	debounce       *Debouncer
	debounceWindow time.Duration
	persistTimeout time.Duration

	mu       sync.Mutex
	filters  domain.FilterState
	grouping domain.TimeGrouping
	drill    domain.DrillState
	fact     domain.FactFilter
	active   bool

	pending   []byte
	persistCh chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// View is the consumer-facing read model: persisted filters, navigation
// state, the derived effective filters, and the keys fetchers key off.
type View struct {
	PageID             string                 `json:"pageId"`
	Filters            domain.FilterState     `json:"filters"`
	TimeGrouping       domain.TimeGrouping    `json:"timeGrouping"`
	DrillPath          domain.DrillPath       `json:"drillPath"`
	Breadcrumbs        domain.BreadcrumbTrail `json:"breadcrumbs"`
	SelectedEntity     domain.SelectedEntity  `json:"selectedEntity"`
	FactFilter         domain.FactFilter      `json:"factFilter"`
	ActiveFilters      domain.FilterState     `json:"activeFilters"`
	FilterKey          string                 `json:"filterKey"`
	DebouncedFilterKey string                 `json:"debouncedFilterKey"`
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace overrides the storage namespace prefix.
func WithNamespace(namespace string) Option {
	return func(s *Store) {
		if namespace != "" {
			s.namespace = namespace
		}
	}
}

// WithPersistTimeout bounds each background write-through attempt.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithDebounceWindow overrides the quiet window for the debounced filter key.
func WithDebounceWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounceWindow = d
		}
	}
}

// New creates the store for a page, rehydrating persisted state through the
// migration pipeline. A failed load is not fatal; the page starts from
// defaults.
func New(ctx context.Context, pageID string, repo repository.StateRepository, opts ...Option) *Store {
	s := &Store{
		pageID:         pagekey.Sanitize(pageID),
		namespace:      pagekey.DefaultNamespace,
		repo:           repo,
		persistTimeout: defaultPersistTimeout,
		debounceWindow: DefaultDebounceWindow,
		persistCh:      make(chan struct{}, 1),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	snap := DefaultSnapshot()
	raw, err := s.repo.Load(ctx, s.storageKey())
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		log.Printf("[store] load %s: %v", s.storageKey(), err)
	default:
		if v := RawSchemaVersion(raw); v != SchemaVersion {
			log.Printf("[store] migrating %s from schema v%d", s.storageKey(), v)
		}
		snap = MigrateSnapshot(raw)
	}
	s.filters = snap.Filters
	s.grouping = snap.TimeGrouping
	s.drill = domain.DefaultDrillState()

	s.debounce = NewDebouncer(s.debounceWindow)
	s.debounce.Prime(s.filterKeyLocked())

	go s.persistLoop()
	return s
}

// PageID returns the sanitized page identifier the store is keyed by.
func (s *Store) PageID() string { return s.pageID }

func (s *Store) storageKey() string {
	return pagekey.StorageKey(s.namespace, s.pageID, pagekey.LogicalKeyFilters)
}

// Filters returns a copy of the persisted dimension filters.
func (s *Store) Filters() domain.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Clone()
}

// TimeGrouping returns the view-context grouping setting.
func (s *Store) TimeGrouping() domain.TimeGrouping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grouping
}

// Drill returns a copy of the navigation state.
func (s *Store) Drill() domain.DrillState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drill.Clone()
}

// ActiveFilters derives the effective filter set from persisted filters and
// the current drill context.
func (s *Store) ActiveFilters() domain.FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.DeriveActiveFilters(s.filters, s.drill.Breadcrumbs, s.drill.Path)
}

// FilterKey returns the stable string encoding of the effective filter set.
func (s *Store) FilterKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterKeyLocked()
}

// DebouncedFilterKey returns the filter key as of the last quiet window.
func (s *Store) DebouncedFilterKey() string {
	return s.debounce.Value()
}

// Snapshot returns the persisted subset as it would be written to storage.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Filters:       s.filters.Clone(),
		TimeGrouping:  s.grouping,
		SchemaVersion: SchemaVersion,
	}
}

// View assembles the whole consumer read model in one locked pass.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	drill := s.drill.Clone()
	return View{
		PageID:             s.pageID,
		Filters:            s.filters.Clone(),
		TimeGrouping:       s.grouping,
		DrillPath:          drill.Path,
		Breadcrumbs:        drill.Breadcrumbs,
		SelectedEntity:     drill.Selected,
		FactFilter:         s.fact,
		ActiveFilters:      domain.DeriveActiveFilters(s.filters, drill.Breadcrumbs, drill.Path),
		FilterKey:          s.filterKeyLocked(),
		DebouncedFilterKey: s.debounce.Value(),
	}
}

// BuildAPIParams flattens the current effective filter set into request
// parameters for one chart's fetch.
func (s *Store) BuildAPIParams(additional map[string]string, opts domain.ParamOptions) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := domain.DeriveActiveFilters(s.filters, s.drill.Breadcrumbs, s.drill.Path)
	return domain.BuildAPIParams(active, s.filters, s.fact, additional, opts)
}

// SetTimeFilter replaces the time selection. Malformed filters are ignored.
func (s *Store) SetTimeFilter(tf domain.TimeFilter) {
	if !tf.Valid() {
		return
	}
	s.mutatePersisted(func() { s.filters.TimeFilter = tf })
}

// SetDistricts replaces the district multi-select.
func (s *Store) SetDistricts(values []string) {
	s.mutatePersisted(func() { s.filters.Districts = cloneValues(values) })
}

// SetBedroomTypes replaces the bedroom-type multi-select.
func (s *Store) SetBedroomTypes(values []string) {
	s.mutatePersisted(func() { s.filters.BedroomTypes = cloneValues(values) })
}

// SetSegments replaces the market-segment multi-select.
func (s *Store) SetSegments(values []string) {
	s.mutatePersisted(func() { s.filters.Segments = cloneValues(values) })
}

// SetSaleType sets or clears the sale-type filter.
func (s *Store) SetSaleType(v *domain.SaleType) {
	s.mutatePersisted(func() { s.filters.SaleType = clonePtr(v) })
}

// SetTenure sets or clears the tenure filter.
func (s *Store) SetTenure(v *domain.Tenure) {
	s.mutatePersisted(func() { s.filters.Tenure = clonePtr(v) })
}

// SetPropertyAgeBucket sets or clears the coarse age-bucket filter.
func (s *Store) SetPropertyAgeBucket(v *domain.AgeBucket) {
	s.mutatePersisted(func() { s.filters.PropertyAgeBucket = clonePtr(v) })
}

// SetProject sets or clears the project filter.
func (s *Store) SetProject(v *string) {
	s.mutatePersisted(func() { s.filters.Project = clonePtr(v) })
}

// SetPSFRange replaces the price-per-square-foot range.
func (s *Store) SetPSFRange(r domain.RangeFilter) {
	s.mutatePersisted(func() { s.filters.PSFRange = r })
}

// SetSizeRange replaces the floor-area range.
func (s *Store) SetSizeRange(r domain.RangeFilter) {
	s.mutatePersisted(func() { s.filters.SizeRange = r })
}

// SetPropertyAge replaces the exact property-age range.
func (s *Store) SetPropertyAge(r domain.RangeFilter) {
	s.mutatePersisted(func() { s.filters.PropertyAge = r })
}

// SetTimeGrouping changes the chart grouping setting. Unknown groupings are
// ignored.
func (s *Store) SetTimeGrouping(g domain.TimeGrouping) {
	if !g.Valid() {
		return
	}
	s.mutatePersisted(func() { s.grouping = g })
}

// ResetFilters restores the persisted dimension filters to their defaults.
// Navigation state and the grouping setting are left alone.
func (s *Store) ResetFilters() {
	s.mutatePersisted(func() { s.filters = domain.DefaultFilterState() })
}

// DrillDown advances one level on the axis, recording the clicked value.
func (s *Store) DrillDown(axis domain.Axis, value, label string) {
	s.mutateTransient(func() { s.drill = s.drill.DrillDown(axis, value, label) })
}

// DrillUp retreats one level on the axis.
func (s *Store) DrillUp(axis domain.Axis) {
	s.mutateTransient(func() { s.drill = s.drill.DrillUp(axis) })
}

// NavigateToBreadcrumb jumps to a previously recorded drill position.
func (s *Store) NavigateToBreadcrumb(axis domain.Axis, index int) {
	s.mutateTransient(func() { s.drill = s.drill.NavigateToBreadcrumb(axis, index) })
}

// SelectEntity records the row opened for inspection in a detail table.
func (s *Store) SelectEntity(name, district *string) {
	s.mutateTransient(func() { s.drill = s.drill.WithSelectedEntity(name, district) })
}

// ClearSelectedEntity closes any open drill-through.
func (s *Store) ClearSelectedEntity() {
	s.mutateTransient(func() { s.drill = s.drill.WithoutSelectedEntity() })
}

// SetFactPriceRange replaces the detail-table price constraint.
func (s *Store) SetFactPriceRange(r domain.RangeFilter) {
	s.mutateTransient(func() { s.fact.PriceRange = r })
}

// HandleNavigation reacts to a router pathname change. The store resets its
// transient state when its page becomes active again; persisted filters are
// untouched. Duplicate signals for the already active page do nothing.
func (s *Store) HandleNavigation(pathname string) {
	isMine := pagekey.Sanitize(pathname) == s.pageID
	s.mutateTransient(func() {
		if isMine && !s.active {
			s.drill = domain.DefaultDrillState()
			s.fact = domain.FactFilter{}
		}
		s.active = isMine
	})
}

// Close flushes any pending write and stops the background writer. Stores
// normally live for the whole process; Close exists for shutdown and tests.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.debounce.Stop()
	})
}

// mutatePersisted applies fn under the lock, then schedules a write-through
// and refreshes the debounced filter key.
func (s *Store) mutatePersisted(fn func()) {
	s.mu.Lock()
	fn()
	s.pending = s.encodeSnapshotLocked()
	key := s.filterKeyLocked()
	s.mu.Unlock()

	s.schedulePersist()
	s.debounce.Update(key)
}

// mutateTransient applies fn under the lock and refreshes the debounced
// filter key without touching storage.
func (s *Store) mutateTransient(fn func()) {
	s.mu.Lock()
	fn()
	key := s.filterKeyLocked()
	s.mu.Unlock()

	s.debounce.Update(key)
}

// filterKeyLocked encodes the effective filter set plus the grouping setting
// as a sorted parameter string. Must be called with the lock held.
func (s *Store) filterKeyLocked() string {
	active := domain.DeriveActiveFilters(s.filters, s.drill.Breadcrumbs, s.drill.Path)
	params := domain.BuildAPIParams(active, s.filters, s.fact, nil, domain.ParamOptions{})
	params["groupBy"] = string(s.grouping)
	return pagekey.EncodeParams(params)
}

// encodeSnapshotLocked must be called with the lock held.
func (s *Store) encodeSnapshotLocked() []byte {
	payload, err := json.Marshal(Snapshot{
		Filters:       s.filters,
		TimeGrouping:  s.grouping,
		SchemaVersion: SchemaVersion,
	})
	if err != nil {
		log.Printf("[store] encode %s: %v", s.storageKey(), err)
		return nil
	}
	return payload
}

func (s *Store) schedulePersist() {
	select {
	case s.persistCh <- struct{}{}:
	default:
	}
}

// persistLoop is the single background writer. Coalescing through pending
// means rapid mutations cost one save carrying the latest snapshot, and
// saves can never land out of order.
func (s *Store) persistLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			s.flush()
			return
		case <-s.persistCh:
			s.flush()
		}
	}
}

func (s *Store) flush() {
	s.mu.Lock()
	payload := s.pending
	s.pending = nil
	s.mu.Unlock()
	if payload == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.repo.Save(ctx, s.storageKey(), payload); err != nil {
		log.Printf("[store] persist %s: %v", s.storageKey(), err)
	}
}

func cloneValues(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string{}, values...)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
