package store

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/rpattn/dashlens/internal/domain"
	"github.com/rpattn/dashlens/internal/repository"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(repository.NewMemoryStateRepository(), WithDebounceWindow(20*time.Millisecond))
	t.Cleanup(r.Close)
	return r
}

func TestRegistryReturnsSameStorePerPage(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	first := r.Store(ctx, "/Market-Watch/")
	second := r.Store(ctx, "market-watch")
	if first != second {
		t.Error("equivalent page ids produced distinct stores")
	}

	other := r.Store(ctx, "rental-trends")
	if other == first {
		t.Error("distinct pages share a store")
	}
}

func TestRegistryPeekAndPages(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	if _, ok := r.Peek("market-watch"); ok {
		t.Error("peek created a store")
	}

	r.Store(ctx, "rental-trends")
	r.Store(ctx, "market-watch")

	if _, ok := r.Peek("market-watch"); !ok {
		t.Error("peek missed a live store")
	}
	want := []string{"market-watch", "rental-trends"}
	if got := r.Pages(); !reflect.DeepEqual(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
}

func TestRegistryNavigateResetsReenteredPage(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	s := r.Navigate(ctx, "/market-watch")
	s.SetSegments([]string{"OCR"})
	s.DrillDown(domain.AxisLocation, "OCR", "Outside Central")

	r.Navigate(ctx, "/rental-trends")
	back := r.Navigate(ctx, "/market-watch")

	if back != s {
		t.Fatal("navigation replaced the page's store")
	}
	view := back.View()
	if len(view.Breadcrumbs.Location) != 0 || view.DrillPath.Location != domain.LevelRegion {
		t.Errorf("drill state survived re-entry: %+v", view.DrillPath)
	}
	if !reflect.DeepEqual(view.Filters.Segments, []string{"OCR"}) {
		t.Errorf("persisted segments lost on navigation: %v", view.Filters.Segments)
	}
}

func TestRegistryStoresAreIndependent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	a := r.Store(ctx, "market-watch")
	b := r.Store(ctx, "rental-trends")

	a.SetDistricts([]string{"D01"})
	if got := b.Filters().Districts; len(got) != 0 {
		t.Errorf("filter change crossed pages: %v", got)
	}
}
