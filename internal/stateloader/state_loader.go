package stateloader

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/dashlens/internal/store"
)

// ViewLoader batches page view reads within one request, so a handler
// resolving many pages touches each store once and duplicate page ids
// collapse into a single read.
type ViewLoader struct {
	Loader *dataloader.Loader
}

func NewViewLoader(registry *store.Registry) *ViewLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))
		for i, k := range keys {
			s := registry.Store(ctx, k.String())
			results[i] = &dataloader.Result{Data: s.View()}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &ViewLoader{Loader: loader}
}

// Load fetches one page view through the batcher.
func (l *ViewLoader) Load(ctx context.Context, pageID string) (store.View, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(pageID))()
	if err != nil {
		return store.View{}, err
	}
	view, ok := data.(store.View)
	if !ok {
		return store.View{}, fmt.Errorf("unexpected loader payload %T", data)
	}
	return view, nil
}

// LoadMany fetches several page views, preserving input order.
func (l *ViewLoader) LoadMany(ctx context.Context, pageIDs []string) ([]store.View, error) {
	keys := make(dataloader.Keys, len(pageIDs))
	for i, id := range pageIDs {
		keys[i] = dataloader.StringKey(id)
	}

	data, errs := l.Loader.LoadMany(ctx, keys)()
	if len(errs) > 0 {
		return nil, errs[0]
	}

	views := make([]store.View, len(data))
	for i, d := range data {
		view, ok := d.(store.View)
		if !ok {
			return nil, fmt.Errorf("unexpected loader payload %T", d)
		}
		views[i] = view
	}
	return views, nil
}
