package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/dashlens/internal/stateloader"
	"github.com/rpattn/dashlens/internal/store"
)

type ctxKey string

const viewLoaderKey ctxKey = "viewLoader"

// DataLoaderMiddleware attaches a request-scoped page view loader to the
// request context
func DataLoaderMiddleware(registry *store.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Create the view loader for this request
			loader := stateloader.NewViewLoader(registry)

			ctx := context.WithValue(r.Context(), viewLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ViewLoaderFromContext retrieves the view loader from context
func ViewLoaderFromContext(ctx context.Context) *stateloader.ViewLoader {
	if l, ok := ctx.Value(viewLoaderKey).(*stateloader.ViewLoader); ok {
		return l
	}
	return nil
}
