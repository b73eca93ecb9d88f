package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/schema"

	"github.com/rpattn/dashlens/internal/domain"
	"github.com/rpattn/dashlens/internal/middleware"
	"github.com/rpattn/dashlens/internal/store"
	"github.com/rpattn/dashlens/internal/upstream"
)

func (h *Handler) handleListPages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pageIDs := h.registry.Pages()
	views, err := h.loadViews(r, pageIDs)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load pages: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": views})
}

func (h *Handler) handleGetState(w http.ResponseWriter, r *http.Request, pageID string) {
	views, err := h.loadViews(r, []string{pageID})
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load page: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, views[0])
}

// loadViews resolves page views through the request-scoped batching loader
// when the middleware installed one, so duplicate page ids within a request
// collapse into a single store read.
func (h *Handler) loadViews(r *http.Request, pageIDs []string) ([]store.View, error) {
	if loader := middleware.ViewLoaderFromContext(r.Context()); loader != nil {
		return loader.LoadMany(r.Context(), pageIDs)
	}
	views := make([]store.View, len(pageIDs))
	for i, id := range pageIDs {
		views[i] = h.registry.Store(r.Context(), id).View()
	}
	return views, nil
}

// paramsQuery carries the per-chart tuning knobs a client passes when asking
// for derived upstream parameters.
type paramsQuery struct {
	ExcludeOwnDimension  string `schema:"excludeOwnDimension"`
	ExcludeLocationDrill bool   `schema:"excludeLocationDrill"`
	IncludeFactFilter    bool   `schema:"includeFactFilter"`
}

func (q paramsQuery) options() (domain.ParamOptions, error) {
	switch q.ExcludeOwnDimension {
	case "", domain.ParamDistrict, domain.ParamBedroomType, domain.ParamSegment:
	default:
		return domain.ParamOptions{}, fmt.Errorf("unknown dimension %q", q.ExcludeOwnDimension)
	}
	return domain.ParamOptions{
		ExcludeOwnDimension:  q.ExcludeOwnDimension,
		ExcludeLocationDrill: q.ExcludeLocationDrill,
		IncludeFactFilter:    q.IncludeFactFilter,
	}, nil
}

type paramsResponse struct {
	PageID             string            `json:"pageId"`
	Params             map[string]string `json:"params"`
	FilterKey          string            `json:"filterKey"`
	DebouncedFilterKey string            `json:"debouncedFilterKey"`
}

// additionalFromQuery collects "additional.<key>=<value>" query parameters,
// the per-chart extras merged last by the parameter builder.
func additionalFromQuery(values url.Values) map[string]string {
	var additional map[string]string
	for key, vals := range values {
		name, ok := strings.CutPrefix(key, "additional.")
		if !ok || name == "" || len(vals) == 0 {
			continue
		}
		if additional == nil {
			additional = make(map[string]string)
		}
		additional[name] = vals[0]
	}
	return additional
}

func (h *Handler) handleParams(w http.ResponseWriter, r *http.Request, pageID string) {
	var query paramsQuery
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	if err := decoder.Decode(&query, r.URL.Query()); err != nil {
		http.Error(w, fmt.Sprintf("invalid query: %v", err), http.StatusBadRequest)
		return
	}
	opts, err := query.options()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pageStore := h.registry.Store(r.Context(), pageID)
	writeJSON(w, http.StatusOK, paramsResponse{
		PageID:             pageStore.PageID(),
		Params:             pageStore.BuildAPIParams(additionalFromQuery(r.URL.Query()), opts),
		FilterKey:          pageStore.FilterKey(),
		DebouncedFilterKey: pageStore.DebouncedFilterKey(),
	})
}

// dataQuery selects the upstream endpoint and fetch behaviour for a data
// request. Filter parameters always come from the page's live state.
type dataQuery struct {
	Endpoint             string `schema:"endpoint"`
	ForceRefresh         bool   `schema:"forceRefresh"`
	Priority             bool   `schema:"priority"`
	ExcludeOwnDimension  string `schema:"excludeOwnDimension"`
	ExcludeLocationDrill bool   `schema:"excludeLocationDrill"`
	IncludeFactFilter    bool   `schema:"includeFactFilter"`
}

func (h *Handler) handleData(w http.ResponseWriter, r *http.Request, pageID string) {
	var query dataQuery
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	if err := decoder.Decode(&query, r.URL.Query()); err != nil {
		http.Error(w, fmt.Sprintf("invalid query: %v", err), http.StatusBadRequest)
		return
	}
	endpoint := normalizeEndpoint(query.Endpoint)
	if endpoint == "" {
		http.Error(w, "endpoint is required", http.StatusBadRequest)
		return
	}
	opts, err := paramsQuery{
		ExcludeOwnDimension:  query.ExcludeOwnDimension,
		ExcludeLocationDrill: query.ExcludeLocationDrill,
		IncludeFactFilter:    query.IncludeFactFilter,
	}.options()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pageStore := h.registry.Store(r.Context(), pageID)
	data, err := h.client.Fetch(r.Context(), upstream.Request{
		Endpoint:     endpoint,
		Params:       pageStore.BuildAPIParams(additionalFromQuery(r.URL.Query()), opts),
		Priority:     query.Priority,
		ForceRefresh: query.ForceRefresh,
	})
	if err != nil {
		if upstream.IsCanceled(err) {
			log.Printf("[api] data fetch for %s cancelled: %v", pageStore.PageID(), err)
			return
		}
		http.Error(w, fmt.Sprintf("upstream fetch failed: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[api] failed to write data response: %v", err)
	}
}

type batchRequestPayload struct {
	ForceRefresh bool               `json:"forceRefresh"`
	Requests     []batchRequestItem `json:"requests"`
}

type batchRequestItem struct {
	Endpoint             string            `json:"endpoint"`
	AdditionalParams     map[string]string `json:"additionalParams"`
	ExcludeOwnDimension  string            `json:"excludeOwnDimension"`
	ExcludeLocationDrill bool              `json:"excludeLocationDrill"`
	IncludeFactFilter    bool              `json:"includeFactFilter"`
}

type batchResponseItem struct {
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data"`
}

// handleDataBatch fetches several endpoints for one page in a single round
// trip. Results come back in request order; one failed fetch fails the batch.
func (h *Handler) handleDataBatch(w http.ResponseWriter, r *http.Request, pageID string) {
	defer r.Body.Close()
	var payload batchRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if len(payload.Requests) == 0 {
		http.Error(w, "requests are required", http.StatusBadRequest)
		return
	}

	pageStore := h.registry.Store(r.Context(), pageID)
	reqs := make([]upstream.Request, len(payload.Requests))
	for i, item := range payload.Requests {
		endpoint := normalizeEndpoint(item.Endpoint)
		if endpoint == "" {
			http.Error(w, fmt.Sprintf("requests[%d]: endpoint is required", i), http.StatusBadRequest)
			return
		}
		opts, err := paramsQuery{
			ExcludeOwnDimension:  item.ExcludeOwnDimension,
			ExcludeLocationDrill: item.ExcludeLocationDrill,
			IncludeFactFilter:    item.IncludeFactFilter,
		}.options()
		if err != nil {
			http.Error(w, fmt.Sprintf("requests[%d]: %v", i, err), http.StatusBadRequest)
			return
		}
		reqs[i] = upstream.Request{
			Endpoint:     endpoint,
			Params:       pageStore.BuildAPIParams(item.AdditionalParams, opts),
			ForceRefresh: payload.ForceRefresh,
		}
	}

	results, err := h.client.FetchMany(r.Context(), reqs)
	if err != nil {
		if upstream.IsCanceled(err) {
			log.Printf("[api] batch fetch for %s cancelled: %v", pageStore.PageID(), err)
			return
		}
		http.Error(w, fmt.Sprintf("upstream fetch failed: %v", err), http.StatusBadGateway)
		return
	}

	items := make([]batchResponseItem, len(results))
	for i, data := range results {
		items[i] = batchResponseItem{Endpoint: reqs[i].Endpoint, Data: data}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

type navigatePayload struct {
	Pathname string `json:"pathname"`
}

// handleNavigate signals a route change to every registered page and returns
// the view of the page that became active.
func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var payload navigatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Pathname) == "" {
		http.Error(w, "pathname is required", http.StatusBadRequest)
		return
	}

	target := h.registry.Navigate(r.Context(), payload.Pathname)
	writeJSON(w, http.StatusOK, target.View())
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return endpoint
}
