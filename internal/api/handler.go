package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/rpattn/dashlens/internal/repository"
	"github.com/rpattn/dashlens/internal/store"
	"github.com/rpattn/dashlens/internal/upstream"
)

// Handler serves the page-state REST surface: reading and mutating per-page
// filter state, deriving upstream query parameters, proxying data fetches
// through the shared upstream client, and reading the location catalog.
type Handler struct {
	registry *store.Registry
	catalog  repository.CatalogRepository
	client   *upstream.Client
}

func NewHandler(registry *store.Registry, catalog repository.CatalogRepository, client *upstream.Client) *Handler {
	return &Handler{registry: registry, catalog: catalog, client: client}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	switch {
	case path == "/healthz":
		h.handleHealth(w, r)
	case path == "/api/pages":
		h.handleListPages(w, r)
	case strings.HasPrefix(path, "/api/pages/"):
		h.handlePage(w, r, strings.TrimPrefix(path, "/api/pages/"))
	case path == "/api/navigate":
		h.handleNavigate(w, r)
	case path == "/api/catalog":
		h.handleListDistricts(w, r)
	case path == "/api/catalog/regions":
		h.handleListRegions(w, r)
	case strings.HasPrefix(path, "/api/catalog/districts/"):
		h.handleGetDistrict(w, r, strings.TrimPrefix(path, "/api/catalog/districts/"))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handlePage routes the per-page operations. rest is the path after
// /api/pages/, so "market-watch/state" or just "market-watch".
func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request, rest string) {
	pageID, op, _ := strings.Cut(rest, "/")
	if pageID == "" {
		http.Error(w, "page id is required", http.StatusBadRequest)
		return
	}

	switch op {
	case "", "state":
		switch r.Method {
		case http.MethodGet:
			h.handleGetState(w, r, pageID)
		case http.MethodPost:
			h.handleActions(w, r, pageID)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case "actions":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleActions(w, r, pageID)
	case "params":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleParams(w, r, pageID)
	case "data":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleData(w, r, pageID)
	case "data/batch":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleDataBatch(w, r, pageID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		log.Printf("[api] failed to encode response: %v", err)
	}
}
