package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpattn/dashlens/internal/repository"
)

func (h *Handler) handleListDistricts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	region := strings.TrimSpace(r.URL.Query().Get("region"))
	districts, err := h.listDistricts(r, region)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list districts: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"districts": districts})
}

func (h *Handler) listDistricts(r *http.Request, region string) (any, error) {
	if region != "" {
		return h.catalog.ListDistrictsByRegion(r.Context(), strings.ToUpper(region))
	}
	return h.catalog.ListDistricts(r.Context())
}

func (h *Handler) handleListRegions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	regions, err := h.catalog.ListRegions(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list regions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": regions})
}

func (h *Handler) handleGetDistrict(w http.ResponseWriter, r *http.Request, code string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		http.Error(w, "district code is required", http.StatusBadRequest)
		return
	}

	district, err := h.catalog.GetDistrict(r.Context(), code)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, fmt.Sprintf("district not found: %v", err), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get district: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, district)
}
