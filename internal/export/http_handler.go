package export

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/dashlens/internal/domain"
	"github.com/rpattn/dashlens/internal/store"
)

// Handler exposes export jobs over HTTP. Queue requests name a page; the
// export query is built from that page's live filter state, never from
// client-supplied parameters.
type Handler struct {
	service  *Service
	registry *store.Registry
}

func NewHTTPHandler(service *Service, registry *store.Registry) http.Handler {
	return &Handler{service: service, registry: registry}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/files/"):
		h.handleDownload(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
	case r.Method == http.MethodPost:
		h.handleQueue(w, r)
	case r.Method == http.MethodGet:
		if id, ok := trailingJobID(r.URL.Path); ok {
			h.handleGetJob(w, r, id)
			return
		}
		h.handleListJobs(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type queueExportPayload struct {
	PageID            string            `json:"pageId"`
	Endpoint          string            `json:"endpoint"`
	FileBase          string            `json:"fileBase"`
	AdditionalParams  map[string]string `json:"additionalParams"`
	IncludeFactFilter bool              `json:"includeFactFilter"`
}

type jobResponse struct {
	Job
	DownloadURL *string `json:"downloadUrl,omitempty"`
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload queueExportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.PageID) == "" {
		http.Error(w, "pageId is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Endpoint) == "" {
		http.Error(w, "endpoint is required", http.StatusBadRequest)
		return
	}

	pageStore := h.registry.Store(r.Context(), payload.PageID)
	params := pageStore.BuildAPIParams(payload.AdditionalParams, domain.ParamOptions{
		IncludeFactFilter: payload.IncludeFactFilter,
	})

	job, err := h.service.QueueExport(r.Context(), Request{
		PageID:   pageStore.PageID(),
		Endpoint: payload.Endpoint,
		Params:   params,
		FileBase: payload.FileBase,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, h.jobResponse(job))
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	job, err := h.service.GetJob(id)
	if err != nil {
		http.Error(w, fmt.Sprintf("job not found: %v", err), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.jobResponse(job))
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	statuses := parseStatuses(query["status"])
	limit := 20
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be zero or positive", http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	jobs := h.service.ListJobs(statuses, limit, offset)
	responses := make([]jobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = h.jobResponse(job)
	}
	writeJSON(w, http.StatusOK, responses)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/cancel")
	id, ok := trailingJobID(path)
	if !ok {
		http.Error(w, "missing export identifier", http.StatusBadRequest)
		return
	}
	job, err := h.service.CancelJob(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, h.jobResponse(job))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := trailingJobID(r.URL.Path)
	if !ok {
		http.Error(w, "missing export identifier", http.StatusBadRequest)
		return
	}
	job, err := h.service.GetJob(id)
	if err != nil {
		http.Error(w, fmt.Sprintf("job not found: %v", err), http.StatusNotFound)
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if err := h.service.ValidateDownloadToken(id, token); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	file, err := h.service.OpenJobFile(job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer file.Close()

	filename := filepath.Base(strings.TrimSpace(*job.FilePath))
	if filename == "" {
		filename = fmt.Sprintf("export-%s.csv", id.String())
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if job.FileByteSize != nil && *job.FileByteSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(*job.FileByteSize, 10))
	}
	http.ServeContent(w, r, filename, job.UpdatedAt, file)
}

func (h *Handler) jobResponse(job Job) jobResponse {
	response := jobResponse{Job: job}
	if url, err := h.service.BuildDownloadURL(job); err == nil {
		response.DownloadURL = url
	}
	return response
}

func trailingJobID(path string) (uuid.UUID, bool) {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(path[idx+1:])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func parseStatuses(values []string) []JobStatus {
	if len(values) == 0 {
		return nil
	}
	result := make([]JobStatus, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			switch JobStatus(trimmed) {
			case JobStatusPending, JobStatusRunning, JobStatusCompleted,
				JobStatusFailed, JobStatusCancelled:
				result = append(result, JobStatus(trimmed))
			}
		}
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
