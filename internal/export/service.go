// Package export turns the rows behind a page's current filter state into
// downloadable CSV files, produced by background jobs.
package export

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rpattn/dashlens/internal/upstream"
)

var errJobNotRunnable = errors.New("export job is no longer runnable")

// JobStatus tracks an export job through its lifecycle.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is one queued export. File fields are set once the job completes.
type Job struct {
	ID           uuid.UUID         `json:"id"`
	PageID       string            `json:"pageId"`
	Endpoint     string            `json:"endpoint"`
	Params       map[string]string `json:"params"`
	Status       JobStatus         `json:"status"`
	Error        *string           `json:"error,omitempty"`
	RowsExported int               `json:"rowsExported"`
	BytesWritten int64             `json:"bytesWritten"`
	FilePath     *string           `json:"-"`
	FileByteSize *int64            `json:"fileByteSize,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Service queues export jobs and runs them on background workers. Jobs live
// in memory for the process lifetime; the files they produce live in the
// export directory.
type Service struct {
	client *upstream.Client

	exportDir  string
	jobTimeout time.Duration
	now        func() time.Time

	downloadSigner *downloadSigner

	mu   sync.Mutex
	jobs map[uuid.UUID]*Job

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
}

type Option func(*Service)

func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

// WithDownloadTokenTTL customizes the TTL for generated download links.
func WithDownloadTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.downloadSigner = newDownloadSigner(ttl)
		}
	}
}

// WithClock substitutes the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(client *upstream.Client, opts ...Option) *Service {
	service := &Service{
		client:     client,
		exportDir:  filepath.Join(os.TempDir(), "dashlens-exports"),
		jobTimeout: 10 * time.Minute,
		now:        time.Now,
		jobs:       make(map[uuid.UUID]*Job),
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.downloadSigner == nil {
		service.downloadSigner = newDownloadSigner(5 * time.Minute)
	}
	return service
}

// Request describes the export to queue: the page it belongs to and the
// upstream query its rows come from.
type Request struct {
	PageID   string
	Endpoint string
	Params   map[string]string
	FileBase string
}

// QueueExport registers a pending job and starts its worker. The worker
// fetches with priority so an export the user is waiting on is never stuck
// behind background chart traffic.
func (s *Service) QueueExport(ctx context.Context, req Request) (Job, error) {
	if strings.TrimSpace(req.PageID) == "" {
		return Job{}, errors.New("page id is required")
	}
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return Job{}, errors.New("endpoint is required")
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	params := make(map[string]string, len(req.Params))
	for k, v := range req.Params {
		params[k] = v
	}

	now := s.now()
	job := &Job{
		ID:        uuid.New(),
		PageID:    req.PageID,
		Endpoint:  endpoint,
		Params:    params,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if strings.TrimSpace(req.FileBase) == "" {
		req.FileBase = req.PageID
	}
	fileBase := sanitizeFileComponent(req.FileBase)

	s.mu.Lock()
	s.jobs[job.ID] = job
	snapshot := *job
	s.mu.Unlock()

	s.launchWorker(snapshot, fileBase)
	return snapshot, nil
}

// GetJob returns the metadata for a single export job.
func (s *Service) GetJob(id uuid.UUID) (Job, error) {
	if id == uuid.Nil {
		return Job{}, errors.New("job ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("export job %s not found", id)
	}
	return *job, nil
}

// ListJobs returns jobs matching the statuses, newest first. An empty
// status list matches everything.
func (s *Service) ListJobs(statuses []JobStatus, limit, offset int) []Job {
	wanted := map[JobStatus]bool{}
	for _, status := range statuses {
		wanted[status] = true
	}

	s.mu.Lock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if len(wanted) > 0 && !wanted[job.Status] {
			continue
		}
		jobs = append(jobs, *job)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID.String() < jobs[j].ID.String()
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(jobs) {
			return []Job{}
		}
		jobs = jobs[offset:]
	}
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// CancelJob requests cancellation for a pending or running export job.
func (s *Service) CancelJob(id uuid.UUID) (Job, error) {
	if id == uuid.Nil {
		return Job{}, errors.New("job ID is required")
	}
	job, err := s.markCancelled(id)
	if err != nil {
		return Job{}, err
	}
	if cancel, ok := s.workerCancels.LoadAndDelete(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}
	return job, nil
}

// BuildDownloadURL signs a short-lived download URL for completed export files.
func (s *Service) BuildDownloadURL(job Job) (*string, error) {
	if job.Status != JobStatusCompleted {
		return nil, nil
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, nil
	}
	if s.downloadSigner == nil {
		return nil, errors.New("download signer not configured")
	}
	token := s.downloadSigner.Sign(job.ID, s.now())
	values := url.Values{}
	values.Set("token", token)
	download := fmt.Sprintf("/api/exports/files/%s?%s", job.ID.String(), values.Encode())
	return &download, nil
}

// ValidateDownloadToken ensures the token is valid for the given job.
func (s *Service) ValidateDownloadToken(jobID uuid.UUID, token string) error {
	if s.downloadSigner == nil {
		return errors.New("download signer not configured")
	}
	return s.downloadSigner.Verify(jobID, token, s.now())
}

// OpenJobFile opens the completed export file for streaming to the client.
func (s *Service) OpenJobFile(job Job) (*os.File, error) {
	if job.Status != JobStatusCompleted {
		return nil, errors.New("export is not completed")
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, errors.New("export file is unavailable")
	}
	file, err := os.Open(*job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

func (s *Service) launchWorker(job Job, fileBase string) {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	ctx := baseCtx
	cancelFunc := baseCancel
	if s.jobTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(baseCtx, s.jobTimeout)
		ctx = timeoutCtx
		cancelFunc = func() {
			timeoutCancel()
			baseCancel()
		}
	}
	s.workerCancels.Store(job.ID, cancelFunc)
	go func() {
		defer func() {
			cancelFunc()
			s.workerCancels.Delete(job.ID)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				log.Printf("[export] panic while processing job %s: %v", job.ID, rec)
				s.failJob(job.ID, err)
			}
		}()
		if err := s.runExport(ctx, job, fileBase); err != nil {
			switch {
			case upstream.IsCanceled(err):
				log.Printf("[export] job %s cancelled", job.ID)
			case errors.Is(err, errJobNotRunnable):
				log.Printf("[export] job %s not runnable, skipping", job.ID)
			default:
				s.failJob(job.ID, err)
			}
		}
	}()
}

func (s *Service) runExport(ctx context.Context, job Job, fileBase string) error {
	if err := s.markRunning(job.ID); err != nil {
		return err
	}

	payload, err := s.client.Fetch(ctx, upstream.Request{
		Endpoint: job.Endpoint,
		Params:   job.Params,
		Priority: true,
	})
	if err != nil {
		return fmt.Errorf("fetch export rows: %w", err)
	}

	rows, err := decodeRows(payload)
	if err != nil {
		return fmt.Errorf("decode export rows: %w", err)
	}
	headers := collectHeaders(rows)

	if err := s.ensureExportDirectory(); err != nil {
		return err
	}
	tempFile, err := os.CreateTemp(s.exportDir, fmt.Sprintf("%s-*.csv", job.ID))
	if err != nil {
		return fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriterSize(tempFile, 1<<20) // 1 MiB buffer for streaming writes
	counter := &countingWriter{writer: buffered}
	csvWriter := csv.NewWriter(counter)

	if len(headers) > 0 {
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	rowBuffer := make([]string, len(headers))
	rowsExported := 0
	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for i, header := range headers {
			rowBuffer[i] = formatValue(row[header])
		}
		if err := csvWriter.Write(rowBuffer); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		rowsExported++
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("final buffered flush: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync export file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}

	finalPath := filepath.Join(s.exportDir, fmt.Sprintf("%s-%s.csv", fileBase, job.ID.String()))
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("promote export file: %w", err)
	}
	cleanup = false

	info, err := os.Stat(finalPath)
	if err != nil {
		return fmt.Errorf("stat export file: %w", err)
	}
	size := info.Size()
	bytesWritten := counter.count
	if bytesWritten == 0 {
		bytesWritten = size
	}
	if err := s.markCompleted(job.ID, rowsExported, bytesWritten, finalPath, size); err != nil {
		_ = os.Remove(finalPath)
		return err
	}
	log.Printf("[export] job %s completed (rows=%d path=%s)", job.ID, rowsExported, finalPath)
	return nil
}

func (s *Service) markRunning(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != JobStatusPending {
		return errJobNotRunnable
	}
	job.Status = JobStatusRunning
	job.UpdatedAt = s.now()
	return nil
}

func (s *Service) markCompleted(id uuid.UUID, rows int, bytes int64, path string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != JobStatusRunning {
		return errJobNotRunnable
	}
	job.Status = JobStatusCompleted
	job.RowsExported = rows
	job.BytesWritten = bytes
	job.FilePath = &path
	job.FileByteSize = &size
	job.UpdatedAt = s.now()
	return nil
}

func (s *Service) markCancelled(id uuid.UUID) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("export job %s not found", id)
	}
	if job.Status != JobStatusPending && job.Status != JobStatusRunning {
		return Job{}, fmt.Errorf("export job in status %s cannot be cancelled", job.Status)
	}
	job.Status = JobStatusCancelled
	job.UpdatedAt = s.now()
	return *job, nil
}

func (s *Service) failJob(id uuid.UUID, err error) {
	if err == nil {
		return
	}
	message := truncateError(err)

	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		if job.Status == JobStatusPending || job.Status == JobStatusRunning {
			job.Status = JobStatusFailed
			job.Error = &message
			job.UpdatedAt = s.now()
		}
	}
	s.mu.Unlock()

	log.Printf("[export] job %s failed: %v", id, err)
}

func (s *Service) ensureExportDirectory() error {
	if strings.TrimSpace(s.exportDir) == "" {
		return errors.New("export directory is not configured")
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	return nil
}

// decodeRows accepts either a bare JSON array of row objects or an envelope
// carrying one under a conventional key.
func decodeRows(payload []byte) ([]map[string]any, error) {
	var rows []map[string]any
	if err := json.Unmarshal(payload, &rows); err == nil {
		return rows, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, errors.New("response is neither a row array nor an object")
	}
	for _, key := range []string{"rows", "data", "results"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode %q field: %w", key, err)
		}
		return rows, nil
	}
	return nil, errors.New("no row collection found in response")
}

func collectHeaders(rows []map[string]any) []string {
	seen := map[string]bool{}
	headers := []string{}
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				headers = append(headers, key)
			}
		}
	}
	sort.Strings(headers)
	return headers
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "export"
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 512
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}

type downloadSigner struct {
	secret []byte
	ttl    time.Duration
}

func newDownloadSigner(ttl time.Duration) *downloadSigner {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &downloadSigner{secret: []byte(uuid.New().String()), ttl: ttl}
}

func (s *downloadSigner) Sign(jobID uuid.UUID, now time.Time) string {
	expires := now.Add(s.ttl).Unix()
	payload := fmt.Sprintf("%s:%d", jobID.String(), expires)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	raw := fmt.Sprintf("%s:%s", payload, signature)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func (s *downloadSigner) Verify(jobID uuid.UUID, token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("missing download token")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	parts := strings.Split(string(decoded), ":")
	if len(parts) != 3 {
		return errors.New("invalid token format")
	}
	if parts[0] != jobID.String() {
		return errors.New("token does not match export job")
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid token expiration: %w", err)
	}
	if now.Unix() > expires {
		return errors.New("download token expired")
	}
	payload := fmt.Sprintf("%s:%s", parts[0], parts[1])
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	expected := mac.Sum(nil)
	provided, err := hex.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("invalid token signature: %w", err)
	}
	if !hmac.Equal(expected, provided) {
		return errors.New("invalid download token")
	}
	return nil
}
