// Package export produces workbook snapshots of synced tables and serves
// them through short-lived signed download links.
package export

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xuri/excelize/v2"

	"github.com/lohithk/tallysync/internal/catalog"
	"github.com/lohithk/tallysync/internal/persist"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Job tracks one workbook snapshot from queueing to download. Jobs live in
// memory; a restart drops the queue together with the files' signers.
type Job struct {
	ID           uuid.UUID `json:"id"`
	RecordTypes  []string  `json:"recordTypes"`
	Status       JobStatus `json:"status"`
	RowsExported int       `json:"rowsExported"`
	FilePath     string    `json:"-"`
	FileByteSize int64     `json:"fileByteSize,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Service struct {
	pool *pgxpool.Pool

	exportDir  string
	jobTimeout time.Duration
	now        func() time.Time

	downloadSigner *downloadSigner

	mu    sync.Mutex
	jobs  map[uuid.UUID]*Job
	order []uuid.UUID

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
		s.downloadSigner = newDownloadSigner(s.downloadSigner.secret, ttl)
	}
}

// WithSigningKey pins the token secret so links survive across instances.
func WithSigningKey(key string) Option {
	return func(s *Service) {
		if strings.TrimSpace(key) != "" {
			s.downloadSigner = newDownloadSigner([]byte(key), s.downloadSigner.ttl)
		}
	}
}

func NewService(pool *pgxpool.Pool, opts ...Option) *Service {
	service := &Service{
		pool:           pool,
		exportDir:      filepath.Join(os.TempDir(), "tallysync-exports"),
		jobTimeout:     10 * time.Minute,
		now:            time.Now,
		downloadSigner: newDownloadSigner(nil, 5*time.Minute),
		jobs:           make(map[uuid.UUID]*Job),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// QueueWorkbook validates the requested record types (empty means the
// whole catalog) and starts building the workbook in the background.
func (s *Service) QueueWorkbook(ctx context.Context, typeNames []string) (Job, error) {
	types, err := catalog.Select(typeNames)
	if err != nil {
		return Job{}, err
	}
	names := make([]string, len(types))
	for i, rt := range types {
		names[i] = rt.Name
	}

	job := &Job{
		ID:          uuid.New(),
		RecordTypes: names,
		Status:      JobStatusPending,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.mu.Unlock()

	s.launchWorker(*job)
	return *job, nil
}

// GetJob returns a snapshot of one job.
func (s *Service) GetJob(id uuid.UUID) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("export job %s not found", id)
	}
	return *job, nil
}

// ListJobs returns all known jobs, newest first.
func (s *Service) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.jobs[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// CancelJob requests cancellation for a pending or running job.
func (s *Service) CancelJob(id uuid.UUID) (Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return Job{}, fmt.Errorf("export job %s not found", id)
	}
	if job.Status != JobStatusPending && job.Status != JobStatusRunning {
		snapshot := *job
		s.mu.Unlock()
		return snapshot, fmt.Errorf("export job in status %s cannot be cancelled", snapshot.Status)
	}
	job.Status = JobStatusCancelled
	job.UpdatedAt = s.now()
	snapshot := *job
	s.mu.Unlock()

	if cancel, ok := s.workerCancels.LoadAndDelete(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}
	return snapshot, nil
}

// BuildDownloadURL signs a short-lived download URL for completed workbooks.
func (s *Service) BuildDownloadURL(job Job) *string {
	if job.Status != JobStatusCompleted || strings.TrimSpace(job.FilePath) == "" {
		return nil
	}
	token := s.downloadSigner.Sign(job.ID, s.now())
	values := url.Values{}
	values.Set("token", token)
	download := fmt.Sprintf("/api/exports/files/%s?%s", job.ID.String(), values.Encode())
	return &download
}

// ValidateDownloadToken ensures the token is valid for the given job.
func (s *Service) ValidateDownloadToken(jobID uuid.UUID, token string) error {
	return s.downloadSigner.Verify(jobID, token, s.now())
}

// OpenJobFile opens the completed workbook for streaming to the client.
func (s *Service) OpenJobFile(job Job) (*os.File, error) {
	if job.Status != JobStatusCompleted {
		return nil, errors.New("export is not completed")
	}
	if strings.TrimSpace(job.FilePath) == "" {
		return nil, errors.New("export file is unavailable")
	}
	file, err := os.Open(job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

func (s *Service) launchWorker(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	s.workerCancels.Store(job.ID, cancel)
	go func() {
		defer func() {
			cancel()
			s.workerCancels.Delete(job.ID)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[export] panic while building workbook %s: %v", job.ID, rec)
				s.failJob(job.ID, fmt.Errorf("panic: %v", rec))
			}
		}()
		if err := s.runWorkbook(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Printf("[export] job %s cancelled", job.ID)
				return
			}
			s.failJob(job.ID, err)
		}
	}()
}

func (s *Service) failJob(id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status == JobStatusCancelled {
		return
	}
	job.Status = JobStatusFailed
	job.Error = truncateError(err)
	job.UpdatedAt = s.now()
	log.Printf("[export] job %s failed: %v", id, err)
}

func (s *Service) setStatus(id uuid.UUID, status JobStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status == JobStatusCancelled {
		return false
	}
	job.Status = status
	job.UpdatedAt = s.now()
	return true
}

// runWorkbook builds one sheet per record type. Types whose table does not
// exist yet are skipped; the workbook reflects what has actually synced.
func (s *Service) runWorkbook(ctx context.Context, job Job) error {
	if !s.setStatus(job.ID, JobStatusRunning) {
		return nil
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}

	workbook := excelize.NewFile()
	defer workbook.Close()

	totalRows := 0
	sheets := 0
	for _, name := range job.RecordTypes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rows, err := s.writeSheet(ctx, workbook, name)
		if err != nil {
			log.Printf("[export] sheet %s skipped: %v", name, err)
			continue
		}
		totalRows += rows
		sheets++
	}
	if sheets > 0 {
		// The implicit first sheet is only kept when nothing else exists.
		_ = workbook.DeleteSheet("Sheet1")
	}

	tempFile, err := os.CreateTemp(s.exportDir, fmt.Sprintf("%s-*.xlsx", job.ID))
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

	buffered := bufio.NewWriterSize(tempFile, 1<<20)
	counter := &countingWriter{writer: buffered}
	if _, err := workbook.WriteTo(counter); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("flush workbook: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}

	finalPath := filepath.Join(s.exportDir, fmt.Sprintf("masters-%s.xlsx", job.ID))
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("promote workbook: %w", err)
	}
	cleanup = false

	s.mu.Lock()
	if tracked, ok := s.jobs[job.ID]; ok && tracked.Status != JobStatusCancelled {
		tracked.Status = JobStatusCompleted
		tracked.RowsExported = totalRows
		tracked.FilePath = finalPath
		tracked.FileByteSize = counter.count
		tracked.UpdatedAt = s.now()
	}
	s.mu.Unlock()

	log.Printf("[export] job %s completed (sheets=%d rows=%d path=%s)", job.ID, sheets, totalRows, finalPath)
	return nil
}

// writeSheet copies one synced table into a worksheet, header row first.
func (s *Service) writeSheet(ctx context.Context, workbook *excelize.File, table string) (int, error) {
	if err := persist.ValidateIdentifier(table); err != nil {
		return 0, err
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT * FROM %q ORDER BY "NAME"`, table))
	if err != nil {
		return 0, fmt.Errorf("query table: %w", err)
	}
	defer rows.Close()

	if _, err := workbook.NewSheet(table); err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}

	descriptions := rows.FieldDescriptions()
	for i, fd := range descriptions {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return 0, err
		}
		if err := workbook.SetCellValue(table, cell, string(fd.Name)); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	count := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return count, fmt.Errorf("read row: %w", err)
		}
		count++
		for i, value := range values {
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+1, count+1)
			if err != nil {
				return count, err
			}
			if err := workbook.SetCellValue(table, cell, value); err != nil {
				return count, fmt.Errorf("write row: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate table: %w", err)
	}
	return count, nil
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

func newDownloadSigner(secret []byte, ttl time.Duration) *downloadSigner {
	if len(secret) == 0 {
		secret = []byte(uuid.New().String())
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &downloadSigner{secret: secret, ttl: ttl}
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
