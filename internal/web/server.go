// Package web serves the dashboard API: catalog listing, manual run
// triggers, job management, run history, health checks, and the log tail.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lohithk/tallysync/internal/catalog"
	"github.com/lohithk/tallysync/internal/db"
	"github.com/lohithk/tallysync/internal/domain"
	"github.com/lohithk/tallysync/internal/repository"
	"github.com/lohithk/tallysync/internal/scheduler"
	syncengine "github.com/lohithk/tallysync/internal/sync"
)

// SyncRunner triggers sync passes.
type SyncRunner interface {
	RunAndRecord(ctx context.Context, jobID *uuid.UUID, typeNames []string, database string) (domain.SyncRun, error)
	Busy() bool
}

// DatabaseDirectory lists and creates destination databases.
type DatabaseDirectory interface {
	ListDatabases(ctx context.Context) ([]string, error)
	CreateDatabase(ctx context.Context, name string) error
}

// SourceChecker probes the accounting source.
type SourceChecker interface {
	CheckReachable(ctx context.Context) (bool, string)
}

// DBPinger probes the destination database.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// SchedulerReloader rebuilds cron registrations after job edits.
type SchedulerReloader interface {
	Reload(ctx context.Context) error
}

// LogTail exposes recent log lines.
type LogTail interface {
	Recent(n int) []string
}

type Server struct {
	runner    SyncRunner
	jobs      repository.JobRepository
	runs      repository.RunRepository
	source    SourceChecker
	database  DBPinger
	databases DatabaseDirectory
	reloader  SchedulerReloader
	logs      LogTail
}

func NewServer(
	runner SyncRunner,
	jobs repository.JobRepository,
	runs repository.RunRepository,
	source SourceChecker,
	database DBPinger,
	databases DatabaseDirectory,
	reloader SchedulerReloader,
	logs LogTail,
) *Server {
	return &Server{
		runner:    runner,
		jobs:      jobs,
		runs:      runs,
		source:    source,
		database:  database,
		databases: databases,
		reloader:  reloader,
		logs:      logs,
	}
}

// Routes builds the API mux. Exports are mounted by the caller so the
// server stays testable without a live pool.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/masters", s.handleMasters)
	mux.HandleFunc("POST /api/sync", s.handleSync)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("PUT /api/jobs/{id}", s.handleUpdateJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("POST /api/jobs/{id}/enable", s.handleSetEnabled(true))
	mux.HandleFunc("POST /api/jobs/{id}/disable", s.handleSetEnabled(false))
	mux.HandleFunc("POST /api/jobs/{id}/run", s.handleRunJob)

	mux.HandleFunc("GET /api/databases", s.handleListDatabases)
	mux.HandleFunc("POST /api/databases", s.handleCreateDatabase)

	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/logs", s.handleLogs)

	mux.HandleFunc("GET /api/check/tally", s.handleCheckSource)
	mux.HandleFunc("GET /api/check/db", s.handleCheckDB)

	return mux
}

func (s *Server) handleMasters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"masters": catalog.Names()})
}

type syncPayload struct {
	RecordTypes []string `json:"recordTypes"`
	Database    string   `json:"database"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload syncPayload
	// Chunked requests carry no Content-Length, so the body is decoded
	// unconditionally; an empty body means "all types, default database".
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if payload.Database != "" {
		if err := db.ValidateDatabaseName(payload.Database); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	run, err := s.runner.RunAndRecord(r.Context(), nil, payload.RecordTypes, payload.Database)
	if err != nil {
		if errors.Is(err, syncengine.ErrRunInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	run, err := s.runner.RunAndRecord(r.Context(), &job.ID, job.RecordTypes, job.Database)
	if err != nil {
		if errors.Is(err, syncengine.ErrRunInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []domain.SyncJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var job domain.SyncJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if err := validateJob(job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := s.jobs.Create(r.Context(), job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.reload(r.Context())
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	job, err := s.jobs.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()
	var job domain.SyncJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	job.ID = id
	if err := validateJob(job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := s.jobs.Update(r.Context(), job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.reload(r.Context())
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	if err := s.jobs.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.reload(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r)
		if !ok {
			return
		}
		if err := s.jobs.SetEnabled(r.Context(), id, enabled); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.reload(r.Context())
		job, err := s.jobs.GetByID(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	names, err := s.databases.ListDatabases(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": names})
}

func (s *Server) handleCreateDatabase(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	if err := db.ValidateDatabaseName(payload.Name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.databases.CreateDatabase(r.Context(), payload.Name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"name": payload.Name})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 20
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	var (
		runs []domain.SyncRun
		err  error
	)
	if raw := strings.TrimSpace(query.Get("jobId")); raw != "" {
		jobID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			http.Error(w, fmt.Sprintf("invalid jobId: %v", parseErr), http.StatusBadRequest)
			return
		}
		runs, err = s.runs.ListByJob(r.Context(), jobID, limit)
	} else {
		runs, err = s.runs.ListRecent(r.Context(), limit)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []domain.SyncRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": s.logs.Recent(limit)})
}

func (s *Server) handleCheckSource(w http.ResponseWriter, r *http.Request) {
	ok, message := s.source.CheckReachable(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ok": ok, "message": message})
}

func (s *Server) handleCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := s.database.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "database reachable"})
}

func (s *Server) reload(ctx context.Context) {
	if s.reloader == nil {
		return
	}
	if err := s.reloader.Reload(ctx); err != nil {
		// Job edits stay persisted; scheduling catches up on the next reload.
		log.Printf("[web] scheduler reload failed: %v", err)
	}
}

// validateJob checks the record-type selection, the destination database,
// and the trigger shape.
func validateJob(job domain.SyncJob) error {
	if strings.TrimSpace(job.Name) == "" {
		return fmt.Errorf("job name is required")
	}
	if _, err := catalog.Select(job.RecordTypes); err != nil {
		return err
	}
	if job.Database != "" {
		if err := db.ValidateDatabaseName(job.Database); err != nil {
			return err
		}
	}
	if _, err := scheduler.CronSpec(job); err != nil {
		return err
	}
	return nil
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid id: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
