package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lohithk/tallysync/internal/domain"
	syncengine "github.com/lohithk/tallysync/internal/sync"
)

type stubRunner struct {
	lastTypes    []string
	lastJobID    *uuid.UUID
	lastDatabase string
	err          error
	busy         bool
}

func (r *stubRunner) RunAndRecord(_ context.Context, jobID *uuid.UUID, typeNames []string, database string) (domain.SyncRun, error) {
	if r.err != nil {
		return domain.SyncRun{}, r.err
	}
	r.lastTypes = typeNames
	r.lastJobID = jobID
	r.lastDatabase = database
	return domain.SyncRun{ID: uuid.New(), Status: domain.RunStatusSuccess, Database: database}, nil
}

func (r *stubRunner) Busy() bool { return r.busy }

type stubDirectory struct {
	databases []string
	created   []string
}

func (d *stubDirectory) ListDatabases(context.Context) ([]string, error) {
	return d.databases, nil
}

func (d *stubDirectory) CreateDatabase(_ context.Context, name string) error {
	d.created = append(d.created, name)
	return nil
}

type stubJobRepo struct {
	jobs map[uuid.UUID]domain.SyncJob
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: make(map[uuid.UUID]domain.SyncJob)}
}

func (r *stubJobRepo) Create(_ context.Context, job domain.SyncJob) (domain.SyncJob, error) {
	job.ID = uuid.New()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	r.jobs[job.ID] = job
	return job, nil
}

func (r *stubJobRepo) GetByID(_ context.Context, id uuid.UUID) (domain.SyncJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return domain.SyncJob{}, fmt.Errorf("job %s not found", id)
	}
	return job, nil
}

func (r *stubJobRepo) List(_ context.Context) ([]domain.SyncJob, error) {
	var out []domain.SyncJob
	for _, job := range r.jobs {
		out = append(out, job)
	}
	return out, nil
}

func (r *stubJobRepo) ListEnabled(ctx context.Context) ([]domain.SyncJob, error) {
	all, _ := r.List(ctx)
	var out []domain.SyncJob
	for _, job := range all {
		if job.Enabled {
			out = append(out, job)
		}
	}
	return out, nil
}

func (r *stubJobRepo) Update(_ context.Context, job domain.SyncJob) (domain.SyncJob, error) {
	if _, ok := r.jobs[job.ID]; !ok {
		return domain.SyncJob{}, fmt.Errorf("job %s not found", job.ID)
	}
	r.jobs[job.ID] = job
	return job, nil
}

func (r *stubJobRepo) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Enabled = enabled
	r.jobs[id] = job
	return nil
}

func (r *stubJobRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.jobs[id]; !ok {
		return fmt.Errorf("job %s not found", id)
	}
	delete(r.jobs, id)
	return nil
}

type stubWebRunRepo struct {
	runs []domain.SyncRun
}

func (r *stubWebRunRepo) Create(_ context.Context, run domain.SyncRun) (domain.SyncRun, error) {
	r.runs = append(r.runs, run)
	return run, nil
}

func (r *stubWebRunRepo) Finish(_ context.Context, run domain.SyncRun) error { return nil }

func (r *stubWebRunRepo) GetByID(_ context.Context, id uuid.UUID) (domain.SyncRun, error) {
	return domain.SyncRun{}, fmt.Errorf("not found")
}

func (r *stubWebRunRepo) ListRecent(_ context.Context, limit int) ([]domain.SyncRun, error) {
	if limit > len(r.runs) {
		limit = len(r.runs)
	}
	return r.runs[:limit], nil
}

func (r *stubWebRunRepo) ListByJob(_ context.Context, jobID uuid.UUID, limit int) ([]domain.SyncRun, error) {
	var out []domain.SyncRun
	for _, run := range r.runs {
		if run.JobID != nil && *run.JobID == jobID {
			out = append(out, run)
		}
	}
	return out, nil
}

type stubChecker struct{ ok bool }

func (c stubChecker) CheckReachable(context.Context) (bool, string) {
	if c.ok {
		return true, "source reachable"
	}
	return false, "connection refused"
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubReloader struct{ reloads int }

func (r *stubReloader) Reload(context.Context) error {
	r.reloads++
	return nil
}

type stubLogs struct{}

func (stubLogs) Recent(n int) []string { return []string{"[sync] Ledger: 2 rows"} }

func newTestServer() (*Server, *stubRunner, *stubJobRepo, *stubWebRunRepo, *stubReloader) {
	runner := &stubRunner{}
	jobs := newStubJobRepo()
	runs := &stubWebRunRepo{}
	reloader := &stubReloader{}
	directory := &stubDirectory{databases: []string{"tallysync", "branch_mumbai"}}
	srv := NewServer(runner, jobs, runs, stubChecker{ok: true}, stubPinger{}, directory, reloader, stubLogs{})
	return srv, runner, jobs, runs, reloader
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestMastersEndpoint(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	rec := doRequest(t, srv, http.MethodGet, "/api/masters", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var payload struct {
		Masters []string `json:"masters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Masters) != 24 {
		t.Fatalf("expected full catalog, got %d entries", len(payload.Masters))
	}
}

func TestSyncEndpointTriggersRun(t *testing.T) {
	srv, runner, _, _, _ := newTestServer()
	rec := doRequest(t, srv, http.MethodPost, "/api/sync", syncPayload{RecordTypes: []string{"Ledger"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(runner.lastTypes) != 1 || runner.lastTypes[0] != "Ledger" {
		t.Fatalf("runner not invoked with selection: %v", runner.lastTypes)
	}
	if runner.lastJobID != nil {
		t.Fatalf("manual runs must not carry a job id")
	}
}

func TestSyncEndpointTargetsDatabase(t *testing.T) {
	srv, runner, _, _, _ := newTestServer()
	rec := doRequest(t, srv, http.MethodPost, "/api/sync",
		syncPayload{RecordTypes: []string{"Ledger"}, Database: "branch_mumbai"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if runner.lastDatabase != "branch_mumbai" {
		t.Fatalf("runner not invoked with the requested database: %q", runner.lastDatabase)
	}
}

func TestSyncEndpointRejectsBadDatabase(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	rec := doRequest(t, srv, http.MethodPost, "/api/sync",
		syncPayload{Database: "no;such--db"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed database name, got %d", rec.Code)
	}
}

func TestSyncEndpointDecodesChunkedBody(t *testing.T) {
	srv, runner, _, _, _ := newTestServer()

	encoded, err := json.Marshal(syncPayload{RecordTypes: []string{"Ledger"}})
	if err != nil {
		t.Fatalf("encode body: %v", err)
	}
	// A chunked request carries no Content-Length; the selection must
	// still be honoured.
	req := httptest.NewRequest(http.MethodPost, "/api/sync", bytes.NewReader(encoded))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(runner.lastTypes) != 1 || runner.lastTypes[0] != "Ledger" {
		t.Fatalf("selection dropped without Content-Length: %v", runner.lastTypes)
	}
}

func TestSyncEndpointBusyConflict(t *testing.T) {
	srv, runner, _, _, _ := newTestServer()
	runner.err = syncengine.ErrRunInProgress
	rec := doRequest(t, srv, http.MethodPost, "/api/sync", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestJobLifecycle(t *testing.T) {
	srv, runner, _, _, reloader := newTestServer()

	create := doRequest(t, srv, http.MethodPost, "/api/jobs", domain.SyncJob{
		Name:        "nightly",
		RecordTypes: []string{"Ledger", "Group"},
		Trigger:     domain.TriggerDaily,
		AtTime:      "02:30",
		Enabled:     true,
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", create.Code, create.Body.String())
	}
	var created domain.SyncJob
	if err := json.Unmarshal(create.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if reloader.reloads != 1 {
		t.Fatalf("create must reload the scheduler")
	}

	get := doRequest(t, srv, http.MethodGet, "/api/jobs/"+created.ID.String(), nil)
	if get.Code != http.StatusOK {
		t.Fatalf("get status %d", get.Code)
	}

	created.AtTime = "03:00"
	update := doRequest(t, srv, http.MethodPut, "/api/jobs/"+created.ID.String(), created)
	if update.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", update.Code, update.Body.String())
	}

	disable := doRequest(t, srv, http.MethodPost, "/api/jobs/"+created.ID.String()+"/disable", nil)
	if disable.Code != http.StatusOK {
		t.Fatalf("disable status %d", disable.Code)
	}
	var disabled domain.SyncJob
	if err := json.Unmarshal(disable.Body.Bytes(), &disabled); err != nil {
		t.Fatalf("decode disabled: %v", err)
	}
	if disabled.Enabled {
		t.Fatalf("job should be disabled")
	}

	runRec := doRequest(t, srv, http.MethodPost, "/api/jobs/"+created.ID.String()+"/run", nil)
	if runRec.Code != http.StatusOK {
		t.Fatalf("run status %d: %s", runRec.Code, runRec.Body.String())
	}
	if runner.lastJobID == nil || *runner.lastJobID != created.ID {
		t.Fatalf("job run must carry the job id")
	}

	del := doRequest(t, srv, http.MethodDelete, "/api/jobs/"+created.ID.String(), nil)
	if del.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", del.Code)
	}
	if reloader.reloads != 4 {
		t.Fatalf("every mutation must reload the scheduler, saw %d reloads", reloader.reloads)
	}
}

func TestCreateJobValidation(t *testing.T) {
	srv, _, _, _, _ := newTestServer()

	cases := []domain.SyncJob{
		{Name: "", Trigger: domain.TriggerInterval, IntervalMinutes: 5},
		{Name: "bad-types", RecordTypes: []string{"NoSuchMaster"}, Trigger: domain.TriggerInterval, IntervalMinutes: 5},
		{Name: "bad-trigger", Trigger: domain.TriggerDaily, AtTime: "25:00"},
		{Name: "zero-interval", Trigger: domain.TriggerInterval},
		{Name: "bad-database", Database: "branch;drop", Trigger: domain.TriggerInterval, IntervalMinutes: 5},
	}
	for _, job := range cases {
		rec := doRequest(t, srv, http.MethodPost, "/api/jobs", job)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("job %q: expected 400, got %d", job.Name, rec.Code)
		}
	}
}

func TestRunJobEndpointUsesJobDatabase(t *testing.T) {
	srv, runner, _, _, _ := newTestServer()

	create := doRequest(t, srv, http.MethodPost, "/api/jobs", domain.SyncJob{
		Name:        "mumbai nightly",
		RecordTypes: []string{"Ledger"},
		Database:    "branch_mumbai",
		Trigger:     domain.TriggerDaily,
		AtTime:      "01:00",
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", create.Code, create.Body.String())
	}
	var created domain.SyncJob
	if err := json.Unmarshal(create.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.Database != "branch_mumbai" {
		t.Fatalf("database not stored on the job: %q", created.Database)
	}

	runRec := doRequest(t, srv, http.MethodPost, "/api/jobs/"+created.ID.String()+"/run", nil)
	if runRec.Code != http.StatusOK {
		t.Fatalf("run status %d: %s", runRec.Code, runRec.Body.String())
	}
	if runner.lastDatabase != "branch_mumbai" {
		t.Fatalf("job run must target the job's database, got %q", runner.lastDatabase)
	}
}

func TestDatabasesEndpoints(t *testing.T) {
	srv, _, _, _, _ := newTestServer()

	rec := doRequest(t, srv, http.MethodGet, "/api/databases", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var listed struct {
		Databases []string `json:"databases"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Databases) != 2 {
		t.Fatalf("expected 2 databases, got %v", listed.Databases)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/databases", map[string]string{"name": "branch_pune"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/databases", map[string]string{"name": "bad name!"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed name must be rejected, got %d", rec.Code)
	}
}

func TestListRunsEndpoint(t *testing.T) {
	srv, _, _, runs, _ := newTestServer()
	jobID := uuid.New()
	runs.runs = []domain.SyncRun{
		{ID: uuid.New(), Status: domain.RunStatusSuccess},
		{ID: uuid.New(), JobID: &jobID, Status: domain.RunStatusFailed},
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/runs?limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var listed []domain.SyncRun
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("limit not applied: %d runs", len(listed))
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/runs?jobId="+jobID.String(), nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 || listed[0].Status != domain.RunStatusFailed {
		t.Fatalf("job filter not applied: %+v", listed)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/runs?limit=-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit must be rejected, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _, _, _ := newTestServer()

	rec := doRequest(t, srv, http.MethodGet, "/api/check/tally", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("source check status %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/check/db", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("db check status %d", rec.Code)
	}

	down := NewServer(&stubRunner{}, newStubJobRepo(), &stubWebRunRepo{},
		stubChecker{ok: false}, stubPinger{err: fmt.Errorf("refused")}, &stubDirectory{}, &stubReloader{}, stubLogs{})

	rec = doRequest(t, down, http.MethodGet, "/api/check/tally", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unreachable source must be 503, got %d", rec.Code)
	}
	rec = doRequest(t, down, http.MethodGet, "/api/check/db", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unreachable db must be 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "refused") {
		t.Fatalf("db error not surfaced: %s", rec.Body.String())
	}
}

func TestLogsEndpoint(t *testing.T) {
	srv, _, _, _, _ := newTestServer()
	rec := doRequest(t, srv, http.MethodGet, "/api/logs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "[sync] Ledger") {
		t.Fatalf("log tail missing: %s", rec.Body.String())
	}
}
