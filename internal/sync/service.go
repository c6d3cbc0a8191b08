package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lohithk/tallysync/internal/catalog"
	"github.com/lohithk/tallysync/internal/domain"
	"github.com/lohithk/tallysync/internal/repository"
)

// ErrRunInProgress is returned when a run is requested while another is
// still executing. Runs are serialized so two passes never race on the
// same destination tables.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// Notifier delivers a finished run to an external channel.
type Notifier interface {
	Notify(ctx context.Context, run domain.SyncRun) error
}

// PersisterProvider resolves the persister for a destination database.
// An empty name means the configured default database.
type PersisterProvider interface {
	PersisterFor(ctx context.Context, database string) (Persister, error)
}

// Service couples the orchestrator with run bookkeeping and notification.
// Run history always lives in the default database, whichever database a
// run writes its master data to.
type Service struct {
	orchestrator *Orchestrator
	persisters   PersisterProvider
	runs         repository.RunRepository
	notifiers    []Notifier
	busy         atomic.Bool
}

func NewService(orchestrator *Orchestrator, persisters PersisterProvider, runs repository.RunRepository, notifiers ...Notifier) *Service {
	return &Service{orchestrator: orchestrator, persisters: persisters, runs: runs, notifiers: notifiers}
}

// Busy reports whether a run is currently executing.
func (s *Service) Busy() bool {
	return s.busy.Load()
}

// RunAndRecord executes one pass over the named record types (empty means
// the whole catalog) against the named database (empty means the default),
// records it in the run history, and notifies on anything short of full
// success. jobID is nil for manually triggered runs.
func (s *Service) RunAndRecord(ctx context.Context, jobID *uuid.UUID, typeNames []string, database string) (domain.SyncRun, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return domain.SyncRun{}, ErrRunInProgress
	}
	defer s.busy.Store(false)

	types, err := catalog.Select(typeNames)
	if err != nil {
		return domain.SyncRun{}, err
	}
	persister, err := s.persisters.PersisterFor(ctx, database)
	if err != nil {
		return domain.SyncRun{}, fmt.Errorf("resolve destination %q: %w", database, err)
	}

	run := domain.SyncRun{
		ID:        uuid.New(),
		JobID:     jobID,
		Database:  database,
		StartedAt: s.orchestrator.now(),
		Status:    domain.RunStatusRunning,
	}
	recorded := true
	if run, err = s.runs.Create(ctx, run); err != nil {
		// History is best effort; the sync itself still runs.
		log.Printf("[sync] could not record run start: %v", err)
		recorded = false
	}

	report := s.orchestrator.Run(ctx, types, persister)

	run.FinishedAt = report.FinishedAt
	run.Status = report.Status()
	run.Outcomes = report.Outcomes
	if failed := report.FailedTypes(); len(failed) > 0 {
		run.Error = fmt.Sprintf("failed types: %s", strings.Join(failed, ", "))
	}
	if recorded {
		if err := s.runs.Finish(ctx, run); err != nil {
			log.Printf("[sync] could not record run result: %v", err)
		}
	}

	if run.Status != domain.RunStatusSuccess {
		s.notifyAll(ctx, run)
	}

	log.Printf("[sync] run %s finished with status %s (%d types)", run.ID, run.Status, len(run.Outcomes))
	return run, nil
}

// RunJob executes one scheduled job's pass. An already-busy engine means
// the firing is dropped, not queued.
func (s *Service) RunJob(ctx context.Context, job domain.SyncJob) {
	if _, err := s.RunAndRecord(ctx, &job.ID, job.RecordTypes, job.Database); err != nil {
		log.Printf("[sync] scheduled job %q did not run: %v", job.Name, err)
	}
}

func (s *Service) notifyAll(ctx context.Context, run domain.SyncRun) {
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, run); err != nil {
			log.Printf("[sync] notifier failed: %v", err)
		}
	}
}
