// Package sync drives one synchronisation pass: fetch each selected record
// type from the accounting source, reconcile it into the destination, and
// assemble a per-type report.
package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lohithk/tallysync/internal/domain"
)

// Fetcher pulls one record type's current rows from the source.
type Fetcher interface {
	Fetch(ctx context.Context, rt domain.RecordType) (domain.Batch, domain.ExportTier, bool)
}

// Persister reconciles a batch into the destination table.
type Persister interface {
	Persist(ctx context.Context, table string, batch domain.Batch) (domain.PersistStats, error)
}

// Orchestrator runs record types sequentially so a single destination
// connection profile is never contended by the engine itself. The
// persister is chosen per run; each run may target a different database.
type Orchestrator struct {
	fetcher Fetcher
	now     func() time.Time
}

func NewOrchestrator(fetcher Fetcher) *Orchestrator {
	return &Orchestrator{fetcher: fetcher, now: time.Now}
}

// Run processes the given record types in order, writing through the
// given persister. A failure in one type is captured in its outcome and
// the pass continues with the next type; only context cancellation stops
// the pass early.
func (o *Orchestrator) Run(ctx context.Context, types []domain.RecordType, persister Persister) domain.RunReport {
	report := domain.RunReport{StartedAt: o.now()}

	for _, rt := range types {
		if err := ctx.Err(); err != nil {
			report.Outcomes = append(report.Outcomes, domain.TypeOutcome{
				RecordType: rt.Name,
				Tier:       domain.TierNone,
				Error:      fmt.Sprintf("cancelled: %v", err),
			})
			continue
		}
		report.Outcomes = append(report.Outcomes, o.runType(ctx, rt, persister))
	}

	report.FinishedAt = o.now()
	return report
}

func (o *Orchestrator) runType(ctx context.Context, rt domain.RecordType, persister Persister) (outcome domain.TypeOutcome) {
	outcome = domain.TypeOutcome{RecordType: rt.Name, Tier: domain.TierNone}

	defer func() {
		if r := recover(); r != nil {
			outcome.Error = fmt.Sprintf("panic: %v", r)
			log.Printf("[sync] %s: recovered from panic: %v", rt.Name, r)
		}
	}()

	batch, tier, transportFailed := o.fetcher.Fetch(ctx, rt)
	outcome.Tier = tier
	outcome.Rows = len(batch.Rows)
	outcome.TransportFailed = transportFailed

	if transportFailed {
		outcome.Error = "source unreachable"
		log.Printf("[sync] %s: source unreachable, nothing persisted", rt.Name)
		return outcome
	}
	if batch.Empty() {
		log.Printf("[sync] %s: source returned no rows", rt.Name)
		return outcome
	}

	stats, err := persister.Persist(ctx, rt.Name, batch)
	outcome.Stats = stats
	if err != nil {
		outcome.Error = err.Error()
		log.Printf("[sync] %s: persist failed: %v", rt.Name, err)
		return outcome
	}

	log.Printf("[sync] %s: %d rows (%s tier), %d inserted, %d updated, %d unchanged",
		rt.Name, outcome.Rows, tier, stats.Inserted, stats.Updated, stats.Skipped)
	return outcome
}
