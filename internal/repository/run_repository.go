package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lohithk/tallysync/internal/domain"
)

// runRepository implements RunRepository over the destination pool
type runRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new run history repository
func NewRunRepository(pool *pgxpool.Pool) RunRepository {
	return &runRepository{pool: pool}
}

const runColumns = `id, job_id, database_name, started_at, finished_at, status, outcomes, error`

// Create inserts a run in the running state
func (r *runRepository) Create(ctx context.Context, run domain.SyncRun) (domain.SyncRun, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	outcomes, err := json.Marshal(outcomesOrEmpty(run.Outcomes))
	if err != nil {
		return domain.SyncRun{}, fmt.Errorf("failed to encode outcomes: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO sync_runs (id, job_id, database_name, started_at, status, outcomes, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+runColumns,
		run.ID, run.JobID, run.Database, run.StartedAt, string(run.Status), outcomes, run.Error)

	created, err := scanRun(row)
	if err != nil {
		return domain.SyncRun{}, fmt.Errorf("failed to create run: %w", err)
	}
	return created, nil
}

// Finish records a run's terminal state, outcomes, and error
func (r *runRepository) Finish(ctx context.Context, run domain.SyncRun) error {
	outcomes, err := json.Marshal(outcomesOrEmpty(run.Outcomes))
	if err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_runs
		SET finished_at = $2, status = $3, outcomes = $4, error = $5
		WHERE id = $1`,
		run.ID, run.FinishedAt, string(run.Status), outcomes, run.Error)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// GetByID retrieves one run
func (r *runRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.SyncRun, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		return domain.SyncRun{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRecent retrieves the latest runs, newest first
func (r *runRepository) ListRecent(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	return r.list(ctx, `SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
}

// ListByJob retrieves the latest runs of one job, newest first
func (r *runRepository) ListByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]domain.SyncRun, error) {
	return r.list(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2`, jobID, limit)
}

func (r *runRepository) list(ctx context.Context, query string, args ...any) ([]domain.SyncRun, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (domain.SyncRun, error) {
	var (
		run      domain.SyncRun
		finished pgtype.Timestamptz
		status   string
		outcomes []byte
	)
	err := row.Scan(&run.ID, &run.JobID, &run.Database, &run.StartedAt, &finished, &status, &outcomes, &run.Error)
	if err != nil {
		return domain.SyncRun{}, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	run.Status = domain.RunStatus(status)
	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &run.Outcomes); err != nil {
			return domain.SyncRun{}, fmt.Errorf("decode outcomes: %w", err)
		}
	}
	return run, nil
}

func outcomesOrEmpty(outcomes []domain.TypeOutcome) []domain.TypeOutcome {
	if outcomes == nil {
		return []domain.TypeOutcome{}
	}
	return outcomes
}
