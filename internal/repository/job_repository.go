package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lohithk/tallysync/internal/domain"
)

// jobRepository implements JobRepository over the destination pool
type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository
func NewJobRepository(pool *pgxpool.Pool) JobRepository {
	return &jobRepository{pool: pool}
}

const jobColumns = `id, name, record_types, database_name, trigger_kind, interval_minutes, at_time, day_of_month, month_day, enabled, created_at, updated_at`

// Create creates a new sync job
func (r *jobRepository) Create(ctx context.Context, job domain.SyncJob) (domain.SyncJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	types, err := json.Marshal(recordTypesOrEmpty(job.RecordTypes))
	if err != nil {
		return domain.SyncJob{}, fmt.Errorf("failed to encode record types: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO sync_jobs (id, name, record_types, database_name, trigger_kind, interval_minutes, at_time, day_of_month, month_day, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+jobColumns,
		job.ID, job.Name, types, job.Database, string(job.Trigger), job.IntervalMinutes,
		job.AtTime, job.DayOfMonth, job.MonthDay, job.Enabled)

	created, err := scanJob(row)
	if err != nil {
		return domain.SyncJob{}, fmt.Errorf("failed to create job: %w", err)
	}
	return created, nil
}

// GetByID retrieves a sync job by ID
func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.SyncJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		return domain.SyncJob{}, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List retrieves all sync jobs
func (r *jobRepository) List(ctx context.Context) ([]domain.SyncJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM sync_jobs ORDER BY created_at`)
}

// ListEnabled retrieves the jobs the scheduler should register
func (r *jobRepository) ListEnabled(ctx context.Context) ([]domain.SyncJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE enabled ORDER BY created_at`)
}

func (r *jobRepository) list(ctx context.Context, query string) ([]domain.SyncJob, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

// Update updates a sync job's definition
func (r *jobRepository) Update(ctx context.Context, job domain.SyncJob) (domain.SyncJob, error) {
	types, err := json.Marshal(recordTypesOrEmpty(job.RecordTypes))
	if err != nil {
		return domain.SyncJob{}, fmt.Errorf("failed to encode record types: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE sync_jobs
		SET name = $2, record_types = $3, database_name = $4, trigger_kind = $5, interval_minutes = $6,
			at_time = $7, day_of_month = $8, month_day = $9, enabled = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+jobColumns,
		job.ID, job.Name, types, job.Database, string(job.Trigger), job.IntervalMinutes,
		job.AtTime, job.DayOfMonth, job.MonthDay, job.Enabled)

	updated, err := scanJob(row)
	if err != nil {
		return domain.SyncJob{}, fmt.Errorf("failed to update job: %w", err)
	}
	return updated, nil
}

// SetEnabled flips a job's enabled flag
func (r *jobRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sync_jobs SET enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to set job enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// Delete deletes a sync job
func (r *jobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sync_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

func scanJob(row pgx.Row) (domain.SyncJob, error) {
	var (
		job     domain.SyncJob
		types   []byte
		trigger string
	)
	err := row.Scan(&job.ID, &job.Name, &types, &job.Database, &trigger, &job.IntervalMinutes,
		&job.AtTime, &job.DayOfMonth, &job.MonthDay, &job.Enabled, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return domain.SyncJob{}, err
	}
	job.Trigger = domain.TriggerKind(trigger)
	if len(types) > 0 {
		if err := json.Unmarshal(types, &job.RecordTypes); err != nil {
			return domain.SyncJob{}, fmt.Errorf("decode record types: %w", err)
		}
	}
	if len(job.RecordTypes) == 0 {
		job.RecordTypes = nil
	}
	return job, nil
}

// recordTypesOrEmpty keeps the jsonb column a list even when the job covers
// every catalog type.
func recordTypesOrEmpty(types []string) []string {
	if types == nil {
		return []string{}
	}
	return types
}
