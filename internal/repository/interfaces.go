package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/lohithk/tallysync/internal/domain"
)

// JobRepository defines the interface for scheduled job operations
type JobRepository interface {
	Create(ctx context.Context, job domain.SyncJob) (domain.SyncJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.SyncJob, error)
	List(ctx context.Context) ([]domain.SyncJob, error)
	ListEnabled(ctx context.Context) ([]domain.SyncJob, error)
	Update(ctx context.Context, job domain.SyncJob) (domain.SyncJob, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunRepository defines the interface for run history operations
type RunRepository interface {
	Create(ctx context.Context, run domain.SyncRun) (domain.SyncRun, error)
	Finish(ctx context.Context, run domain.SyncRun) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.SyncRun, error)
	ListRecent(ctx context.Context, limit int) ([]domain.SyncRun, error)
	ListByJob(ctx context.Context, jobID uuid.UUID, limit int) ([]domain.SyncRun, error)
}
