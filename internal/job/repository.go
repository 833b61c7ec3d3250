package job

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Update(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, status Status, limit int) ([]Job, error)

	// SweepTerminal deletes terminal jobs last updated before cutoff and
	// returns the deleted records so the caller can reclaim their artifact
	// directories. Non-terminal jobs are never deleted regardless of age.
	SweepTerminal(ctx context.Context, cutoff time.Time) ([]Job, error)
}
