package videos

import (
	"context"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
)

type JobQueue interface {
	Enqueue(ctx context.Context, payload models.JobPayload) (string, error)
	Status(ctx context.Context, jobID string) (*models.JobInfo, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	Retry(ctx context.Context, jobID string) error

	// Dequeue blocks up to timeout and returns nil when nothing was available.
	Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error)
	// UpdateProgress, Complete and Fail only act for the delivery that currently owns the job and
	// return ErrLeaseLost to any other caller. UpdateProgress also renews the lease.
	UpdateProgress(ctx context.Context, job *models.Job, progress float64) error
	Complete(ctx context.Context, job *models.Job) error
	Fail(ctx context.Context, job *models.Job, reason string, retryable bool) (bool, error)
	PromoteDelayed(ctx context.Context) (int, error)
	RecoverStalled(ctx context.Context) (int, error)
}
