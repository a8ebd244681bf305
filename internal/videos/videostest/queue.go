package videostest

import (
	"context"
	"sync"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
)

// Queue is a single-process JobQueue. Delayed jobs become due on the next PromoteDelayed call and
// stalled recovery is a no-op.
type Queue struct {
	mu          sync.Mutex
	jobs        map[string]*queuedJob
	wait        []string
	MaxAttempts int

	progressUpdates int
}

type queuedJob struct {
	info    models.JobInfo
	payload models.JobPayload
}

func NewQueue(maxAttempts int) *Queue {
	return &Queue{jobs: make(map[string]*queuedJob), MaxAttempts: maxAttempts}
}

var _ videos.JobQueue = (*Queue)(nil)

func (q *Queue) Enqueue(_ context.Context, payload models.JobPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobID := models.JobIDForVideo(payload.VideoID)
	if job, ok := q.jobs[jobID]; ok && job.info.State.InFlight() {
		return jobID, nil
	}
	now := time.Now()
	q.jobs[jobID] = &queuedJob{
		payload: payload,
		info: models.JobInfo{
			ID:          jobID,
			VideoID:     payload.VideoID.String(),
			RawFilePath: payload.RawFilePath,
			State:       models.JobStateWaiting,
			MaxAttempts: q.MaxAttempts,
			CreatedAt:   &now,
		},
	}
	q.removeWaiting(jobID)
	q.wait = append(q.wait, jobID)
	return jobID, nil
}

// Waiting returns the wait list in dequeue order.
func (q *Queue) Waiting() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.wait...)
}

// SetState forces a job state, creating the job when needed.
func (q *Queue) SetState(payload models.JobPayload, state models.JobState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobID := models.JobIDForVideo(payload.VideoID)
	job, ok := q.jobs[jobID]
	if !ok {
		job = &queuedJob{payload: payload, info: models.JobInfo{ID: jobID, VideoID: payload.VideoID.String(), MaxAttempts: q.MaxAttempts}}
		q.jobs[jobID] = job
	}
	job.info.State = state
	q.removeWaiting(jobID)
	if state == models.JobStateWaiting {
		q.wait = append(q.wait, jobID)
	}
}

func (q *Queue) Status(_ context.Context, jobID string) (*models.JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return &models.JobInfo{ID: jobID, State: models.JobStateMissing}, nil
	}
	info := job.info
	return &info, nil
}

func (q *Queue) Cancel(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok || !job.info.State.Pending() {
		return false, nil
	}
	q.removeWaiting(jobID)
	delete(q.jobs, jobID)
	return true, nil
}

func (q *Queue) Retry(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok || job.info.State != models.JobStateFailed {
		return videos.ErrInvalidQueueState
	}
	job.info.State = models.JobStateWaiting
	job.info.AttemptsMade = 0
	job.info.Progress = 0
	job.info.FailedReason = ""
	q.wait = append(q.wait, jobID)
	return nil
}

// Dequeue waits at most 10ms for an empty queue, however long timeout is.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.wait) == 0 {
		q.mu.Unlock()
		idle(ctx, min(timeout, 10*time.Millisecond))
		q.mu.Lock()
	}
	if len(q.wait) == 0 {
		return nil, nil
	}
	jobID := q.wait[0]
	q.wait = q.wait[1:]
	job := q.jobs[jobID]
	job.info.State = models.JobStateActive
	job.info.Deliveries++
	return &models.Job{
		ID:           jobID,
		Payload:      job.payload,
		AttemptsMade: job.info.AttemptsMade,
		MaxAttempts:  job.info.MaxAttempts,
		Deliveries:   job.info.Deliveries,
	}, nil
}

// owned returns the job when the caller holds its current delivery.
func (q *Queue) owned(j *models.Job) (*queuedJob, error) {
	job, ok := q.jobs[j.ID]
	if !ok || job.info.State != models.JobStateActive || job.info.Deliveries != j.Deliveries {
		return nil, videos.ErrLeaseLost
	}
	return job, nil
}

func (q *Queue) UpdateProgress(_ context.Context, j *models.Job, progress float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, err := q.owned(j)
	if err != nil {
		return err
	}
	job.info.Progress = progress
	q.progressUpdates++
	return nil
}

// ProgressUpdates counts accepted UpdateProgress calls.
func (q *Queue) ProgressUpdates() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.progressUpdates
}

func (q *Queue) Complete(_ context.Context, j *models.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, err := q.owned(j)
	if err != nil {
		return err
	}
	job.info.State = models.JobStateCompleted
	job.info.Progress = 100
	return nil
}

func (q *Queue) Fail(_ context.Context, j *models.Job, reason string, retryable bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, err := q.owned(j)
	if err != nil {
		return false, err
	}
	job.info.AttemptsMade++
	job.info.FailedReason = reason
	if retryable && job.info.AttemptsMade < job.info.MaxAttempts {
		job.info.State = models.JobStateDelayed
		return true, nil
	}
	job.info.State = models.JobStateFailed
	return false, nil
}

// Redeliver hands an active job out again, as stalled recovery followed by a dequeue would.
func (q *Queue) Redeliver(jobID string) *models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok || job.info.State != models.JobStateActive {
		return nil
	}
	job.info.Deliveries++
	return &models.Job{
		ID:           jobID,
		Payload:      job.payload,
		AttemptsMade: job.info.AttemptsMade,
		MaxAttempts:  job.info.MaxAttempts,
		Deliveries:   job.info.Deliveries,
	}
}

func (q *Queue) PromoteDelayed(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, job := range q.jobs {
		if job.info.State == models.JobStateDelayed {
			job.info.State = models.JobStateWaiting
			q.wait = append(q.wait, id)
			n++
		}
	}
	return n, nil
}

func (q *Queue) RecoverStalled(_ context.Context) (int, error) {
	return 0, nil
}

func (q *Queue) removeWaiting(jobID string) {
	kept := q.wait[:0]
	for _, id := range q.wait {
		if id != jobID {
			kept = append(kept, id)
		}
	}
	q.wait = kept
}

func idle(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
