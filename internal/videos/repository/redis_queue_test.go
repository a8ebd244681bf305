package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dequeueWait = time.Second

type queueFixture struct {
	mr    *miniredis.Miniredis
	queue *redisJobQueue
	clock time.Time
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{}
	cfg.Redis.QueuePrefix = "test"
	cfg.Worker.MaxJobAttempts = 3
	cfg.Worker.BackoffBaseSeconds = 5
	cfg.Worker.LockTTLSeconds = 30
	cfg.Worker.RetainFinishedHours = 1

	f := &queueFixture{
		mr:    mr,
		queue: NewRedisJobQueue(client, cfg).(*redisJobQueue),
		clock: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.queue.now = func() time.Time { return f.clock }
	return f
}

func (f *queueFixture) enqueue(t *testing.T) (string, models.JobPayload) {
	t.Helper()
	id := uuid.New()
	payload := models.JobPayload{VideoID: id, RawFilePath: "uploads/" + id.String() + ".mp4"}
	jobID, err := f.queue.Enqueue(context.Background(), payload)
	require.NoError(t, err)
	return jobID, payload
}

func (f *queueFixture) dequeue(t *testing.T) *models.Job {
	t.Helper()
	job, err := f.queue.Dequeue(context.Background(), dequeueWait)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func (f *queueFixture) status(t *testing.T, jobID string) *models.JobInfo {
	t.Helper()
	info, err := f.queue.Status(context.Background(), jobID)
	require.NoError(t, err)
	return info
}

func (f *queueFixture) list(t *testing.T, name string) []string {
	t.Helper()
	if !f.mr.Exists("test:" + name) {
		return nil
	}
	items, err := f.mr.List("test:" + name)
	require.NoError(t, err)
	return items
}

func TestEnqueue_IdempotentPerVideo(t *testing.T) {
	f := newQueueFixture(t)
	jobID, payload := f.enqueue(t)

	again, err := f.queue.Enqueue(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, jobID, again)
	assert.Equal(t, "video-"+payload.VideoID.String(), jobID)
	assert.Len(t, f.list(t, "wait"), 1)

	info := f.status(t, jobID)
	assert.Equal(t, models.JobStateWaiting, info.State)
	assert.Equal(t, payload.RawFilePath, info.RawFilePath)
	assert.Equal(t, 3, info.MaxAttempts)
	require.NotNil(t, info.CreatedAt)
	assert.True(t, f.clock.Equal(*info.CreatedAt))
}

func TestEnqueue_RejectsInvalidPayload(t *testing.T) {
	f := newQueueFixture(t)
	_, err := f.queue.Enqueue(context.Background(), models.JobPayload{RawFilePath: "x.mp4"})
	assert.Error(t, err)
	_, err = f.queue.Enqueue(context.Background(), models.JobPayload{VideoID: uuid.New()})
	assert.Error(t, err)
}

func TestStatus_Missing(t *testing.T) {
	f := newQueueFixture(t)
	info := f.status(t, "video-"+uuid.NewString())
	assert.Equal(t, models.JobStateMissing, info.State)
}

func TestCancel_WaitingThenAgain(t *testing.T) {
	f := newQueueFixture(t)
	jobID, _ := f.enqueue(t)

	removed, err := f.queue.Cancel(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, models.JobStateMissing, f.status(t, jobID).State)
	assert.Empty(t, f.list(t, "wait"))

	removed, err = f.queue.Cancel(context.Background(), jobID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDequeue_ActivatesAndLocks(t *testing.T) {
	f := newQueueFixture(t)
	jobID, payload := f.enqueue(t)

	job := f.dequeue(t)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, payload, job.Payload)
	assert.Equal(t, 1, job.Deliveries)
	assert.False(t, job.Redelivery())

	info := f.status(t, jobID)
	assert.Equal(t, models.JobStateActive, info.State)
	assert.Equal(t, []string{jobID}, f.list(t, "active"))
	assert.True(t, f.mr.Exists("test:lock:"+jobID))

	// active jobs cannot be removed or retried
	removed, err := f.queue.Cancel(context.Background(), jobID)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.ErrorIs(t, f.queue.Retry(context.Background(), jobID), videos.ErrInvalidQueueState)

	// a duplicate enqueue while active is a no-op
	_, err = f.queue.Enqueue(context.Background(), payload)
	require.NoError(t, err)
	assert.Empty(t, f.list(t, "wait"))
}

func TestDequeue_Empty(t *testing.T) {
	f := newQueueFixture(t)
	job, err := f.queue.Dequeue(context.Background(), dequeueWait)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeue_SkipsDroppedJob(t *testing.T) {
	f := newQueueFixture(t)
	jobID, _ := f.enqueue(t)
	f.mr.Del("test:job:" + jobID)

	job, err := f.queue.Dequeue(context.Background(), dequeueWait)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Empty(t, f.list(t, "active"))
}

func TestFail_BackoffThenExhaust(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	jobID, _ := f.enqueue(t)

	job := f.dequeue(t)
	willRetry, err := f.queue.Fail(ctx, job, "upload failed", true)
	require.NoError(t, err)
	assert.True(t, willRetry)

	info := f.status(t, jobID)
	assert.Equal(t, models.JobStateDelayed, info.State)
	assert.Equal(t, 1, info.AttemptsMade)
	assert.Equal(t, "upload failed", info.FailedReason)
	require.NotNil(t, info.DelayUntil)
	assert.True(t, f.clock.Add(5*time.Second).Equal(*info.DelayUntil))
	assert.Empty(t, f.list(t, "active"))
	assert.False(t, f.mr.Exists("test:lock:"+jobID))

	// delayed jobs are still pending and can be cancelled, but not yet due
	n, err := f.queue.PromoteDelayed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock = f.clock.Add(6 * time.Second)
	n, err = f.queue.PromoteDelayed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.JobStateWaiting, f.status(t, jobID).State)

	job = f.dequeue(t)
	assert.Equal(t, 2, job.Deliveries)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.True(t, job.Redelivery())

	willRetry, err = f.queue.Fail(ctx, job, "upload failed", true)
	require.NoError(t, err)
	assert.True(t, willRetry)
	info = f.status(t, jobID)
	require.NotNil(t, info.DelayUntil)
	assert.True(t, f.clock.Add(10*time.Second).Equal(*info.DelayUntil))

	f.clock = f.clock.Add(11 * time.Second)
	_, err = f.queue.PromoteDelayed(ctx)
	require.NoError(t, err)
	job = f.dequeue(t)
	willRetry, err = f.queue.Fail(ctx, job, "upload failed", true)
	require.NoError(t, err)
	assert.False(t, willRetry)

	info = f.status(t, jobID)
	assert.Equal(t, models.JobStateFailed, info.State)
	assert.Equal(t, 3, info.AttemptsMade)
	assert.NotNil(t, info.FinishedAt)
}

func TestFail_NonRetryable(t *testing.T) {
	f := newQueueFixture(t)
	jobID, _ := f.enqueue(t)
	job := f.dequeue(t)

	willRetry, err := f.queue.Fail(context.Background(), job, "duration exceeds limit", false)
	require.NoError(t, err)
	assert.False(t, willRetry)
	assert.Equal(t, models.JobStateFailed, f.status(t, jobID).State)
}

func TestRetry_FailedJob(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	jobID, _ := f.enqueue(t)

	assert.ErrorIs(t, f.queue.Retry(ctx, jobID), videos.ErrInvalidQueueState)
	assert.ErrorIs(t, f.queue.Retry(ctx, "video-"+uuid.NewString()), videos.ErrInvalidQueueState)

	job := f.dequeue(t)
	_, err := f.queue.Fail(ctx, job, "unreadable media", false)
	require.NoError(t, err)

	require.NoError(t, f.queue.Retry(ctx, jobID))
	info := f.status(t, jobID)
	assert.Equal(t, models.JobStateWaiting, info.State)
	assert.Zero(t, info.AttemptsMade)
	assert.Empty(t, info.FailedReason)
	assert.Nil(t, info.FinishedAt)

	job = f.dequeue(t)
	assert.Equal(t, 2, job.Deliveries)
}

func TestComplete(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	jobID, payload := f.enqueue(t)
	job := f.dequeue(t)

	require.NoError(t, f.queue.UpdateProgress(ctx, job, 42))
	assert.Equal(t, 42.0, f.status(t, jobID).Progress)

	require.NoError(t, f.queue.Complete(ctx, job))
	info := f.status(t, jobID)
	assert.Equal(t, models.JobStateCompleted, info.State)
	assert.Equal(t, 100.0, info.Progress)
	assert.Empty(t, f.list(t, "active"))
	assert.Equal(t, time.Hour, f.mr.TTL("test:job:"+jobID))

	// a finished job is replaced by a fresh one
	_, err := f.queue.Enqueue(ctx, payload)
	require.NoError(t, err)
	info = f.status(t, jobID)
	assert.Equal(t, models.JobStateWaiting, info.State)
	assert.Zero(t, info.Deliveries)
	assert.Zero(t, f.mr.TTL("test:job:"+jobID))
}

func TestUpdateProgress_ExtendsLease(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	jobID, _ := f.enqueue(t)
	job := f.dequeue(t)

	f.mr.FastForward(20 * time.Second)
	require.NoError(t, f.queue.UpdateProgress(ctx, job, 50))
	f.mr.FastForward(20 * time.Second)
	assert.True(t, f.mr.Exists("test:lock:"+jobID))

	n, err := f.queue.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecoverStalled_NeedsTwoPasses(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	jobID, _ := f.enqueue(t)
	f.dequeue(t)

	f.mr.FastForward(31 * time.Second)
	require.False(t, f.mr.Exists("test:lock:"+jobID))

	n, err := f.queue.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.JobStateActive, f.status(t, jobID).State)

	n, err = f.queue.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.JobStateWaiting, f.status(t, jobID).State)
	assert.Empty(t, f.list(t, "active"))

	job := f.dequeue(t)
	assert.Equal(t, 2, job.Deliveries)
}

func TestRecoverStalled_StaleOwnerIsLockedOut(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	jobID, _ := f.enqueue(t)
	first := f.dequeue(t)

	f.mr.FastForward(31 * time.Second)
	for i := 0; i < 2; i++ {
		_, err := f.queue.RecoverStalled(ctx)
		require.NoError(t, err)
	}
	second := f.dequeue(t)
	require.Equal(t, 2, second.Deliveries)
	lock, err := f.mr.Get("test:lock:" + jobID)
	require.NoError(t, err)
	assert.Equal(t, "2", lock)

	// the first worker finishing late changes nothing
	assert.ErrorIs(t, f.queue.UpdateProgress(ctx, first, 90), videos.ErrLeaseLost)
	assert.ErrorIs(t, f.queue.Complete(ctx, first), videos.ErrLeaseLost)
	_, err = f.queue.Fail(ctx, first, "upload failed", true)
	assert.ErrorIs(t, err, videos.ErrLeaseLost)

	info := f.status(t, jobID)
	assert.Equal(t, models.JobStateActive, info.State)
	assert.Zero(t, info.AttemptsMade)
	assert.Zero(t, info.Progress)
	assert.Equal(t, []string{jobID}, f.list(t, "active"))
	assert.True(t, f.mr.Exists("test:lock:"+jobID))

	require.NoError(t, f.queue.UpdateProgress(ctx, second, 40))
	require.NoError(t, f.queue.Complete(ctx, second))
	assert.Equal(t, models.JobStateCompleted, f.status(t, jobID).State)
	assert.Empty(t, f.list(t, "active"))
}

func TestRecoverStalled_OwnerBackBeforeSecondPass(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	jobID, _ := f.enqueue(t)
	job := f.dequeue(t)

	f.mr.FastForward(31 * time.Second)
	n, err := f.queue.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// an expired lease is still the owner's until the job is recovered
	require.NoError(t, f.queue.UpdateProgress(ctx, job, 60))
	n, err = f.queue.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.JobStateActive, f.status(t, jobID).State)
	require.NoError(t, f.queue.Complete(ctx, job))
}

func TestComplete_FinishedJobIsNotRecovered(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	jobID, _ := f.enqueue(t)
	job := f.dequeue(t)

	f.mr.FastForward(31 * time.Second)
	_, err := f.queue.RecoverStalled(ctx)
	require.NoError(t, err)
	require.NoError(t, f.queue.Complete(ctx, job))

	n, err := f.queue.RecoverStalled(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.JobStateCompleted, f.status(t, jobID).State)
	assert.Empty(t, f.list(t, "wait"))
}

func TestRetryDelay(t *testing.T) {
	q := &redisJobQueue{backoffBase: 5 * time.Second}
	assert.Equal(t, 5*time.Second, q.retryDelay(0))
	assert.Equal(t, 5*time.Second, q.retryDelay(1))
	assert.Equal(t, 10*time.Second, q.retryDelay(2))
	assert.Equal(t, 20*time.Second, q.retryDelay(3))
	assert.Equal(t, maxRetryDelay, q.retryDelay(20))
}
