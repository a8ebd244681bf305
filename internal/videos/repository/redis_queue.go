package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/utils"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	fieldState        = "state"
	fieldProgress     = "progress"
	fieldFailedReason = "failed_reason"
	fieldAttempts     = "attempts_made"
	fieldMaxAttempts  = "max_attempts"
	fieldDeliveries   = "deliveries"
	fieldCreatedAt    = "created_at"
	fieldProcessedAt  = "processed_at"
	fieldFinishedAt   = "finished_at"
	fieldDelayUntil   = "delay_until"

	maxTxRetries  = 5
	maxRetryDelay = 24 * time.Hour
)

// redisJobQueue keeps one hash per job plus a wait list, an active list and a delayed zset.
// Removing an id from one of those collections is what claims it, so a job is never handed out twice.
type redisJobQueue struct {
	redisClient    *redis.Client
	prefix         string
	maxAttempts    int
	backoffBase    time.Duration
	lockTTL        time.Duration
	retainFinished time.Duration
	now            func() time.Time

	mu sync.Mutex
	// active ids seen without a lock on the previous RecoverStalled pass
	suspects map[string]struct{}
}

func NewRedisJobQueue(redisClient *redis.Client, cfg *config.Config) videos.JobQueue {
	return &redisJobQueue{
		redisClient:    redisClient,
		prefix:         cfg.Redis.QueuePrefix,
		maxAttempts:    cfg.Worker.MaxJobAttempts,
		backoffBase:    cfg.Worker.BackoffBase(),
		lockTTL:        cfg.Worker.LockTTL(),
		retainFinished: cfg.Worker.RetainFinished(),
		now:            time.Now,
		suspects:       make(map[string]struct{}),
	}
}

func (q *redisJobQueue) key(parts ...string) string {
	return q.prefix + ":" + strings.Join(parts, ":")
}

func (q *redisJobQueue) jobKey(jobID string) string  { return q.key("job", jobID) }
func (q *redisJobQueue) lockKey(jobID string) string { return q.key("lock", jobID) }
func (q *redisJobQueue) waitKey() string             { return q.key("wait") }
func (q *redisJobQueue) activeKey() string           { return q.key("active") }
func (q *redisJobQueue) delayedKey() string          { return q.key("delayed") }

func (q *redisJobQueue) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = q.redisClient.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (q *redisJobQueue) Enqueue(ctx context.Context, payload models.JobPayload) (string, error) {
	if err := utils.ValidateStructCtx(ctx, &payload); err != nil {
		return "", fmt.Errorf("invalid job payload: %w", err)
	}
	jobID := models.JobIDForVideo(payload.VideoID)
	key := q.jobKey(jobID)

	err := q.watch(ctx, func(tx *redis.Tx) error {
		state, err := tx.HGet(ctx, key, fieldState).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if models.JobState(state).InFlight() {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, map[string]interface{}{
				"id":              jobID,
				"video_id":        payload.VideoID.String(),
				"raw_file_path":   payload.RawFilePath,
				fieldState:        string(models.JobStateWaiting),
				fieldProgress:     0,
				fieldAttempts:     0,
				fieldMaxAttempts:  q.maxAttempts,
				fieldDeliveries:   0,
				fieldFailedReason: "",
				fieldCreatedAt:    q.now().UnixMilli(),
			})
			pipe.LPush(ctx, q.waitKey(), jobID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return jobID, nil
}

func (q *redisJobQueue) Status(ctx context.Context, jobID string) (*models.JobInfo, error) {
	cmd := q.redisClient.HGetAll(ctx, q.jobKey(jobID))
	vals, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job status: %w", err)
	}
	if len(vals) == 0 {
		return &models.JobInfo{ID: jobID, State: models.JobStateMissing}, nil
	}
	info := &models.JobInfo{}
	if err = cmd.Scan(info); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	info.ID = jobID
	info.CreatedAt = parseMillis(vals[fieldCreatedAt])
	info.ProcessedAt = parseMillis(vals[fieldProcessedAt])
	info.FinishedAt = parseMillis(vals[fieldFinishedAt])
	info.DelayUntil = parseMillis(vals[fieldDelayUntil])
	return info, nil
}

func (q *redisJobQueue) Cancel(ctx context.Context, jobID string) (bool, error) {
	pipe := q.redisClient.TxPipeline()
	fromWait := pipe.LRem(ctx, q.waitKey(), 0, jobID)
	fromDelayed := pipe.ZRem(ctx, q.delayedKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	if fromWait.Val()+fromDelayed.Val() == 0 {
		return false, nil
	}
	if err := q.redisClient.Del(ctx, q.jobKey(jobID)).Err(); err != nil {
		return true, fmt.Errorf("failed to drop cancelled job: %w", err)
	}
	return true, nil
}

func (q *redisJobQueue) Retry(ctx context.Context, jobID string) error {
	key := q.jobKey(jobID)
	err := q.watch(ctx, func(tx *redis.Tx) error {
		state, err := tx.HGet(ctx, key, fieldState).Result()
		if errors.Is(err, redis.Nil) {
			return videos.ErrInvalidQueueState
		}
		if err != nil {
			return err
		}
		if models.JobState(state) != models.JobStateFailed {
			return videos.ErrInvalidQueueState
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldState, string(models.JobStateWaiting),
				fieldAttempts, 0,
				fieldProgress, 0,
				fieldFailedReason, "",
			)
			pipe.HDel(ctx, key, fieldFinishedAt, fieldDelayUntil, fieldProcessedAt)
			pipe.Persist(ctx, key)
			pipe.LPush(ctx, q.waitKey(), jobID)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to retry job %s: %w", jobID, err)
	}
	return nil
}

func (q *redisJobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	jobID, err := q.redisClient.BRPopLPush(ctx, q.waitKey(), q.activeKey(), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	key := q.jobKey(jobID)
	vals, err := q.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if len(vals) == 0 {
		// the hash was dropped while the id sat in the wait list
		q.redisClient.LRem(ctx, q.activeKey(), 0, jobID)
		return nil, nil
	}

	var deliveries *redis.IntCmd
	_, err = q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldState, string(models.JobStateActive), fieldProcessedAt, q.now().UnixMilli())
		deliveries = pipe.HIncrBy(ctx, key, fieldDeliveries, 1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate job %s: %w", jobID, err)
	}
	job := &models.Job{
		ID:           jobID,
		AttemptsMade: atoi(vals[fieldAttempts]),
		MaxAttempts:  atoi(vals[fieldMaxAttempts]),
		Deliveries:   int(deliveries.Val()),
	}
	if err = q.redisClient.Set(ctx, q.lockKey(jobID), job.Deliveries, q.lockTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to lock job %s: %w", jobID, err)
	}

	videoID, err := uuid.Parse(vals["video_id"])
	if err != nil {
		if _, failErr := q.Fail(ctx, job, "invalid payload", false); failErr != nil {
			return nil, failErr
		}
		return nil, fmt.Errorf("job %s has invalid video id: %w", jobID, err)
	}
	job.Payload = models.JobPayload{
		VideoID:     videoID,
		RawFilePath: vals["raw_file_path"],
	}
	return job, nil
}

// owned runs fn in a transaction on the job hash once the hash shows the job active under the
// caller's delivery. A recovered and redelivered job has a higher delivery count, which locks out
// the worker that held it before.
func (q *redisJobQueue) owned(ctx context.Context, job *models.Job, fn func(tx *redis.Tx, vals map[string]string) error) error {
	key := q.jobKey(job.ID)
	return q.watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if models.JobState(vals[fieldState]) != models.JobStateActive || atoi(vals[fieldDeliveries]) != job.Deliveries {
			return videos.ErrLeaseLost
		}
		return fn(tx, vals)
	}, key)
}

func (q *redisJobQueue) UpdateProgress(ctx context.Context, job *models.Job, progress float64) error {
	err := q.owned(ctx, job, func(tx *redis.Tx, _ map[string]string) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, q.jobKey(job.ID), fieldProgress, progress)
			pipe.Set(ctx, q.lockKey(job.ID), job.Deliveries, q.lockTTL)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

func (q *redisJobQueue) Complete(ctx context.Context, job *models.Job) error {
	key := q.jobKey(job.ID)
	err := q.owned(ctx, job, func(tx *redis.Tx, _ map[string]string) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.activeKey(), 0, job.ID)
			pipe.Del(ctx, q.lockKey(job.ID))
			pipe.HSet(ctx, key,
				fieldState, string(models.JobStateCompleted),
				fieldProgress, 100,
				fieldFinishedAt, q.now().UnixMilli(),
			)
			if q.retainFinished > 0 {
				pipe.Expire(ctx, key, q.retainFinished)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Fail records a failed attempt. The job goes to the delayed set with exponential backoff when
// it is retryable and has attempts left, otherwise it ends in failed.
func (q *redisJobQueue) Fail(ctx context.Context, job *models.Job, reason string, retryable bool) (bool, error) {
	key := q.jobKey(job.ID)
	willRetry := false
	err := q.owned(ctx, job, func(tx *redis.Tx, vals map[string]string) error {
		attempts := atoi(vals[fieldAttempts]) + 1
		willRetry = retryable && attempts < atoi(vals[fieldMaxAttempts])
		now := q.now()
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.activeKey(), 0, job.ID)
			pipe.Del(ctx, q.lockKey(job.ID))
			pipe.HSet(ctx, key, fieldAttempts, attempts, fieldFailedReason, reason)
			if willRetry {
				until := now.Add(q.retryDelay(attempts))
				pipe.ZAdd(ctx, q.delayedKey(), &redis.Z{Score: float64(until.UnixMilli()), Member: job.ID})
				pipe.HSet(ctx, key, fieldState, string(models.JobStateDelayed), fieldDelayUntil, until.UnixMilli())
				return nil
			}
			pipe.HSet(ctx, key, fieldState, string(models.JobStateFailed), fieldFinishedAt, now.UnixMilli())
			return nil
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to fail job %s: %w", job.ID, err)
	}
	return willRetry, nil
}

// retryDelay is base * 2^(attempt-1), capped at maxRetryDelay.
func (q *redisJobQueue) retryDelay(attempt int) time.Duration {
	bo := &backoff.ExponentialBackOff{
		InitialInterval: q.backoffBase,
		Multiplier:      2,
		MaxInterval:     maxRetryDelay,
	}
	bo.Reset()
	delay := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = bo.NextBackOff()
	}
	return delay
}

func (q *redisJobQueue) PromoteDelayed(ctx context.Context) (int, error) {
	due, err := q.redisClient.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	promoted := 0
	for _, jobID := range due {
		removed, err := q.redisClient.ZRem(ctx, q.delayedKey(), jobID).Result()
		if err != nil {
			return promoted, fmt.Errorf("failed to claim delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		_, err = q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, q.jobKey(jobID), fieldState, string(models.JobStateWaiting))
			pipe.HDel(ctx, q.jobKey(jobID), fieldDelayUntil)
			pipe.LPush(ctx, q.waitKey(), jobID)
			return nil
		})
		if err != nil {
			return promoted, fmt.Errorf("failed to promote job %s: %w", jobID, err)
		}
		promoted++
	}
	return promoted, nil
}

// RecoverStalled moves active jobs whose lease expired back to the wait list. An id must be seen
// without a lock on two consecutive passes, which covers the gap between the blocking pop and
// the lock being written.
func (q *redisJobQueue) RecoverStalled(ctx context.Context) (int, error) {
	active, err := q.redisClient.LRange(ctx, q.activeKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read active jobs: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	suspects := make(map[string]struct{})
	recovered := 0
	for _, jobID := range active {
		locked, err := q.redisClient.Exists(ctx, q.lockKey(jobID)).Result()
		if err != nil {
			return recovered, fmt.Errorf("failed to check job lock: %w", err)
		}
		if locked > 0 {
			continue
		}
		if _, seen := q.suspects[jobID]; !seen {
			suspects[jobID] = struct{}{}
			continue
		}
		requeued, err := q.requeueStalled(ctx, jobID)
		if err != nil {
			return recovered, fmt.Errorf("failed to requeue stalled job %s: %w", jobID, err)
		}
		if requeued {
			recovered++
		}
	}
	q.suspects = suspects
	return recovered, nil
}

// requeueStalled drops the id from the active list and, while the job is still active and unlocked,
// sends it back to the wait list. A lease renewed or a job finished in the meantime wins.
func (q *redisJobQueue) requeueStalled(ctx context.Context, jobID string) (bool, error) {
	key := q.jobKey(jobID)
	requeued := false
	err := q.watch(ctx, func(tx *redis.Tx) error {
		requeued = false
		locked, err := tx.Exists(ctx, q.lockKey(jobID)).Result()
		if err != nil || locked > 0 {
			return err
		}
		state, err := tx.HGet(ctx, key, fieldState).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		active := models.JobState(state) == models.JobStateActive
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.activeKey(), 0, jobID)
			if active {
				pipe.HSet(ctx, key, fieldState, string(models.JobStateWaiting))
				pipe.LPush(ctx, q.waitKey(), jobID)
			}
			return nil
		})
		requeued = err == nil && active
		return err
	}, key, q.lockKey(jobID))
	return requeued, err
}

func parseMillis(v string) *time.Time {
	if v == "" {
		return nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func atoi(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
