package models

import (
	"time"

	"github.com/google/uuid"
)

type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateDelayed   JobState = "delayed"
	JobStateMissing   JobState = "missing"
)

// Pending reports whether the job has not started yet and can still be removed.
func (s JobState) Pending() bool {
	return s == JobStateWaiting || s == JobStateDelayed
}

// InFlight reports whether a job occupies the video's single job slot.
func (s JobState) InFlight() bool {
	return s == JobStateWaiting || s == JobStateActive || s == JobStateDelayed
}

const jobIDPrefix = "video-"

// JobIDForVideo is the deterministic queue id for a video.
func JobIDForVideo(videoID uuid.UUID) string {
	return jobIDPrefix + videoID.String()
}

type JobPayload struct {
	VideoID     uuid.UUID `json:"video_id" validate:"required"`
	RawFilePath string    `json:"raw_file_path" validate:"required,lte=1024"`
}

// Job is a dequeued unit of work. Deliveries doubles as the lease token: a redelivery bumps it and
// strips the previous holder of the job.
type Job struct {
	ID           string     `json:"id"`
	Payload      JobPayload `json:"payload"`
	AttemptsMade int        `json:"attempts_made"`
	MaxAttempts  int        `json:"max_attempts"`
	Deliveries   int        `json:"deliveries"`
}

// Redelivery reports whether this job was handed to a worker before, either after a failed
// attempt, a manual retry or a crashed worker.
func (j *Job) Redelivery() bool {
	return j.Deliveries > 1
}

type JobInfo struct {
	ID           string     `json:"id" redis:"id"`
	VideoID      string     `json:"video_id,omitempty" redis:"video_id"`
	RawFilePath  string     `json:"raw_file_path,omitempty" redis:"raw_file_path"`
	State        JobState   `json:"state" redis:"state"`
	Progress     float64    `json:"progress" redis:"progress"`
	FailedReason string     `json:"failed_reason,omitempty" redis:"failed_reason"`
	AttemptsMade int        `json:"attempts_made" redis:"attempts_made"`
	MaxAttempts  int        `json:"max_attempts" redis:"max_attempts"`
	Deliveries   int        `json:"deliveries" redis:"deliveries"`
	CreatedAt    *time.Time `json:"created_at,omitempty" redis:"-"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty" redis:"-"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" redis:"-"`
	DelayUntil   *time.Time `json:"delay_until,omitempty" redis:"-"`
}
