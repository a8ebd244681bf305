package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type VideoStatus string

const (
	VideoStatusUploading    VideoStatus = "uploading"
	VideoStatusUploaded     VideoStatus = "uploaded"
	VideoStatusProcessing   VideoStatus = "processing"
	VideoStatusReady        VideoStatus = "ready"
	VideoStatusPartialReady VideoStatus = "partial_ready"
	VideoStatusFailed       VideoStatus = "failed"
	VideoStatusCancelled    VideoStatus = "cancelled"
)

// Servable reports whether the status carries a master playlist.
func (s VideoStatus) Servable() bool {
	return s == VideoStatusReady || s == VideoStatusPartialReady
}

// InFlight reports whether a queue job may still exist for the video.
func (s VideoStatus) InFlight() bool {
	switch s {
	case VideoStatusUploading, VideoStatusUploaded, VideoStatusProcessing:
		return true
	}
	return false
}

type Video struct {
	VideoID            uuid.UUID      `json:"video_id" db:"video_id"`
	UserID             uuid.UUID      `json:"user_id" db:"user_id"`
	Status             VideoStatus    `json:"status" db:"status"`
	RetryCount         int            `json:"retry_count" db:"retry_count"`
	RawFilePath        string         `json:"raw_file_path" db:"raw_file_path"`
	HLSMasterURL       *string        `json:"hls_master_url,omitempty" db:"hls_master_url"`
	ThumbnailURL       *string        `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	AvailableQualities pq.StringArray `json:"available_qualities" db:"available_qualities"`
	Duration           *float64       `json:"duration,omitempty" db:"duration"`
	Width              *int           `json:"width,omitempty" db:"width"`
	Height             *int           `json:"height,omitempty" db:"height"`
	ErrorMessage       *string        `json:"error_message,omitempty" db:"error_message"`
	CreatedAt          time.Time      `json:"created_at" db:"created_at"`
	UploadedAt         *time.Time     `json:"uploaded_at,omitempty" db:"uploaded_at"`
	ProcessedAt        *time.Time     `json:"processed_at,omitempty" db:"processed_at"`
	DeletedAt          *time.Time     `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy          *uuid.UUID     `json:"deleted_by,omitempty" db:"deleted_by"`
}

func (v *Video) IsDeleted() bool {
	return v.DeletedAt != nil
}

// VideoFinalize carries everything a finished run persists in one row update.
type VideoFinalize struct {
	VideoID            uuid.UUID
	Status             VideoStatus
	HLSMasterURL       *string
	ThumbnailURL       *string
	AvailableQualities []string
	Duration           float64
	Width              int
	Height             int
	ErrorMessage       *string
	ProcessedAt        time.Time
}

type DeleteMode string

const (
	DeleteModeHard DeleteMode = "hard"
	DeleteModeSoft DeleteMode = "soft"
)

type CleanupItem struct {
	VideoID uuid.UUID `json:"video_id"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

type CleanupReport struct {
	DryRun     bool          `json:"dry_run"`
	Candidates int           `json:"candidates"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Items      []CleanupItem `json:"items"`
}

// Add records the outcome of one video.
func (r *CleanupReport) Add(videoID uuid.UUID, err error) {
	item := CleanupItem{VideoID: videoID, Success: err == nil}
	if err != nil {
		item.Error = err.Error()
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Items = append(r.Items, item)
}

type CleanupInput struct {
	MaxAgeHours int  `json:"max_age_hours" validate:"gte=0"`
	BatchSize   int  `json:"batch_size" validate:"gte=0,lte=1000"`
	DryRun      bool `json:"dry_run"`
}

type DeleteVideoInput struct {
	RequestedBy uuid.UUID `json:"requested_by" query:"requested_by" validate:"required"`
	ForceHard   bool      `json:"force_hard" query:"force_hard"`
}

type PurgeInput struct {
	BatchSize int `json:"batch_size" validate:"gte=0,lte=1000"`
}

// VideoDetails is a video together with its quality ledger.
type VideoDetails struct {
	*Video
	Qualities []VideoQuality `json:"qualities"`
	// Retrying lists failed qualities that still have retries left.
	Retrying []string `json:"retrying,omitempty"`
}
