package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

type QualityName string

const (
	Quality1080P QualityName = "1080p"
	Quality720P  QualityName = "720p"
	Quality480P  QualityName = "480p"
	Quality360P  QualityName = "360p"
)

// QualityProfile is one rung of the encoding ladder.
type QualityProfile struct {
	Name          QualityName `json:"name" mapstructure:"name" validate:"required"`
	Width         int         `json:"width" mapstructure:"width" validate:"required,gt=0"`
	Height        int         `json:"height" mapstructure:"height" validate:"required,gt=0"`
	VideoBitrate  int         `json:"video_bitrate" mapstructure:"videoBitrate" validate:"required,gt=0"` // kbps
	MaxBitrate    int         `json:"max_bitrate" mapstructure:"maxBitrate"`
	AudioBitrate  int         `json:"audio_bitrate" mapstructure:"audioBitrate" validate:"required,gt=0"` // kbps
	RetryPriority int         `json:"retry_priority" mapstructure:"retryPriority"`
}

// Bandwidth is the peak bits per second advertised in the master playlist.
func (p QualityProfile) Bandwidth() int {
	maxRate := p.MaxBitrate
	if maxRate <= 0 {
		maxRate = p.VideoBitrate
	}
	return (maxRate + p.AudioBitrate) * 1000
}

func (p QualityProfile) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// DefaultLadder is ordered highest to lowest.
func DefaultLadder() []QualityProfile {
	return []QualityProfile{
		{Name: Quality1080P, Width: 1920, Height: 1080, VideoBitrate: 5000, MaxBitrate: 5350, AudioBitrate: 192, RetryPriority: 4},
		{Name: Quality720P, Width: 1280, Height: 720, VideoBitrate: 2800, MaxBitrate: 2996, AudioBitrate: 128, RetryPriority: 3},
		{Name: Quality480P, Width: 854, Height: 480, VideoBitrate: 1400, MaxBitrate: 1498, AudioBitrate: 128, RetryPriority: 2},
		{Name: Quality360P, Width: 640, Height: 360, VideoBitrate: 800, MaxBitrate: 856, AudioBitrate: 96, RetryPriority: 1},
	}
}

// FindProfile returns the ladder entry with the given name.
func FindProfile(ladder []QualityProfile, name QualityName) (QualityProfile, bool) {
	for _, p := range ladder {
		if p.Name == name {
			return p, true
		}
	}
	return QualityProfile{}, false
}

type QualityStatus string

const (
	QualityStatusPending    QualityStatus = "pending"
	QualityStatusProcessing QualityStatus = "processing"
	QualityStatusReady      QualityStatus = "ready"
	QualityStatusFailed     QualityStatus = "failed"
)

type VideoQuality struct {
	VideoID         uuid.UUID     `json:"video_id" db:"video_id"`
	Quality         QualityName   `json:"quality" db:"quality"`
	Status          QualityStatus `json:"status" db:"status"`
	RetryCount      int           `json:"retry_count" db:"retry_count"`
	RetryPriority   int           `json:"retry_priority" db:"retry_priority"`
	HLSPlaylistPath *string       `json:"hls_playlist_path,omitempty" db:"hls_playlist_path"`
	SegmentsCount   *int          `json:"segments_count,omitempty" db:"segments_count"`
	ErrorMessage    *string       `json:"error_message,omitempty" db:"error_message"`
	StartedAt       *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
}

// Exhausted reports a failed quality that used up its retries.
func (q VideoQuality) Exhausted(maxRetries int) bool {
	return q.Status == QualityStatusFailed && q.RetryCount >= maxRetries
}

// NeedsEncode reports whether a pipeline run should (re)encode this quality.
func (q VideoQuality) NeedsEncode(maxRetries int) bool {
	return q.Status != QualityStatusReady && !q.Exhausted(maxRetries)
}

// SortByPriority orders qualities by retry priority, highest first. Ties keep ladder order by name.
func SortByPriority(qualities []VideoQuality) {
	sort.SliceStable(qualities, func(i, j int) bool {
		return qualities[i].RetryPriority > qualities[j].RetryPriority
	})
}

// AggregateStatus derives the video status from its quality rows. The returned names are the
// ready qualities in priority order.
func AggregateStatus(qualities []VideoQuality, minimumQualities int) (VideoStatus, []string) {
	sorted := make([]VideoQuality, len(qualities))
	copy(sorted, qualities)
	SortByPriority(sorted)

	ready := make([]string, 0, len(sorted))
	for _, q := range sorted {
		if q.Status == QualityStatusReady {
			ready = append(ready, string(q.Quality))
		}
	}

	switch {
	case len(sorted) == 0 || len(ready) == 0:
		return VideoStatusFailed, ready
	case len(ready) == len(sorted):
		return VideoStatusReady, ready
	case len(ready) >= minimumQualities:
		return VideoStatusPartialReady, ready
	default:
		return VideoStatusFailed, ready
	}
}
