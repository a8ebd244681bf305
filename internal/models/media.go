package models

// MediaInfo is what probing the source reports.
type MediaInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Codec           string  `json:"codec"`
	Bitrate         int64   `json:"bitrate"`
}

// ThumbnailOffset picks the frame time: min(2s, 10% of duration).
func (m *MediaInfo) ThumbnailOffset() float64 {
	offset := m.DurationSeconds * 0.1
	if offset > 2 {
		return 2
	}
	if offset < 0 {
		return 0
	}
	return offset
}

type EncodeRequest struct {
	SourcePath      string
	OutputDir       string
	Profile         QualityProfile
	DurationSeconds float64
	SegmentSeconds  int
}

// EncodeResult describes one quality's local HLS output.
type EncodeResult struct {
	Quality      QualityName `json:"quality"`
	OutputDir    string      `json:"output_dir"`
	PlaylistPath string      `json:"playlist_path"`
	SegmentCount int         `json:"segment_count"`
}
