package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/pkg/errors"
)

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
	BitRate   string `json:"bit_rate"`
}

func (e *ffmpegEncoder) Probe(ctx context.Context, path string) (*models.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, e.cfg.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(videos.ErrUnreadableMedia, "ffprobe: %v, stderr: %s", err, tail(stderr.String()))
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(data []byte) (*models.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrapf(videos.ErrUnreadableMedia, "decode ffprobe output: %v", err)
	}

	var video *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			video = &out.Streams[i]
			break
		}
	}
	if video == nil || video.Width <= 0 || video.Height <= 0 {
		return nil, errors.Wrap(videos.ErrUnreadableMedia, "no video stream")
	}

	duration := parseFloat(out.Format.Duration)
	if duration <= 0 {
		duration = parseFloat(video.Duration)
	}
	if duration <= 0 {
		return nil, errors.Wrapf(videos.ErrUnreadableMedia, "invalid duration %q", out.Format.Duration)
	}

	bitrate := parseInt(out.Format.BitRate)
	if bitrate == 0 {
		bitrate = parseInt(video.BitRate)
	}

	return &models.MediaInfo{
		DurationSeconds: duration,
		Width:           video.Width,
		Height:          video.Height,
		Codec:           video.CodecName,
		Bitrate:         bitrate,
	}, nil
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
