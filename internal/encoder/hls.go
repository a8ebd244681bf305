package encoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
)

const segmentPattern = "seg_%03d.ts"

// Encode renders one quality as an HLS VOD rendition in its own directory.
func (e *ffmpegEncoder) Encode(ctx context.Context, req *models.EncodeRequest, onProgress func(float64)) (*models.EncodeResult, error) {
	quality := string(req.Profile.Name)
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, encodeError(quality, "create output dir: %v", err)
	}
	if req.SegmentSeconds <= 0 {
		req.SegmentSeconds = e.cfg.SegmentSeconds
	}

	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath, hlsArgs(req, e.cfg.Preset)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, encodeError(quality, "stdout pipe: %v", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err = cmd.Start(); err != nil {
		return nil, encodeError(quality, "ffmpeg start: %v", err)
	}

	// stdout must be drained before Wait
	consumeProgress(stdout, req.DurationSeconds, onProgress)

	if err = cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, encodeError(quality, "ffmpeg: %v: %s", err, tail(stderr.String()))
	}

	segments, err := filepath.Glob(filepath.Join(req.OutputDir, "seg_*.ts"))
	if err != nil {
		return nil, encodeError(quality, "list segments: %v", err)
	}
	playlist := filepath.Join(req.OutputDir, models.VariantPlaylist)
	if _, err = os.Stat(playlist); err != nil || len(segments) == 0 {
		return nil, encodeError(quality, "no playlist or segments produced")
	}
	if onProgress != nil {
		onProgress(1)
	}

	e.logger.Debugf("Encode - %s produced %d segments", quality, len(segments))
	return &models.EncodeResult{
		Quality:      req.Profile.Name,
		OutputDir:    req.OutputDir,
		PlaylistPath: playlist,
		SegmentCount: len(segments),
	}, nil
}

func hlsArgs(req *models.EncodeRequest, preset string) []string {
	p := req.Profile
	maxRate := p.MaxBitrate
	if maxRate <= 0 {
		maxRate = p.VideoBitrate
	}
	return []string{
		"-y",
		"-hide_banner",
		"-i", req.SourcePath,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-vf", fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=ceil(iw/2)*2:ceil(ih/2)*2", p.Width, p.Height),
		"-c:v", "libx264",
		"-preset", preset,
		"-profile:v", "main",
		"-b:v", fmt.Sprintf("%dk", p.VideoBitrate),
		"-maxrate", fmt.Sprintf("%dk", maxRate),
		"-bufsize", fmt.Sprintf("%dk", p.VideoBitrate*2),
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", req.SegmentSeconds),
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", p.AudioBitrate),
		"-ac", "2",
		"-f", "hls",
		"-hls_time", strconv.Itoa(req.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(req.OutputDir, segmentPattern),
		"-progress", "pipe:1",
		"-nostats",
		filepath.Join(req.OutputDir, models.VariantPlaylist),
	}
}

// consumeProgress reads ffmpeg's -progress key=value stream and reports the encoded fraction.
func consumeProgress(r io.Reader, duration float64, onProgress func(float64)) {
	scanner := bufio.NewScanner(r)
	last := -1.0
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		var fraction float64
		switch key {
		// both keys carry microseconds
		case "out_time_us", "out_time_ms":
			if duration <= 0 {
				continue
			}
			us, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			fraction = us / 1e6 / duration
		case "progress":
			if value != "end" {
				continue
			}
			fraction = 1
		default:
			continue
		}
		if fraction > 1 {
			fraction = 1
		}
		if fraction < 0 {
			fraction = 0
		}
		// report in whole-percent steps
		if fraction-last < 0.01 && fraction < 1 {
			continue
		}
		last = fraction
		if onProgress != nil {
			onProgress(fraction)
		}
	}
	// drain so ffmpeg never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}
