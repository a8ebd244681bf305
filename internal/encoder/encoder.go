package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
	"github.com/pkg/errors"
)

// keep this much of ffmpeg's stderr in error messages
const stderrTail = 2048

type ffmpegEncoder struct {
	cfg    config.EncoderConfig
	logger logger.Logger
}

func NewFFmpegEncoder(cfg *config.Config, logger logger.Logger) videos.Encoder {
	return &ffmpegEncoder{
		cfg:    cfg.Encoder,
		logger: logger,
	}
}

func (e *ffmpegEncoder) Thumbnail(ctx context.Context, path string, atSeconds float64, outPath string) error {
	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath, thumbnailArgs(path, atSeconds, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, "ffmpeg thumbnail failed, stderr: %s", tail(stderr.String()))
	}
	return nil
}

func thumbnailArgs(path string, atSeconds float64, outPath string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-ss", strconv.FormatFloat(atSeconds, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-vf", "scale=640:-2",
		"-q:v", "2",
		outPath,
	}
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	return "..." + s[len(s)-stderrTail:]
}

func encodeError(quality, format string, args ...interface{}) error {
	return &videos.EncodeError{Quality: quality, Message: fmt.Sprintf(format, args...)}
}
