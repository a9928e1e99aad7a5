package muxer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/alessio/shellescape"
)

// DefaultTimeout bounds a single merge
const DefaultTimeout = 300 * time.Second

var ErrFFmpegNotFound = errors.New("ffmpeg not found")

// Metadata is written into the merged container
type Metadata struct {
	Title       string
	Artist      string
	Date        string
	Description string
}

// MergeError carries the tool's diagnostic output verbatim
type MergeError struct {
	Output string
	Err    error
}

func (e *MergeError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("ffmpeg merge failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg merge failed: %v: %s", e.Err, e.Output)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// FFmpegMuxer merges a video-only and an audio-only file with ffmpeg,
// copying the video stream and re-encoding audio
type FFmpegMuxer struct {
	Path       string
	AudioCodec string
	Timeout    time.Duration
	Logger     *slog.Logger
}

// NewFFmpegMuxer returns a new FFmpegMuxer.
// If path is empty, it looks for "ffmpeg" in PATH.
func NewFFmpegMuxer(path string, logger *slog.Logger) *FFmpegMuxer {
	if path == "" {
		path = "ffmpeg"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FFmpegMuxer{
		Path:       path,
		AudioCodec: "aac",
		Timeout:    DefaultTimeout,
		Logger:     logger,
	}
}

// Available checks if ffmpeg is executable
func (f *FFmpegMuxer) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Version returns the first line of `ffmpeg -version`
func (f *FFmpegMuxer) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, f.Path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Merge writes outputPath from videoPath and audioPath
func (f *FFmpegMuxer) Merge(ctx context.Context, videoPath, audioPath, outputPath string, meta Metadata) error {
	if !f.Available() {
		return &MergeError{Err: ErrFFmpegNotFound}
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.Path, f.args(videoPath, audioPath, outputPath, meta)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.Logger.Debug("executing command", "cmd", shellescape.QuoteCommand(cmd.Args))

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		return &MergeError{Output: strings.TrimSpace(stderr.String()), Err: err}
	}

	f.Logger.Info("merge complete", "output", outputPath, "elapsed", time.Since(start))

	return nil
}

func (f *FFmpegMuxer) args(videoPath, audioPath, outputPath string, meta Metadata) []string {
	codec := f.AudioCodec
	if codec == "" {
		codec = "aac"
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", codec,
	}

	if meta.Title != "" {
		args = append(args, "-metadata", "title="+meta.Title)
	}
	if meta.Artist != "" {
		args = append(args, "-metadata", "artist="+meta.Artist)
	}
	if meta.Date != "" {
		args = append(args, "-metadata", "date="+meta.Date)
	}
	if meta.Description != "" {
		args = append(args, "-metadata", "comment="+meta.Description)
	}

	return append(args, "-y", outputPath)
}
