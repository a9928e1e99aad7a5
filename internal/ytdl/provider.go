package ytdl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"

	"ytdownloader/pkg/models"
)

// DefaultSocketTimeout is passed to yt-dlp as --socket-timeout, in seconds
const DefaultSocketTimeout = 20

var ErrExtractFailed = errors.New("yt-dlp failed to extract video info")

// Options are the yt-dlp flags shared by metadata and transfer commands
type Options struct {
	Path          string
	Proxy         string
	UserAgent     string
	SocketTimeout int
	Logger        *slog.Logger
}

func (o Options) binary() string {
	if o.Path == "" {
		return "yt-dlp"
	}
	return o.Path
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o Options) commonArgs() []string {
	timeout := o.SocketTimeout
	if timeout <= 0 {
		timeout = DefaultSocketTimeout
	}

	args := []string{"--no-playlist", "--no-warnings", "--socket-timeout", strconv.Itoa(timeout)}
	if o.Proxy != "" {
		args = append(args, "--proxy", o.Proxy)
	}
	if o.UserAgent != "" {
		args = append(args, "--user-agent", o.UserAgent)
	}
	return args
}

// Provider resolves video metadata with `yt-dlp -J`
type Provider struct {
	Options
}

// NewProvider creates a metadata provider
func NewProvider(opts Options) *Provider {
	return &Provider{Options: opts}
}

type videoJSON struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Duration    float64      `json:"duration"`
	Uploader    string       `json:"uploader"`
	UploadDate  string       `json:"upload_date"`
	ViewCount   int64        `json:"view_count"`
	Description string       `json:"description"`
	Thumbnail   string       `json:"thumbnail"`
	WebpageURL  string       `json:"webpage_url"`
	Formats     []formatJSON `json:"formats"`
}

type formatJSON struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	FPS            float64 `json:"fps"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	FileSize       int64   `json:"filesize"`
	FileSizeApprox float64 `json:"filesize_approx"`
	ABR            float64 `json:"abr"`
	FormatNote     string  `json:"format_note"`
}

// Resolve fetches the metadata of url
func (p *Provider) Resolve(ctx context.Context, url string) (*models.VideoInfo, error) {
	args := append([]string{"-J"}, p.commonArgs()...)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, p.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.logger().Debug("executing command", "cmd", shellescape.QuoteCommand(cmd.Args))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := lastLine(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%w: %v", ErrExtractFailed, err)
		}
		// yt-dlp reports network and extractor problems as text only
		return nil, fmt.Errorf("%s: %w", msg, err)
	}

	return parseVideo(stdout.Bytes(), url)
}

func parseVideo(data []byte, url string) (*models.VideoInfo, error) {
	var v videoJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrExtractFailed, err)
	}

	info := &models.VideoInfo{
		ID:          v.ID,
		URL:         v.WebpageURL,
		Title:       v.Title,
		Duration:    int(v.Duration),
		Uploader:    v.Uploader,
		UploadDate:  v.UploadDate,
		ViewCount:   v.ViewCount,
		Description: v.Description,
		Thumbnail:   v.Thumbnail,
		Formats:     make([]models.Format, 0, len(v.Formats)),
	}
	if info.URL == "" {
		info.URL = url
	}

	for _, f := range v.Formats {
		info.Formats = append(info.Formats, models.Format{
			ID:             f.FormatID,
			Height:         f.Height,
			Width:          f.Width,
			HasVideo:       hasStream(f.VCodec, f.Height > 0),
			HasAudio:       hasStream(f.ACodec, f.ABR > 0),
			Ext:            f.Ext,
			FPS:            f.FPS,
			FileSize:       f.FileSize,
			FileSizeApprox: int64(f.FileSizeApprox),
			AudioBitrate:   f.ABR,
			VideoCodec:     codecName(f.VCodec),
			AudioCodec:     codecName(f.ACodec),
			Note:           f.FormatNote,
		})
	}

	return info, nil
}

// yt-dlp marks an absent stream with the codec "none". A null or missing
// codec is unknown, so the stream counts only when implied
func hasStream(codec string, implied bool) bool {
	switch codec {
	case "none":
		return false
	case "":
		return implied
	default:
		return true
	}
}

func codecName(codec string) string {
	if codec == "none" {
		return ""
	}
	return codec
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
