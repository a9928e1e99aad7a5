// Package youtube resolves and downloads videos natively over
// github.com/kkdai/youtube/v2, without an external yt-dlp binary.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kkdai/youtube/v2"
	"golang.org/x/time/rate"

	"ytdownloader/internal/downloader"
	"ytdownloader/internal/progress"
	"ytdownloader/pkg/models"
)

const (
	// DefaultAttempts is how many times a stream transfer is tried
	DefaultAttempts = 3
	// DefaultTimeout bounds a single HTTP request
	DefaultTimeout = 5 * time.Minute
)

var ErrFormatUnavailable = errors.New("no stream matches the selector")

// Config configures a Client
type Config struct {
	Proxy     string
	UserAgent string
	// RateLimit caps transfer speed in bytes per second; zero disables it
	RateLimit int
	Attempts  int
	Logger    *slog.Logger
}

// Client implements both metadata resolution and stream transfer
type Client struct {
	yt       *youtube.Client
	limiter  *rate.Limiter
	attempts int
	logger   *slog.Logger
	backoff  time.Duration

	mu     sync.Mutex
	videos map[string]*youtube.Video
}

// NewClient creates a native client
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	var rt http.RoundTripper = transport
	if cfg.UserAgent != "" {
		rt = &userAgentTransport{next: transport, userAgent: cfg.UserAgent}
	}

	c := &Client{
		yt: &youtube.Client{
			HTTPClient: &http.Client{Transport: rt, Timeout: DefaultTimeout},
		},
		attempts: cfg.Attempts,
		logger:   logger,
		backoff:  time.Second,
		videos:   make(map[string]*youtube.Video),
	}
	if c.attempts <= 0 {
		c.attempts = DefaultAttempts
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	return c, nil
}

// Resolve fetches the metadata of rawURL
func (c *Client) Resolve(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	video, err := c.video(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return toVideoInfo(video, rawURL), nil
}

// Fetch downloads the stream req.Selector picks to req.Template plus the
// container extension
func (c *Client) Fetch(ctx context.Context, req downloader.FetchRequest, onProgress func(progress.Event)) error {
	video, err := c.video(ctx, req.URL)
	if err != nil {
		return err
	}

	formats := toFormats(video.Formats)
	idx := -1
	if req.Format != nil {
		idx = indexOf(formats, req.Format.ID)
	}
	if idx < 0 {
		idx = Match(formats, req.Selector)
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrFormatUnavailable, req.Selector)
	}

	format := &video.Formats[idx]
	path := req.Template + "." + formats[idx].Ext

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			c.logger.Warn("retrying stream transfer", "itag", format.ItagNo, "attempt", attempt, "err", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt-1)):
			}
		}

		lastErr = c.transfer(ctx, video, format, path, onProgress)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("transfer failed after %d attempts: %w", c.attempts, lastErr)
}

func (c *Client) transfer(ctx context.Context, video *youtube.Video, format *youtube.Format, path string, onProgress func(progress.Event)) error {
	stream, size, err := c.yt.GetStreamContext(ctx, video, format)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Close()

	partPath := path + ".part"
	file, err := os.Create(partPath)
	if err != nil {
		return fmt.Errorf("opening output file: %w", err)
	}

	_, err = copyStream(ctx, file, stream, size, c.limiter, path, onProgress)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partPath)
		return err
	}

	return os.Rename(partPath, path)
}

func (c *Client) video(ctx context.Context, rawURL string) (*youtube.Video, error) {
	c.mu.Lock()
	video, ok := c.videos[rawURL]
	c.mu.Unlock()
	if ok {
		return video, nil
	}

	video, err := c.yt.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, wrapVideoError(err)
	}

	c.mu.Lock()
	c.videos[rawURL] = video
	c.mu.Unlock()

	return video, nil
}

func wrapVideoError(err error) error {
	var statusErr *youtube.ErrPlayabiltyStatus
	switch {
	case errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.As(err, &statusErr):
		return &downloader.MetadataError{Kind: downloader.MetadataExtractionFailed, Err: fmt.Errorf("restricted content: %w", err)}
	case errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength):
		return &downloader.MetadataError{Kind: downloader.MetadataExtractionFailed, Err: fmt.Errorf("invalid video URL: %w", err)}
	default:
		return err
	}
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}

func toVideoInfo(video *youtube.Video, rawURL string) *models.VideoInfo {
	info := &models.VideoInfo{
		ID:          video.ID,
		URL:         rawURL,
		Title:       video.Title,
		Duration:    int(video.Duration.Seconds()),
		Uploader:    video.Author,
		ViewCount:   int64(video.Views),
		Description: video.Description,
		Formats:     toFormats(video.Formats),
	}
	if !video.PublishDate.IsZero() {
		info.UploadDate = video.PublishDate.Format("20060102")
	}
	if n := len(video.Thumbnails); n > 0 {
		info.Thumbnail = video.Thumbnails[n-1].URL
	}
	return info
}

func toFormats(formats youtube.FormatList) []models.Format {
	out := make([]models.Format, 0, len(formats))
	for _, f := range formats {
		out = append(out, toFormat(f))
	}
	return out
}

func toFormat(f youtube.Format) models.Format {
	mime, params, _ := strings.Cut(f.MimeType, ";")
	kind, subtype, _ := strings.Cut(strings.TrimSpace(mime), "/")

	hasVideo := kind == "video"
	hasAudio := f.AudioChannels > 0 || kind == "audio"

	var videoCodec, audioCodec string
	codecs := codecList(params)
	switch {
	case hasVideo && hasAudio && len(codecs) >= 2:
		videoCodec, audioCodec = codecs[0], codecs[1]
	case hasVideo && len(codecs) > 0:
		videoCodec = codecs[0]
	case hasAudio && len(codecs) > 0:
		audioCodec = codecs[0]
	}

	ext := subtype
	switch {
	case kind == "audio" && subtype == "mp4":
		ext = "m4a"
	case subtype == "3gpp":
		ext = "3gp"
	case subtype == "":
		ext = "bin"
	}

	var abr float64
	if hasAudio && !hasVideo {
		abr = float64(bitrate(f)) / 1000
	}

	return models.Format{
		ID:           strconv.Itoa(f.ItagNo),
		Height:       f.Height,
		Width:        f.Width,
		HasVideo:     hasVideo,
		HasAudio:     hasAudio,
		Ext:          ext,
		FPS:          float64(f.FPS),
		FileSize:     f.ContentLength,
		AudioBitrate: abr,
		VideoCodec:   videoCodec,
		AudioCodec:   audioCodec,
		Note:         f.QualityLabel,
	}
}

func codecList(params string) []string {
	_, value, ok := strings.Cut(params, "codecs=")
	if !ok {
		return nil
	}
	value = strings.Trim(strings.TrimSpace(value), `"`)

	var codecs []string
	for _, c := range strings.Split(value, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codecs = append(codecs, c)
		}
	}
	return codecs
}

func bitrate(f youtube.Format) int {
	if f.AverageBitrate > 0 {
		return f.AverageBitrate
	}
	return f.Bitrate
}
