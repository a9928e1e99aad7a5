// Package service assembles the downloader and its collaborators from a
// configuration.
package service

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"ytdownloader/internal/cache"
	"ytdownloader/internal/config"
	"ytdownloader/internal/downloader"
	"ytdownloader/internal/muxer"
	"ytdownloader/internal/youtube"
	"ytdownloader/internal/ytdl"
	"ytdownloader/pkg/models"
)

// Options tunes New
type Options struct {
	// DataDir holds the managed yt-dlp binary; defaults to config.GetDataDir
	DataDir string
	Logger  *slog.Logger
}

// Services holds everything a download needs
type Services struct {
	Config   *models.Config
	Sessions *cache.Manager
	Ytdlp    *ytdl.Manager
	Muxer    *muxer.FFmpegMuxer

	provider downloader.MetadataProvider
	fetcher  downloader.StreamFetcher
	logger   *slog.Logger
}

// New builds the services for cfg. The backend is chosen by cfg.Backend.
func New(cfg *models.Config, opts Options) (*Services, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = config.GetDataDir()
	}

	s := &Services{
		Config:   cfg,
		Sessions: cache.NewManager(config.CacheDir(cfg), logger.With("component", "sessions")),
		Ytdlp:    ytdl.NewManager(filepath.Join(dataDir, "Utils"), logger.With("component", "ytdlp-manager")),
		Muxer:    muxer.NewFFmpegMuxer(cfg.FFmpegPath, logger.With("component", "ffmpeg")),
		logger:   logger,
	}

	switch cfg.Backend {
	case models.BackendNative:
		client, err := youtube.NewClient(youtube.Config{
			Proxy:     cfg.Proxy,
			UserAgent: cfg.UserAgent,
			RateLimit: cfg.RateLimitKBps * 1024,
			Logger:    logger.With("component", "native"),
		})
		if err != nil {
			return nil, err
		}
		s.provider = client
		s.fetcher = client
	case models.BackendYtdlp, "":
		ytOpts := ytdl.Options{
			Path:      s.Ytdlp.ResolvePath(cfg.YtdlpPath),
			Proxy:     cfg.Proxy,
			UserAgent: cfg.UserAgent,
			Logger:    logger.With("component", "yt-dlp"),
		}
		fetcher := ytdl.NewFetcher(ytOpts)
		if cfg.RateLimitKBps > 0 {
			fetcher.RateLimit = fmt.Sprintf("%dK", cfg.RateLimitKBps)
		}
		s.provider = ytdl.NewProvider(ytOpts)
		s.fetcher = fetcher
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Backend)
	}

	if cfg.SessionMaxAgeHours > 0 {
		maxAge := time.Duration(cfg.SessionMaxAgeHours) * time.Hour
		if _, err := s.Sessions.ExpireOlderThan(maxAge); err != nil {
			logger.Warn("failed to expire old sessions", "err", err)
		}
	}

	return s, nil
}

// Backend returns the configured backend name
func (s *Services) Backend() string {
	if s.Config.Backend == "" {
		return models.BackendYtdlp
	}
	return s.Config.Backend
}

// PrepareYtdlp installs the managed yt-dlp when the ytdlp backend has no
// configured binary, and updates it when auto update is enabled
func (s *Services) PrepareYtdlp() error {
	if s.Backend() != models.BackendYtdlp || s.Config.YtdlpPath != "" {
		return nil
	}

	if err := s.Ytdlp.EnsureInstalled(); err != nil {
		return fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	if s.Config.AutoUpdateYtdlp {
		if err := s.Ytdlp.AutoUpdate(); err != nil {
			s.logger.Warn("failed to update yt-dlp", "err", err)
		}
	}

	// Point the adapters at the managed binary now that it exists
	path := s.Ytdlp.GetYtdlpPath()
	if p, ok := s.provider.(*ytdl.Provider); ok {
		p.Path = path
	}
	if f, ok := s.fetcher.(*ytdl.Fetcher); ok {
		f.Path = path
	}

	return nil
}

// NewDownloader creates a downloader over the shared services. reporter
// may be nil.
func (s *Services) NewDownloader(reporter downloader.Reporter) *downloader.Downloader {
	return downloader.New(s.provider, s.fetcher, s.Muxer, s.Sessions, reporter, downloader.Options{
		ResolveTimeout: config.ResolveTimeout(s.Config),
		Logger:         s.logger.With("component", "downloader"),
	})
}

// NewPool creates a pool of n downloaders. reporter, when set, returns the
// reporter of worker i.
func (s *Services) NewPool(n int, reporter func(i int) downloader.Reporter, onDone func(*downloader.Job)) *downloader.Pool {
	if n < 1 {
		n = 1
	}
	workers := make([]*downloader.Downloader, n)
	for i := range workers {
		var r downloader.Reporter
		if reporter != nil {
			r = reporter(i)
		}
		workers[i] = s.NewDownloader(r)
	}
	return downloader.NewPool(workers, onDone)
}
