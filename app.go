package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"ytdownloader/internal/api"
	"ytdownloader/internal/config"
	"ytdownloader/internal/downloader"
	"ytdownloader/internal/format"
	"ytdownloader/internal/service"
	"ytdownloader/pkg/models"
)

var errNotReady = errors.New("application is not initialized")

// App struct
type App struct {
	ctx           context.Context
	configManager *config.Manager
	services      *service.Services
	downloader    *downloader.Downloader
	dispatcher    *downloader.Dispatcher
	server        *api.Server
	logger        *slog.Logger
}

// VideoDetails is the metadata and quality list shown before a download
type VideoDetails struct {
	Video   *models.VideoInfo `json:"video"`
	Options []format.Option   `json:"options"`
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{
		logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	cfgManager, err := config.NewManager(config.GetDefaultConfigPath())
	if err != nil {
		a.logger.Error("failed to load config", "err", err)
		return
	}
	a.configManager = cfgManager

	cfg, err := cfgManager.Effective()
	if err != nil {
		a.logger.Error("invalid configuration", "err", err)
		return
	}

	svc, err := service.New(cfg, service.Options{Logger: a.logger})
	if err != nil {
		a.logger.Error("failed to initialize services", "err", err)
		return
	}
	if err := svc.PrepareYtdlp(); err != nil {
		a.logger.Warn("yt-dlp setup failed", "err", err)
	}
	a.services = svc

	// Events go out on the dispatcher goroutine so a slow frontend never
	// stalls a transfer
	a.dispatcher = downloader.NewDispatcher(downloader.ReporterFunc(a.emit))
	a.downloader = svc.NewDownloader(a.dispatcher)

	tier, err := format.ParseTier(cfg.DefaultQuality)
	if err != nil {
		tier = format.Best
	}
	a.server = api.NewServer(api.Config{
		Port:        cfg.ServerPort,
		DownloadDir: config.DownloadDir(cfg),
		DefaultTier: tier,
		Logger:      a.logger.With("component", "api"),
	}, a.downloader, svc.Sessions)
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	if a.server != nil && a.server.IsRunning() {
		if err := a.server.Stop(); err != nil {
			a.logger.Warn("failed to stop server", "err", err)
		}
	}
	if a.downloader != nil {
		a.downloader.Cancel()
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
}

func (a *App) emit(u downloader.Update) {
	runtime.EventsEmit(a.ctx, "download:progress", u)

	switch u.Stage {
	case downloader.StageCompleted:
		runtime.EventsEmit(a.ctx, "download:completed", u)
	case downloader.StageFailed:
		runtime.EventsEmit(a.ctx, "download:failed", u)
	case downloader.StageCancelled:
		runtime.EventsEmit(a.ctx, "download:cancelled", u)
	}
}

func (a *App) ready() error {
	if a.services == nil {
		return errNotReady
	}
	return nil
}

// GetConfig returns the current configuration
func (a *App) GetConfig() *models.Config {
	if a.configManager == nil {
		return models.DefaultConfig()
	}
	return a.configManager.Get()
}

// UpdateConfig updates the configuration. Backend and path changes apply on
// the next start.
func (a *App) UpdateConfig(cfg *models.Config) error {
	if a.configManager == nil {
		return errNotReady
	}
	return a.configManager.Update(func(c *models.Config) {
		*c = *cfg
	})
}

// SelectDownloadDirectory opens a folder picker and returns the choice
func (a *App) SelectDownloadDirectory() (string, error) {
	return runtime.OpenDirectoryDialog(a.ctx, runtime.OpenDialogOptions{
		Title:            "Select download folder",
		DefaultDirectory: config.DownloadDir(a.GetConfig()),
	})
}

// FetchInfo resolves a video and the qualities it can be downloaded in
func (a *App) FetchInfo(url string) (*VideoDetails, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}

	info, err := a.downloader.FetchInfo(a.ctx, url)
	if err != nil {
		return nil, errors.New(downloader.UserMessage(err))
	}
	return &VideoDetails{Video: info, Options: format.Options(info.Formats)}, nil
}

// StartDownload begins a download in the background. Progress arrives as
// download:* events.
func (a *App) StartDownload(url, quality, destination string) error {
	if err := a.ready(); err != nil {
		return err
	}
	if a.downloader.Current() != nil {
		return errors.New(downloader.UserMessage(downloader.ErrBusy))
	}

	tier, err := format.ParseTier(quality)
	if err != nil {
		return err
	}
	if destination == "" {
		destination = config.DownloadDir(a.services.Config)
	}

	go func() {
		req := downloader.Request{URL: url, DestinationDir: destination, Tier: tier}
		if _, err := a.downloader.ExecuteDownload(a.ctx, req); err != nil {
			a.logger.Warn("download failed", "url", url, "err", err)
		}
	}()

	return nil
}

// GetCurrentDownload returns the running task, or nil when idle
func (a *App) GetCurrentDownload() *downloader.Task {
	if a.downloader == nil {
		return nil
	}
	return a.downloader.Current()
}

// PauseDownload pauses the running download
func (a *App) PauseDownload() bool {
	return a.downloader != nil && a.downloader.Pause()
}

// ResumeDownload resumes a paused download
func (a *App) ResumeDownload() bool {
	return a.downloader != nil && a.downloader.Resume()
}

// CancelDownload cancels the running download
func (a *App) CancelDownload() bool {
	return a.downloader != nil && a.downloader.Cancel()
}

// ListSessions returns the working directories left by downloads
func (a *App) ListSessions() []*models.Session {
	if a.services == nil {
		return nil
	}
	return a.services.Sessions.ListSessions()
}

// DeleteSession removes one session
func (a *App) DeleteSession(id string) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.services.Sessions.DeleteSession(id)
}

// ClearSessions removes every session while no download runs
func (a *App) ClearSessions() error {
	if err := a.ready(); err != nil {
		return err
	}
	if a.downloader.Current() != nil {
		return errors.New(downloader.UserMessage(downloader.ErrBusy))
	}
	_, _, err := a.services.Sessions.Clear()
	return err
}

// StartServer starts the HTTP server
func (a *App) StartServer() error {
	if a.server == nil {
		return errNotReady
	}
	return a.server.Start()
}

// StopServer stops the HTTP server
func (a *App) StopServer() error {
	if a.server == nil {
		return errNotReady
	}
	return a.server.Stop()
}

// GetServerStatus returns server status information
func (a *App) GetServerStatus() map[string]any {
	if a.server == nil {
		return map[string]any{"running": false}
	}
	return map[string]any{
		"running":      a.server.IsRunning(),
		"addr":         a.server.GetActualAddr(),
		"cacheSize":    a.services.Sessions.GetSize(),
		"sessionCount": len(a.services.Sessions.ListSessions()),
		"backend":      a.services.Backend(),
	}
}
