package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"ytdownloader/internal/api"
	"ytdownloader/internal/cache"
	"ytdownloader/internal/cli"
	"ytdownloader/internal/config"
	"ytdownloader/internal/console"
	"ytdownloader/internal/downloader"
	"ytdownloader/internal/format"
	"ytdownloader/internal/progress"
	"ytdownloader/internal/service"
	"ytdownloader/internal/ytdl"
	"ytdownloader/pkg/models"
)

const Version = "0.1.0"

func main() {
	cliApp := cli.NewCLI(Version)

	cmd, code := cliApp.Run(os.Args[1:])
	if cmd == nil {
		os.Exit(code)
	}

	os.Exit(executeCommand(cmd))
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(colorable.NewColorableStderr(), &slog.HandlerOptions{Level: level}))
}

func executeCommand(cmd *cli.Command) int {
	logger := newLogger(cmd.Verbose)

	cfgMgr, err := config.NewManager(config.GetDefaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	cfg, err := cfgMgr.Effective()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if cmd.Backend != "" {
		cfg.Backend = cmd.Backend
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd.Type {
	case cli.CommandDownload:
		return runDownload(ctx, cmd, cfg, logger)
	case cli.CommandFormats:
		return runFormats(ctx, cmd.URLs[0], cfg, logger)
	case cli.CommandSessions:
		return runSessions(cmd, cfg, logger)
	case cli.CommandServe:
		return runServe(ctx, cmd.Port, cfg, logger)
	case cli.CommandUpdateYtdlp:
		return runUpdate(ctx, cmd.CheckOnly, logger)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd.String())
		return 1
	}
}

func setup(cfg *models.Config, logger *slog.Logger) (*service.Services, error) {
	svc, err := service.New(cfg, service.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := svc.PrepareYtdlp(); err != nil {
		// A yt-dlp on PATH may still work
		logger.Warn("yt-dlp setup failed", "err", err)
	}
	if !svc.Muxer.Available() {
		logger.Warn("ffmpeg not found; downloads that need merging will fail", "path", svc.Muxer.Path)
	}
	return svc, nil
}

func runDownload(ctx context.Context, cmd *cli.Command, cfg *models.Config, logger *slog.Logger) int {
	svc, err := setup(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	tier, err := format.ParseTier(cfg.DefaultQuality)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if cmd.Tier != nil {
		tier = *cmd.Tier
	}

	dest := cmd.OutputDir
	if dest == "" {
		dest = config.DownloadDir(cfg)
	}

	stdout := colorable.NewColorableStdout()

	if len(cmd.URLs) == 1 {
		renderer := console.New(stdout, isatty.IsTerminal(os.Stdout.Fd()))
		dl := svc.NewDownloader(renderer)

		if _, err := dl.ExecuteDownload(ctx, downloader.Request{URL: cmd.URLs[0], DestinationDir: dest, Tier: tier}); err != nil {
			logger.Debug("download failed", "err", err)
			return 1
		}
		return 0
	}

	return runBatch(ctx, svc, cmd, tier, dest, stdout, logger)
}

func runBatch(ctx context.Context, svc *service.Services, cmd *cli.Command, tier format.Tier, dest string, out io.Writer, logger *slog.Logger) int {
	workers := cmd.Concurrency
	if workers == 0 {
		workers = svc.Config.MaxConcurrentDownloads
	}
	workers = min(workers, len(cmd.URLs))

	var (
		mu     sync.Mutex
		failed []*downloader.Job
	)
	renderer := console.New(out, false)
	pool := svc.NewPool(workers, func(i int) downloader.Reporter {
		return renderer.Lane(strconv.Itoa(i + 1))
	}, func(job *downloader.Job) {
		if job.Status == downloader.JobFailed {
			mu.Lock()
			failed = append(failed, job)
			mu.Unlock()
		}
	})

	pool.Start(ctx)

	queued := 0
	for _, url := range cmd.URLs {
		err := pool.Queue(downloader.Request{URL: url, DestinationDir: dest, Tier: tier})
		if errors.Is(err, downloader.ErrAlreadyQueued) {
			logger.Warn("skipping duplicate url", "url", url)
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}
		queued++
	}

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	pool.Stop()

	if len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d downloads failed:\n", len(failed), queued)
		for _, job := range failed {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", job.Request.URL, downloader.UserMessage(job.Err))
		}
		return 1
	}
	if ctx.Err() != nil {
		return 1
	}
	return 0
}

func runFormats(ctx context.Context, url string, cfg *models.Config, logger *slog.Logger) int {
	svc, err := setup(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	info, err := svc.NewDownloader(nil).FetchInfo(ctx, url)
	if err != nil {
		fmt.Fprintln(os.Stderr, downloader.UserMessage(err))
		return 1
	}

	printFormats(colorable.NewColorableStdout(), info)
	return 0
}

func printFormats(w io.Writer, info *models.VideoInfo) {
	style := lipgloss.NewRenderer(w)
	title := style.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	heading := style.NewStyle().Bold(true)
	dimmed := style.NewStyle().Foreground(lipgloss.Color("241"))

	fmt.Fprintln(w, title.Render(info.Title))
	fmt.Fprintln(w, dimmed.Render(fmt.Sprintf("%s | %s | %d views",
		info.Uploader, progress.FormatETA(float64(info.Duration)), info.ViewCount)))

	fmt.Fprintln(w)
	fmt.Fprintln(w, heading.Render("Qualities"))
	for _, opt := range format.Options(info.Formats) {
		fmt.Fprintf(w, "  %-8s %s\n", opt.Tier, opt.Label)
	}

	listing := format.List(info.Formats)
	if len(listing.Combined) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, heading.Render("Video with audio"))
		for _, e := range listing.Combined {
			fmt.Fprintf(w, "  %s\n", e.Description)
		}
	}
	if len(listing.VideoOnly) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, heading.Render("Video only"))
		for _, e := range listing.VideoOnly {
			fmt.Fprintf(w, "  %s\n", e.Description)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, dimmed.Render(fmt.Sprintf("%d audio-only formats", listing.AudioCount)))
	if listing.MergeHeight > 0 {
		fmt.Fprintln(w, dimmed.Render(fmt.Sprintf("best quality merges %dp video with the best audio", listing.MergeHeight)))
	}
}

func runSessions(cmd *cli.Command, cfg *models.Config, logger *slog.Logger) int {
	sessions := cache.NewManager(config.CacheDir(cfg), logger)

	switch cmd.Action {
	case cli.SessionsExpire:
		removed, err := sessions.ExpireOlderThan(cmd.OlderThan)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Removed %d sessions\n", removed)
	case cli.SessionsDelete:
		if err := sessions.DeleteSession(cmd.SessionID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Removed session %s\n", cmd.SessionID)
	case cli.SessionsClear:
		files, size, err := sessions.Clear()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Removed %d files (%s)\n", files, progress.FormatBytes(float64(size)))
	default:
		list := sessions.ListSessions()
		if len(list) == 0 {
			fmt.Println("No sessions")
			return 0
		}
		for _, s := range list {
			age := time.Since(s.CreatedTime).Truncate(time.Minute)
			fmt.Printf("%s  %-16s %8s  %6s ago  %s\n", s.ID, s.Status, progress.FormatBytes(float64(s.Size)), age, s.Title)
		}
		fmt.Println(sessions.Summary())
	}

	return 0
}

func runServe(ctx context.Context, port int, cfg *models.Config, logger *slog.Logger) int {
	svc, err := setup(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	tier, err := format.ParseTier(cfg.DefaultQuality)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if port == 0 {
		port = cfg.ServerPort
	}

	// Progress is streamed through /api/status; stage changes are logged
	reporter := downloader.ReporterFunc(func(u downloader.Update) {
		if u.Snapshot == nil {
			logger.Info("download update", "task", u.TaskID, "stage", u.Stage, "status", u.Status)
		}
	})
	dispatcher := downloader.NewDispatcher(reporter)
	defer dispatcher.Close()

	server := api.NewServer(api.Config{
		Port:        port,
		DownloadDir: config.DownloadDir(cfg),
		DefaultTier: tier,
		Logger:      logger.With("component", "api"),
	}, svc.NewDownloader(dispatcher), svc.Sessions)

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}

	fmt.Printf("Server listening on %s\n", server.GetActualAddr())
	fmt.Println("Press Ctrl+C to stop")

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

func runUpdate(ctx context.Context, checkOnly bool, logger *slog.Logger) int {
	mgr := ytdl.NewManager(filepath.Join(config.GetDataDir(), "Utils"), logger)

	if checkOnly {
		latest, hasUpdate, err := mgr.CheckForUpdate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if hasUpdate {
			fmt.Printf("yt-dlp %s is available\n", latest)
		} else {
			fmt.Printf("yt-dlp is up to date (%s)\n", latest)
		}
		return 0
	}

	var err error
	if mgr.IsInstalled() {
		err = mgr.AutoUpdate()
	} else {
		err = mgr.Download()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	version, err := mgr.DetectVersion(ctx)
	if err != nil {
		version = mgr.GetCurrentVersion()
	}
	fmt.Printf("yt-dlp %s installed at %s\n", version, mgr.GetYtdlpPath())
	return 0
}
