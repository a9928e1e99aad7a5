package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ytdownloader/internal/cache"
	"ytdownloader/internal/filename"
	"ytdownloader/internal/format"
	"ytdownloader/internal/muxer"
	"ytdownloader/internal/progress"
	"ytdownloader/pkg/models"
)

const (
	// DefaultResolveTimeout bounds how long metadata resolution may take
	DefaultResolveTimeout = 20 * time.Second
	// DefaultMinFreeSpace is the free space below which a warning is logged
	DefaultMinFreeSpace = 1000 << 20
)

// Progress ranges of a dual-stream download, in percent
const (
	videoEnd     = 60.0
	audioEnd     = 90.0
	mergeRunning = 95.0
)

// MetadataProvider resolves a video URL into its metadata
type MetadataProvider interface {
	Resolve(ctx context.Context, url string) (*models.VideoInfo, error)
}

// FetchRequest describes one stream transfer. Template is the output path
// without extension; the fetcher appends the container extension.
type FetchRequest struct {
	URL      string
	Selector string
	Format   *models.Format
	Template string
}

// StreamFetcher performs one transfer, retrying internally, and reports raw
// progress through onProgress
type StreamFetcher interface {
	Fetch(ctx context.Context, req FetchRequest, onProgress func(progress.Event)) error
}

// Muxer combines separate video and audio files
type Muxer interface {
	Merge(ctx context.Context, videoPath, audioPath, outputPath string, meta muxer.Metadata) error
}

// SessionStore creates and tracks per-download working directories
type SessionStore interface {
	CreateSession(title, quality string) (*models.Session, string, error)
	UpdateStatus(workingDir string, status models.SessionStatus)
	RemoveDir(workingDir string) error
}

// Request is one download request
type Request struct {
	URL            string
	DestinationDir string
	Tier           format.Tier
	// Info skips metadata resolution when set
	Info *models.VideoInfo
}

// Options tunes a Downloader. Zero values select the defaults.
type Options struct {
	ResolveTimeout time.Duration
	MinFreeSpace   uint64
	Logger         *slog.Logger
}

// Downloader drives one download at a time through metadata resolution,
// format selection, transfer and merge
type Downloader struct {
	provider MetadataProvider
	fetcher  StreamFetcher
	muxer    Muxer
	sessions SessionStore
	reporter Reporter
	logger   *slog.Logger

	sizes      *progress.SizeCache
	normalizer *progress.Normalizer

	resolveTimeout time.Duration
	minFreeSpace   uint64
	freeSpace      func(string) (uint64, error)

	mu        sync.Mutex
	active    *Task
	cancel    context.CancelFunc
	cancelled bool
	paused    atomic.Bool

	infoMu sync.Mutex
	info   map[string]*models.VideoInfo
}

// New creates a downloader. reporter may be nil.
func New(provider MetadataProvider, fetcher StreamFetcher, mux Muxer, sessions SessionStore, reporter Reporter, opts Options) *Downloader {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if reporter == nil {
		reporter = discard{}
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = DefaultResolveTimeout
	}
	if opts.MinFreeSpace == 0 {
		opts.MinFreeSpace = DefaultMinFreeSpace
	}

	sizes := progress.NewSizeCache(logger)

	return &Downloader{
		provider:       provider,
		fetcher:        fetcher,
		muxer:          mux,
		sessions:       sessions,
		reporter:       reporter,
		logger:         logger,
		sizes:          sizes,
		normalizer:     progress.NewNormalizer(sizes),
		resolveTimeout: opts.ResolveTimeout,
		minFreeSpace:   opts.MinFreeSpace,
		freeSpace:      freeSpace,
		info:           make(map[string]*models.VideoInfo),
	}
}

// FetchInfo resolves url and remembers the result for a later download of
// the same URL
func (d *Downloader) FetchInfo(ctx context.Context, url string) (*models.VideoInfo, error) {
	info, err := d.resolve(ctx, url)
	if err != nil {
		return nil, err
	}

	d.infoMu.Lock()
	d.info[url] = info
	d.infoMu.Unlock()

	return info, nil
}

// ExecuteDownload runs req to completion and returns the finished task.
// The task is also returned on failure; its Stage tells how it ended.
func (d *Downloader) ExecuteDownload(ctx context.Context, req Request) (*Task, error) {
	d.mu.Lock()
	if d.active != nil {
		d.mu.Unlock()
		return nil, ErrBusy
	}

	ctx, cancel := context.WithCancel(ctx)
	task := &Task{
		ID:             d.sizes.Begin(),
		URL:            req.URL,
		Tier:           req.Tier,
		DestinationDir: req.DestinationDir,
		Stage:          StageWaiting,
		StartedAt:      time.Now(),
	}
	d.active = task
	d.cancel = cancel
	d.cancelled = false
	d.paused.Store(false)
	d.mu.Unlock()

	defer func() {
		cancel()
		d.mu.Lock()
		d.active = nil
		d.cancel = nil
		d.mu.Unlock()
	}()

	d.logger.Info("starting download", "task", task.ID, "url", req.URL, "quality", req.Tier)

	err := d.run(ctx, task, req)
	if err == nil {
		return d.snapshot(task), nil
	}

	d.mu.Lock()
	userCancelled := d.cancelled
	d.mu.Unlock()

	if userCancelled || errors.Is(err, context.Canceled) {
		return d.abort(task)
	}

	return d.fail(task, err)
}

// Current returns a copy of the running task, or nil when idle
func (d *Downloader) Current() *Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active == nil {
		return nil
	}
	taskCopy := *d.active
	return &taskCopy
}

// Pause suppresses progress reporting. The transfer itself keeps running.
func (d *Downloader) Pause() bool {
	return d.setPaused(true)
}

// Resume re-enables progress reporting
func (d *Downloader) Resume() bool {
	return d.setPaused(false)
}

// TogglePause flips the pause flag and returns the new state. It returns
// false when idle.
func (d *Downloader) TogglePause() bool {
	paused := !d.paused.Load()
	return d.setPaused(paused) && paused
}

func (d *Downloader) setPaused(paused bool) bool {
	d.mu.Lock()
	task := d.active
	if task == nil {
		d.mu.Unlock()
		return false
	}
	d.paused.Store(paused)
	task.Paused = paused
	u := Update{TaskID: task.ID, Stage: task.Stage, Percent: task.Percent, Status: task.Status, Paused: paused}
	d.mu.Unlock()

	if paused {
		u.Status = "paused"
	}
	d.reporter.Report(u)
	return true
}

// Cancel stops the running download. It returns false when idle.
func (d *Downloader) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active == nil || d.cancel == nil {
		return false
	}
	d.cancelled = true
	d.cancel()
	d.logger.Info("cancelling download", "task", d.active.ID)
	return true
}

func (d *Downloader) run(ctx context.Context, task *Task, req Request) error {
	d.advance(task, StageWaiting, 0, "resolving video info", nil)

	info := req.Info
	if info == nil {
		d.infoMu.Lock()
		info = d.info[req.URL]
		d.infoMu.Unlock()
	}
	if info == nil {
		var err error
		if info, err = d.resolve(ctx, req.URL); err != nil {
			return err
		}
	}

	plan, err := format.Select(req.Tier, info.Formats)
	if err != nil {
		return err
	}

	cleanTitle := filename.Sanitize(info.Title)
	name := filename.Resolve(cleanTitle, plan.ResolutionSuffix)
	output := filepath.Join(req.DestinationDir, name)

	d.mu.Lock()
	task.Title = info.Title
	task.Plan = plan
	task.Filename = name
	task.OutputPath = output
	d.mu.Unlock()

	if _, err := os.Stat(output); err == nil {
		return &FileExistsError{Path: output}
	}

	if err := os.MkdirAll(req.DestinationDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	d.checkDiskSpace(req.DestinationDir)

	session, workDir, err := d.sessions.CreateSession(info.Title, req.Tier.String())
	if err != nil {
		return err
	}

	d.mu.Lock()
	task.SessionID = session.ID
	task.WorkingDir = workDir
	d.mu.Unlock()

	for kind, size := range format.PrefetchSizes(plan) {
		d.sizes.SetPrefetched(task.ID, kind, size)
	}

	d.logger.Info("format selected", "task", task.ID, "mode", plan.Mode, "height", plan.Height, "output", output)

	if plan.Mode == format.ModeDual {
		err = d.runDual(ctx, task, info, plan, cleanTitle)
	} else {
		err = d.runSingle(ctx, task, plan, cleanTitle)
	}
	if err != nil {
		if ctx.Err() == nil {
			d.sessions.UpdateStatus(workDir, models.SessionFailed)
		}
		return err
	}

	d.sessions.UpdateStatus(workDir, models.SessionCompleted)
	d.finish(task, StageCompleted, "download complete", nil)
	d.logger.Info("download completed", "task", task.ID, "output", output)

	return nil
}

func (d *Downloader) runDual(ctx context.Context, task *Task, info *models.VideoInfo, plan *format.Plan, cleanTitle string) error {
	workDir := task.WorkingDir

	d.advance(task, StageFetchingVideo, 0, "downloading video", nil)
	videoPath, err := d.fetch(ctx, task, progress.KindVideo, FetchRequest{
		URL:      task.URL,
		Selector: plan.VideoSelector,
		Format:   plan.Video,
		Template: filepath.Join(workDir, cleanTitle+"_video"),
	}, 0, videoEnd)
	if err != nil {
		return err
	}
	d.sessions.UpdateStatus(workDir, models.SessionVideoDownloaded)

	d.advance(task, StageFetchingAudio, videoEnd, "downloading audio", nil)
	audioPath, err := d.fetch(ctx, task, progress.KindAudio, FetchRequest{
		URL:      task.URL,
		Selector: plan.AudioSelector,
		Format:   plan.Audio,
		Template: filepath.Join(workDir, cleanTitle+"_audio"),
	}, videoEnd, audioEnd)
	if err != nil {
		return err
	}
	d.sessions.UpdateStatus(workDir, models.SessionAudioDownloaded)

	d.mu.Lock()
	task.VideoPath = videoPath
	task.AudioPath = audioPath
	d.mu.Unlock()

	d.advance(task, StageMerging, audioEnd, "merging video and audio", nil)
	d.advance(task, StageMerging, mergeRunning, "merging video and audio", nil)

	meta := muxer.Metadata{
		Title:       info.Title,
		Artist:      info.Uploader,
		Date:        info.UploadDate,
		Description: info.Description,
	}
	// Merge inside the session so a failed or cancelled merge never leaves a
	// partial file at the destination
	merged := filepath.Join(workDir, filepath.Base(task.OutputPath))
	if err := d.muxer.Merge(ctx, videoPath, audioPath, merged, meta); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mergeErr := &MergeError{Err: err}
		var toolErr *muxer.MergeError
		if errors.As(err, &toolErr) {
			mergeErr.Output = toolErr.Output
		}
		return mergeErr
	}
	if err := moveFile(merged, task.OutputPath); err != nil {
		return &FileMoveError{Source: merged, Destination: task.OutputPath, Err: err}
	}

	for _, path := range []string{videoPath, audioPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("failed to remove temporary file", "path", path, "err", err)
		}
	}

	return nil
}

func (d *Downloader) runSingle(ctx context.Context, task *Task, plan *format.Plan, cleanTitle string) error {
	workDir := task.WorkingDir

	d.advance(task, StageFetchingVideo, 0, "downloading", nil)
	_, err := d.fetch(ctx, task, progress.KindMain, FetchRequest{
		URL:      task.URL,
		Selector: plan.Selector,
		Format:   plan.Primary,
		Template: filepath.Join(workDir, cleanTitle),
	}, 0, 100)
	if err != nil {
		return err
	}
	d.sessions.UpdateStatus(workDir, models.SessionDownloaded)

	source, err := firstArtifact(workDir)
	if err != nil {
		return &FileMoveError{Destination: task.OutputPath, Err: err}
	}
	if err := moveFile(source, task.OutputPath); err != nil {
		return &FileMoveError{Source: source, Destination: task.OutputPath, Err: err}
	}

	return nil
}

// fetch runs one transfer mapped onto [lo, hi] of the overall progress and
// returns the produced file
func (d *Downloader) fetch(ctx context.Context, task *Task, kind progress.Kind, req FetchRequest, lo, hi float64) (string, error) {
	stage := StageFetchingVideo
	if kind == progress.KindAudio {
		stage = StageFetchingAudio
	}

	onProgress := func(ev progress.Event) {
		if ctx.Err() != nil || d.sizes.Current() != task.ID || d.paused.Load() {
			return
		}

		snap, ok := d.normalizer.Normalize(task.ID, kind, ev)
		if !ok {
			return
		}

		pct := lo
		if snap.HasFraction || snap.Placeholder {
			pct = lo + snap.Fraction*(hi-lo)
		}
		d.advance(task, stage, pct, progress.Describe(kind.String(), snap), &snap)
	}

	if err := d.fetcher.Fetch(ctx, req, onProgress); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransferError{Kind: kind, Err: err}
	}

	if kind == progress.KindMain {
		return "", nil
	}

	path, err := findOutput(req.Template)
	if err != nil {
		return "", &TransferError{Kind: kind, Err: err}
	}
	return path, nil
}

// advance moves task forward and reports it. Percent never decreases
// within a stage and stages never move backwards.
func (d *Downloader) advance(task *Task, stage Stage, percent float64, status string, snap *progress.Snapshot) {
	d.mu.Lock()
	if stage < task.Stage || task.Stage.Terminal() {
		d.mu.Unlock()
		return
	}
	if percent < task.Percent {
		percent = task.Percent
	}
	task.Stage = stage
	task.Percent = percent
	task.Status = status

	u := Update{
		TaskID:   task.ID,
		Stage:    stage,
		Percent:  percent,
		Status:   status,
		Snapshot: snap,
		Paused:   task.Paused,
	}
	if snap != nil {
		u.Kind = stageKind(stage, task.Plan)
	}
	d.mu.Unlock()

	d.reporter.Report(u)
}

func (d *Downloader) finish(task *Task, stage Stage, status string, err error) {
	d.mu.Lock()
	task.Stage = stage
	task.Status = status
	task.FinishedAt = time.Now()
	if stage == StageCompleted {
		task.Percent = 100
	}
	if err != nil {
		task.Err = err
		task.Error = err.Error()
	}
	u := Update{
		TaskID:  task.ID,
		Stage:   stage,
		Percent: task.Percent,
		Status:  status,
		Error:   task.Error,
	}
	if stage == StageCompleted {
		u.Path = task.OutputPath
	}
	d.mu.Unlock()

	d.reporter.Report(u)
}

func (d *Downloader) fail(task *Task, err error) (*Task, error) {
	d.logger.Error("download failed", "task", task.ID, "url", task.URL, "err", err)
	d.finish(task, StageFailed, UserMessage(err), err)
	return d.snapshot(task), err
}

func (d *Downloader) abort(task *Task) (*Task, error) {
	if task.WorkingDir != "" {
		if err := d.sessions.RemoveDir(task.WorkingDir); err != nil {
			d.logger.Warn("failed to remove working directory", "dir", task.WorkingDir, "err", err)
		}
	}

	d.logger.Info("download cancelled", "task", task.ID)
	d.finish(task, StageCancelled, UserMessage(ErrCancelled), ErrCancelled)
	return d.snapshot(task), ErrCancelled
}

func (d *Downloader) snapshot(task *Task) *Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	taskCopy := *task
	return &taskCopy
}

// resolve bounds provider.Resolve by the resolve timeout. On timeout the
// provider call is abandoned and its result discarded.
func (d *Downloader) resolve(ctx context.Context, url string) (*models.VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.resolveTimeout)
	defer cancel()

	type result struct {
		info *models.VideoInfo
		err  error
	}
	done := make(chan result, 1)

	go func() {
		info, err := d.provider.Resolve(ctx, url)
		done <- result{info, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.Canceled) {
				return nil, r.err
			}
			return nil, classifyMetadataError(r.err)
		}
		if r.info == nil {
			return nil, &MetadataError{Kind: MetadataExtractionFailed, Err: errors.New("provider returned no info")}
		}
		return r.info, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			d.logger.Warn("metadata resolution timed out", "url", url, "timeout", d.resolveTimeout)
			return nil, &MetadataError{Kind: MetadataTimeout, Err: ctx.Err()}
		}
		return nil, ctx.Err()
	}
}

func (d *Downloader) checkDiskSpace(dir string) {
	free, err := d.freeSpace(dir)
	if err != nil {
		d.logger.Warn("failed to check free disk space", "path", dir, "err", err)
		return
	}
	if free < d.minFreeSpace {
		d.logger.Warn("low disk space", "path", dir, "free", progress.FormatBytes(float64(free)))
	}
}

func stageKind(stage Stage, plan *format.Plan) string {
	switch {
	case plan != nil && plan.Mode == format.ModeSingle:
		return progress.KindMain.String()
	case stage == StageFetchingAudio:
		return progress.KindAudio.String()
	default:
		return progress.KindVideo.String()
	}
}

// artifact reports whether name is a finished download rather than a
// session record or an in-progress fragment
func artifact(name string) bool {
	if name == cache.SessionFile {
		return false
	}
	for _, ext := range []string{".part", ".ytdl", ".temp"} {
		if strings.HasSuffix(name, ext) {
			return false
		}
	}
	return true
}

func firstArtifact(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() && artifact(entry.Name()) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", ErrNoOutput
}

// findOutput locates the file a fetcher wrote for template
func findOutput(template string) (string, error) {
	matches, err := filepath.Glob(escapeGlob(template) + ".*")
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if artifact(filepath.Base(m)) {
			return m, nil
		}
	}
	return "", ErrNoOutput
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	if filepath.Separator == '\\' {
		// Backslash is the path separator on Windows and cannot escape
		r = strings.NewReplacer(`[`, `[[]`)
	}
	return r.Replace(s)
}

// moveFile renames src to dst, copying when they are on different devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	in.Close()
	return os.Remove(src)
}
