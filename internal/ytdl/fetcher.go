package ytdl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/alessio/shellescape"

	"ytdownloader/internal/downloader"
	"ytdownloader/internal/progress"
)

const (
	// DefaultRetries is used for both --retries and --fragment-retries
	DefaultRetries = 3

	progressPrefix = "[dl] "
	stderrTail     = 20
)

var ErrDownloadFailed = errors.New("download failed")

var progressTemplate = "download:" + progressPrefix + strings.Join([]string{
	"%(progress.status)s",
	"%(progress.downloaded_bytes)s",
	"%(progress.total_bytes)s",
	"%(progress.total_bytes_estimate)s",
	"%(progress.fragment_index)s",
	"%(progress.fragment_count)s",
	"%(progress.speed)s",
	"%(progress.eta)s",
	"%(progress.filename)s",
}, "|")

// Fetcher downloads streams by running yt-dlp and parsing its progress lines
type Fetcher struct {
	Options
	Retries int
	// RateLimit is passed as --limit-rate when set, e.g. "2M"
	RateLimit string
}

// NewFetcher creates a stream fetcher
func NewFetcher(opts Options) *Fetcher {
	return &Fetcher{Options: opts, Retries: DefaultRetries}
}

func (f *Fetcher) args(req downloader.FetchRequest) []string {
	retries := f.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}

	args := []string{
		"-f", req.Selector,
		"-o", req.Template + ".%(ext)s",
		"--newline",
		"--progress",
		"--retries", strconv.Itoa(retries),
		"--fragment-retries", strconv.Itoa(retries),
		"--progress-template", progressTemplate,
	}
	args = append(args, f.commonArgs()...)
	if f.RateLimit != "" {
		args = append(args, "--limit-rate", f.RateLimit)
	}
	return append(args, req.URL)
}

// Fetch runs one yt-dlp transfer for req
func (f *Fetcher) Fetch(ctx context.Context, req downloader.FetchRequest, onProgress func(progress.Event)) error {
	cmd := exec.CommandContext(ctx, f.binary(), f.args(req)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr: %w", err)
	}

	logger := f.logger()
	logger.Debug("executing command", "cmd", shellescape.QuoteCommand(cmd.Args))

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	var (
		wg   sync.WaitGroup
		tail []string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		tail = collectTail(stderr, stderrTail)
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		ev, ok := ParseProgressLine(line)
		if !ok {
			logger.Debug("yt-dlp", "line", line)
			continue
		}
		if onProgress != nil {
			onProgress(ev)
		}
	}
	// Drain so yt-dlp never blocks on a full pipe
	_, _ = io.Copy(io.Discard, stdout)

	wg.Wait()
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.Join(tail, "\n")
		if msg == "" {
			return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		return fmt.Errorf("%w: %s", ErrDownloadFailed, msg)
	}

	return nil
}

// ParseProgressLine parses a line written by the progress template.
// yt-dlp prints "NA" for fields it does not know; those parse as zero.
func ParseProgressLine(line string) (progress.Event, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), progressPrefix)
	if !ok {
		return progress.Event{}, false
	}

	fields := strings.SplitN(rest, "|", 9)
	if len(fields) < 8 {
		return progress.Event{}, false
	}

	ev := progress.Event{
		Status:             fields[0],
		DownloadedBytes:    int64(number(fields[1])),
		TotalBytes:         int64(number(fields[2])),
		TotalBytesEstimate: int64(number(fields[3])),
		FragmentIndex:      int(number(fields[4])),
		FragmentCount:      int(number(fields[5])),
		Speed:              number(fields[6]),
		ETA:                number(fields[7]),
	}
	if len(fields) == 9 {
		ev.Filename = fields[8]
	}
	return ev, true
}

func number(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func collectTail(r io.Reader, n int) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}
