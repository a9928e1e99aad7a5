package youtube

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"

	"ytdownloader/internal/progress"
)

const (
	copyBufferSize   = 32 << 10
	progressInterval = 250 * time.Millisecond
)

// copyStream copies src to dst, honouring ctx and limiter, and reports
// progress at most every progressInterval plus once on completion
func copyStream(ctx context.Context, dst io.Writer, src io.Reader, total int64, limiter *rate.Limiter, filename string, onProgress func(progress.Event)) (int64, error) {
	buf := make([]byte, copyBufferSize)
	start := time.Now()
	lastReport := start

	var written int64
	report := func(status string) {
		if onProgress == nil {
			return
		}
		ev := progress.Event{
			Status:          status,
			DownloadedBytes: written,
			TotalBytes:      total,
			Filename:        filename,
		}
		if elapsed := time.Since(start).Seconds(); elapsed > 0 && written > 0 {
			ev.Speed = float64(written) / elapsed
			if total > written {
				ev.ETA = float64(total-written) / ev.Speed
			}
		}
		onProgress(ev)
	}

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if err := wait(ctx, limiter, n); err != nil {
				return written, err
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)

			if now := time.Now(); now.Sub(lastReport) >= progressInterval {
				lastReport = now
				report(progress.StatusDownloading)
			}
		}

		if readErr == io.EOF {
			report(progress.StatusFinished)
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// wait blocks until the limiter allows n bytes. WaitN rejects requests
// larger than the burst, so those are split.
func wait(ctx context.Context, limiter *rate.Limiter, n int) error {
	if limiter == nil {
		return nil
	}
	burst := limiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
