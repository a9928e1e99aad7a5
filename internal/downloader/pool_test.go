package downloader

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdownloader/internal/format"
	"ytdownloader/internal/progress"
	"ytdownloader/pkg/models"
)

func TestPoolRunsQueuedDownloads(t *testing.T) {
	provider := &fakeProvider{ResolveFunc: func(ctx context.Context, url string) (*models.VideoInfo, error) {
		info := singleInfo()
		info.Title = "video " + url[len(url)-1:]
		return info, nil
	}}
	fetcher := &fakeFetcher{FetchFunc: func(ctx context.Context, req FetchRequest, onProgress func(progress.Event)) error {
		writeOutput(t, req, "data")
		return nil
	}}

	dest := t.TempDir()
	workers := make([]*Downloader, 2)
	for i := range workers {
		workers[i] = newHarness(t, provider, fetcher, nil, Options{}).dl
	}

	var (
		mu   sync.Mutex
		done []*Job
	)
	pool := NewPool(workers, func(job *Job) {
		mu.Lock()
		done = append(done, job)
		mu.Unlock()
	})

	assert.ErrorIs(t, pool.Queue(Request{URL: "https://youtu.be/1"}), ErrPoolStopped)

	pool.Start(context.Background())
	defer pool.Stop()

	for i := 1; i <= 3; i++ {
		require.NoError(t, pool.Queue(Request{
			URL:            fmt.Sprintf("https://youtu.be/%d", i),
			DestinationDir: dest,
			Tier:           format.Best,
		}))
	}

	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, done, 3)
	for _, job := range done {
		assert.Equal(t, JobCompleted, job.Status, job.Request.URL)
		assert.NoError(t, job.Err)
		assert.FileExists(t, job.Task.OutputPath)
	}
	assert.Equal(t, 0, pool.GetActiveDownloads())
	assert.Equal(t, 0, pool.GetQueueLength())
}

func TestPoolRejectsDuplicates(t *testing.T) {
	pool := NewPool(nil, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	require.NoError(t, pool.Queue(Request{URL: "https://youtu.be/1"}))
	assert.ErrorIs(t, pool.Queue(Request{URL: "https://youtu.be/1"}), ErrAlreadyQueued)
	assert.Equal(t, 1, pool.GetQueueLength())
}

func TestPoolStopDropsQueued(t *testing.T) {
	pool := NewPool(nil, nil)
	pool.Start(context.Background())

	require.NoError(t, pool.Queue(Request{URL: "https://youtu.be/1"}))
	pool.Stop()

	// Wait must not block on jobs dropped by Stop
	pool.Wait()
	assert.Equal(t, 0, pool.GetQueueLength())
}
