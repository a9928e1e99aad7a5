package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytdownloader/internal/downloader"
	"ytdownloader/internal/progress"
	"ytdownloader/pkg/models"
)

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func decode[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestHandleInfo(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		resolve    func(ctx context.Context, url string) (*models.VideoInfo, error)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no URL parameter",
			url:        "",
			wantStatus: http.StatusBadRequest,
			wantBody:   "no URL provided",
		},
		{
			name:       "non-YouTube URL",
			url:        "https://example.com/video.mp4",
			wantStatus: http.StatusBadRequest,
			wantBody:   "not a YouTube URL",
		},
		{
			name:       "channel page",
			url:        "https://www.youtube.com/@someone",
			wantStatus: http.StatusBadRequest,
			wantBody:   "video ID not found",
		},
		{
			name: "resolves formats",
			url:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			resolve: func(ctx context.Context, url string) (*models.VideoInfo, error) {
				return sampleInfo(), nil
			},
			wantStatus: http.StatusOK,
			wantBody:   "Sample Clip",
		},
		{
			name: "network unreachable",
			url:  "https://youtu.be/dQw4w9WgXcQ",
			resolve: func(ctx context.Context, url string) (*models.VideoInfo, error) {
				return nil, errors.New("Network is unreachable")
			},
			wantStatus: http.StatusBadGateway,
			wantBody:   "Network unreachable",
		},
		{
			name: "extraction failure",
			url:  "https://youtu.be/dQw4w9WgXcQ",
			resolve: func(ctx context.Context, url string) (*models.VideoInfo, error) {
				return nil, errors.New("ERROR: unable to extract player response")
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   "Failed to get video info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{ResolveFunc: tt.resolve}
			env := newTestEnv(t, provider, writingFetcher())

			w := env.do(http.MethodGet, "/api/info?url="+tt.url, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestHandleInfoOptions(t *testing.T) {
	env := newTestEnv(t, staticProvider(sampleInfo()), writingFetcher())

	w := env.do(http.MethodGet, "/api/info?url=https://www.youtube.com/watch?v=dQw4w9WgXcQ", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[InfoResponse](t, w.Body)
	assert.Equal(t, "dQw4w9WgXcQ", resp.Video.ID)
	require.NotEmpty(t, resp.Options)
	assert.Equal(t, "best", resp.Options[0].Tier.String())
	assert.Len(t, resp.Formats.Combined, 2)
}

func TestHandleDownload(t *testing.T) {
	env := newTestEnv(t, staticProvider(sampleInfo()), writingFetcher())

	w := env.do(http.MethodPost, "/api/download", jsonBody(t, DownloadRequest{
		URL:     "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Quality: "720p",
	}))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"tier":"720p"`)

	env.server.Wait()

	w = env.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Last *result `json:"last"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	require.NotNil(t, status.Last)
	require.NotNil(t, status.Last.Task)
	assert.Empty(t, status.Last.Error)
	assert.Equal(t, downloader.StageCompleted, status.Last.Task.Stage)
	assert.Equal(t, 100.0, status.Last.Task.Percent)
	assert.FileExists(t, status.Last.Task.OutputPath)
	assert.Equal(t, env.dest, filepath.Dir(status.Last.Task.OutputPath))
}

func TestHandleDownloadDestination(t *testing.T) {
	env := newTestEnv(t, staticProvider(sampleInfo()), writingFetcher())
	dest := t.TempDir()

	w := env.do(http.MethodPost, "/api/download", jsonBody(t, DownloadRequest{
		URL:         "https://youtu.be/dQw4w9WgXcQ",
		Destination: dest,
	}))
	require.Equal(t, http.StatusAccepted, w.Code)
	env.server.Wait()

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "Sample Clip"))
}

func TestHandleDownloadInvalid(t *testing.T) {
	env := newTestEnv(t, staticProvider(sampleInfo()), writingFetcher())

	tests := []struct {
		name string
		body io.Reader
	}{
		{"malformed body", strings.NewReader("{")},
		{"missing url", jsonBody(t, DownloadRequest{})},
		{"unknown quality", jsonBody(t, DownloadRequest{URL: "https://youtu.be/dQw4w9WgXcQ", Quality: "ultra"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/download", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleDownloadBusyAndCancel(t *testing.T) {
	fetcher := &fakeFetcher{FetchFunc: func(ctx context.Context, req downloader.FetchRequest, onProgress func(progress.Event)) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	env := newTestEnv(t, staticProvider(sampleInfo()), fetcher)
	req := DownloadRequest{URL: "https://youtu.be/dQw4w9WgXcQ"}

	w := env.do(http.MethodPost, "/api/download", jsonBody(t, req))
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		current := env.dl.Current()
		return current != nil && current.Stage == downloader.StageFetchingVideo
	}, 5*time.Second, 10*time.Millisecond)

	w = env.do(http.MethodPost, "/api/download", jsonBody(t, req))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Another download is in progress")

	w = env.do(http.MethodPost, "/api/pause", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.dl.Current().Paused)

	w = env.do(http.MethodPost, "/api/resume", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	env.server.Wait()

	w = env.do(http.MethodGet, "/api/status", nil)
	assert.Contains(t, w.Body.String(), "Download cancelled")
	assert.Empty(t, env.cache.ListSessions())
}

func TestControlIdle(t *testing.T) {
	env := newTestEnv(t, staticProvider(sampleInfo()), writingFetcher())

	for _, path := range []string{"/api/pause", "/api/resume", "/api/cancel"} {
		w := env.do(http.MethodPost, path, nil)
		assert.Equal(t, http.StatusConflict, w.Code, path)
	}
}

func TestSessionEndpoints(t *testing.T) {
	env := newTestEnv(t, staticProvider(sampleInfo()), writingFetcher())

	first, _, err := env.cache.CreateSession("First", "best")
	require.NoError(t, err)
	_, dir, err := env.cache.CreateSession("Second", "720p")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clean.mp4"), []byte("partial"), 0644))

	w := env.do(http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decode[[]models.Session](t, w.Body)
	assert.Len(t, sessions, 2)

	w = env.do(http.MethodDelete, "/api/sessions/"+first.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodDelete, "/api/sessions/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/sessions/expire?maxAge=1d", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":0}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/sessions/expire?maxAge=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/sessions/expire", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := decode[map[string]int64](t, w.Body)
	assert.Equal(t, int64(2), cleared["files"])
	assert.Empty(t, env.cache.ListSessions())
}

func TestExtractYouTubeVideoID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"watch URL with extras", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", false},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"shorts", "https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"mobile", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"empty short link", "https://youtu.be/", "", true},
		{"watch without id", "https://www.youtube.com/watch", "", true},
		{"other host", "https://vimeo.com/123", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractYouTubeVideoID(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsYouTubeURL(t *testing.T) {
	assert.True(t, isYouTubeURL("https://www.youtube.com/watch?v=x"))
	assert.True(t, isYouTubeURL("https://music.youtube.com/watch?v=x"))
	assert.True(t, isYouTubeURL("https://youtu.be/x"))
	assert.False(t, isYouTubeURL("https://notyoutube.com/watch?v=x"))
	assert.False(t, isYouTubeURL("https://example.com"))
	assert.False(t, isYouTubeURL(""))
}
