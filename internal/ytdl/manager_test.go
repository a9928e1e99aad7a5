package ytdl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockHTTPClient is a mock HTTP client for testing
type MockHTTPClient struct {
	GetFunc func(url string) (*http.Response, error)
	calls   []string
}

func (m *MockHTTPClient) Get(url string) (*http.Response, error) {
	m.calls = append(m.calls, url)
	return m.GetFunc(url)
}

// releaseThenBinary answers the release API with tag and every other URL
// with binary
func releaseThenBinary(tag string, binary []byte) *MockHTTPClient {
	return &MockHTTPClient{GetFunc: func(url string) (*http.Response, error) {
		if url == ytdlpReleaseAPI {
			return newReleaseResponse(tag, detectPlatform()), nil
		}
		return newBodyResponse(http.StatusOK, binary), nil
	}}
}

func newReleaseResponse(tag, asset string) *http.Response {
	release := GitHubRelease{TagName: tag}
	release.Assets = append(release.Assets, struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	}{Name: asset, BrowserDownloadURL: "https://example.com/" + asset})

	body, _ := json.Marshal(release)
	return newBodyResponse(http.StatusOK, body)
}

func newBodyResponse(status int, body []byte) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body))}
}

func TestNewManagerCreatesDirectory(t *testing.T) {
	utilsDir := filepath.Join(t.TempDir(), "nested", "utils")

	mgr := NewManager(utilsDir, nil)

	assert.DirExists(t, utilsDir)
	assert.Equal(t, filepath.Join(utilsDir, detectPlatform()), mgr.GetYtdlpPath())
	assert.Empty(t, mgr.GetCurrentVersion())
}

func TestIsInstalled(t *testing.T) {
	mgr := NewManager(t.TempDir(), nil)
	assert.False(t, mgr.IsInstalled())

	require.NoError(t, os.WriteFile(mgr.GetYtdlpPath(), []byte("fake"), 0755))
	assert.True(t, mgr.IsInstalled())
}

func TestResolvePath(t *testing.T) {
	mgr := NewManager(t.TempDir(), nil)

	assert.Equal(t, "/opt/yt-dlp", mgr.ResolvePath("/opt/yt-dlp"))
	assert.Equal(t, "yt-dlp", mgr.ResolvePath(""))

	require.NoError(t, os.WriteFile(mgr.GetYtdlpPath(), []byte("fake"), 0755))
	assert.Equal(t, mgr.GetYtdlpPath(), mgr.ResolvePath(""))
}

func TestDetectPlatform(t *testing.T) {
	platform := detectPlatform()

	switch runtime.GOOS {
	case "windows":
		assert.Equal(t, "yt-dlp.exe", platform)
	case "linux":
		if runtime.GOARCH == "arm64" {
			assert.Equal(t, "yt-dlp_linux_aarch64", platform)
		} else {
			assert.Equal(t, "yt-dlp_linux", platform)
		}
	case "darwin":
		assert.Equal(t, "yt-dlp_macos", platform)
	default:
		assert.Equal(t, "yt-dlp", platform)
	}
}

func TestCheckForUpdate(t *testing.T) {
	tests := []struct {
		name      string
		installed bool
		current   string
		want      bool
	}{
		{name: "not installed", want: true},
		{name: "unknown version", installed: true, want: true},
		{name: "outdated", installed: true, current: "2024.01.01", want: true},
		{name: "up to date", installed: true, current: "2024.02.01", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewManagerWithClient(t.TempDir(), releaseThenBinary("2024.02.01", nil), nil)
			mgr.currentVersion = tt.current
			if tt.installed {
				require.NoError(t, os.WriteFile(mgr.GetYtdlpPath(), []byte("old"), 0755))
			}

			version, hasUpdate, err := mgr.CheckForUpdate()
			require.NoError(t, err)
			assert.Equal(t, "2024.02.01", version)
			assert.Equal(t, tt.want, hasUpdate)
		})
	}
}

func TestCheckForUpdateErrors(t *testing.T) {
	tests := []struct {
		name    string
		get     func(string) (*http.Response, error)
		wantErr string
	}{
		{
			name:    "network error",
			get:     func(string) (*http.Response, error) { return nil, errors.New("network error") },
			wantErr: "failed to check for updates",
		},
		{
			name:    "non-200 status",
			get:     func(string) (*http.Response, error) { return newBodyResponse(http.StatusNotFound, nil), nil },
			wantErr: "status 404",
		},
		{
			name:    "invalid JSON",
			get:     func(string) (*http.Response, error) { return newBodyResponse(http.StatusOK, []byte("{")), nil },
			wantErr: "failed to parse release info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewManagerWithClient(t.TempDir(), &MockHTTPClient{GetFunc: tt.get}, nil)

			_, _, err := mgr.CheckForUpdate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDownload(t *testing.T) {
	client := releaseThenBinary("2024.01.01", []byte("fake yt-dlp binary"))
	mgr := NewManagerWithClient(t.TempDir(), client, nil)

	require.NoError(t, mgr.Download())

	assert.True(t, mgr.IsInstalled())
	assert.Equal(t, "2024.01.01", mgr.GetCurrentVersion())
	assert.Equal(t, []string{ytdlpReleaseAPI, "https://example.com/" + detectPlatform()}, client.calls)
	assert.NoFileExists(t, mgr.GetYtdlpPath()+".tmp")
}

func TestDownloadReplacesExisting(t *testing.T) {
	mgr := NewManagerWithClient(t.TempDir(), releaseThenBinary("2024.02.01", []byte("new version")), nil)
	require.NoError(t, os.WriteFile(mgr.GetYtdlpPath(), []byte("old version"), 0755))

	require.NoError(t, mgr.Download())

	data, err := os.ReadFile(mgr.GetYtdlpPath())
	require.NoError(t, err)
	assert.Equal(t, "new version", string(data))
}

func TestDownloadNoMatchingAsset(t *testing.T) {
	client := &MockHTTPClient{GetFunc: func(string) (*http.Response, error) {
		return newReleaseResponse("2024.01.01", "wrong-platform.exe"), nil
	}}
	mgr := NewManagerWithClient(t.TempDir(), client, nil)

	err := mgr.Download()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no asset found for platform")
	assert.False(t, mgr.IsInstalled())
}

func TestDownloadBinaryStatus(t *testing.T) {
	client := &MockHTTPClient{GetFunc: func(url string) (*http.Response, error) {
		if url == ytdlpReleaseAPI {
			return newReleaseResponse("2024.01.01", detectPlatform()), nil
		}
		return newBodyResponse(http.StatusNotFound, nil), nil
	}}
	mgr := NewManagerWithClient(t.TempDir(), client, nil)

	err := mgr.Download()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestEnsureInstalled(t *testing.T) {
	client := releaseThenBinary("2024.01.01", []byte("binary data"))
	mgr := NewManagerWithClient(t.TempDir(), client, nil)

	require.NoError(t, mgr.EnsureInstalled())
	assert.True(t, mgr.IsInstalled())
	assert.Len(t, client.calls, 2)

	// Second call is a no-op
	require.NoError(t, mgr.EnsureInstalled())
	assert.Len(t, client.calls, 2)
}

func TestAutoUpdate(t *testing.T) {
	mgr := NewManagerWithClient(t.TempDir(), releaseThenBinary("2024.02.01", []byte("new")), nil)
	mgr.currentVersion = "2024.01.01"
	require.NoError(t, os.WriteFile(mgr.GetYtdlpPath(), []byte("old"), 0755))

	require.NoError(t, mgr.AutoUpdate())
	assert.Equal(t, "2024.02.01", mgr.GetCurrentVersion())

	// Already current: only the release lookup happens
	client := releaseThenBinary("2024.02.01", nil)
	mgr.client = client
	require.NoError(t, mgr.AutoUpdate())
	assert.Equal(t, []string{ytdlpReleaseAPI}, client.calls)
}

func TestDetectVersion(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}

	mgr := NewManager(t.TempDir(), nil)
	writeScript(t, mgr.GetYtdlpPath(), `echo "2025.06.30"`)

	version, err := mgr.DetectVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025.06.30", version)
	assert.Equal(t, "2025.06.30", mgr.GetCurrentVersion())
}

// writeScript writes an executable shell script standing in for yt-dlp
func writeScript(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
}
