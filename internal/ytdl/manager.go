package ytdl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	ytdlpReleaseAPI = "https://api.github.com/repos/yt-dlp/yt-dlp/releases/latest"
)

// HTTPClient is the subset of *http.Client used for release lookups
type HTTPClient interface {
	Get(url string) (*http.Response, error)
}

// Manager handles yt-dlp installation and updates
type Manager struct {
	utilsDir       string
	client         HTTPClient
	logger         *slog.Logger
	currentVersion string
	lastCheckTime  time.Time
}

// GitHubRelease represents a GitHub release
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// NewManager creates a new yt-dlp manager
func NewManager(utilsDir string, logger *slog.Logger) *Manager {
	return NewManagerWithClient(utilsDir, &http.Client{Timeout: 5 * time.Minute}, logger)
}

// NewManagerWithClient creates a manager that performs HTTP requests with client
func NewManagerWithClient(utilsDir string, client HTTPClient, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// Ensure utils directory exists
	if err := os.MkdirAll(utilsDir, 0755); err != nil {
		logger.Warn("failed to create utils directory", "path", utilsDir, "err", err)
	}

	return &Manager{
		utilsDir: utilsDir,
		client:   client,
		logger:   logger,
	}
}

// GetYtdlpPath returns the path to the managed yt-dlp executable
func (m *Manager) GetYtdlpPath() string {
	return filepath.Join(m.utilsDir, detectPlatform())
}

// ResolvePath returns configured when set, else the managed binary when
// installed, else "yt-dlp" to be looked up in PATH
func (m *Manager) ResolvePath(configured string) string {
	if configured != "" {
		return configured
	}
	if m.IsInstalled() {
		return m.GetYtdlpPath()
	}
	return "yt-dlp"
}

// IsInstalled checks if yt-dlp is installed
func (m *Manager) IsInstalled() bool {
	_, err := os.Stat(m.GetYtdlpPath())
	return err == nil
}

// GetCurrentVersion returns the currently installed version
func (m *Manager) GetCurrentVersion() string {
	return m.currentVersion
}

// DetectVersion asks the installed binary for its version
func (m *Manager) DetectVersion(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, m.GetYtdlpPath(), "--version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to query yt-dlp version: %w", err)
	}

	m.currentVersion = strings.TrimSpace(string(out))
	return m.currentVersion, nil
}

// CheckForUpdate checks if a newer version is available
func (m *Manager) CheckForUpdate() (string, bool, error) {
	release, err := m.latestRelease()
	if err != nil {
		return "", false, fmt.Errorf("failed to check for updates: %w", err)
	}

	m.lastCheckTime = time.Now()

	// If not installed, any version is an update
	if !m.IsInstalled() {
		return release.TagName, true, nil
	}

	// Compare versions
	if m.currentVersion == "" || m.currentVersion != release.TagName {
		return release.TagName, true, nil
	}

	return release.TagName, false, nil
}

// Download downloads and installs yt-dlp
func (m *Manager) Download() error {
	release, err := m.latestRelease()
	if err != nil {
		return fmt.Errorf("failed to fetch release info: %w", err)
	}

	// Find the correct asset for this platform
	platform := detectPlatform()
	var downloadURL string
	for _, asset := range release.Assets {
		if asset.Name == platform {
			downloadURL = asset.BrowserDownloadURL
			break
		}
	}

	if downloadURL == "" {
		return fmt.Errorf("no asset found for platform: %s", platform)
	}

	m.logger.Info("downloading yt-dlp", "version", release.TagName)
	resp, err := m.client.Get(downloadURL)
	if err != nil {
		return fmt.Errorf("failed to download yt-dlp: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	// Write to a temporary file first
	ytdlpPath := m.GetYtdlpPath()
	tmpPath := ytdlpPath + ".tmp"

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(out, resp.Body)
	out.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	// Make executable
	if err := os.Chmod(tmpPath, 0755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to make executable: %w", err)
	}

	// Replace old file
	if m.IsInstalled() {
		if err := os.Remove(ytdlpPath); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to remove old file: %w", err)
		}
	}

	if err := os.Rename(tmpPath, ytdlpPath); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	m.currentVersion = release.TagName
	m.logger.Info("yt-dlp installed", "version", release.TagName, "path", ytdlpPath)

	return nil
}

// EnsureInstalled ensures yt-dlp is installed, downloading if necessary
func (m *Manager) EnsureInstalled() error {
	if m.IsInstalled() {
		return nil
	}

	m.logger.Info("yt-dlp not found, downloading")
	return m.Download()
}

// AutoUpdate checks for and applies updates if available
func (m *Manager) AutoUpdate() error {
	latestVersion, hasUpdate, err := m.CheckForUpdate()
	if err != nil {
		return err
	}

	if !hasUpdate {
		m.logger.Info("yt-dlp is up to date", "version", latestVersion)
		return nil
	}

	m.logger.Info("updating yt-dlp", "from", m.currentVersion, "to", latestVersion)
	return m.Download()
}

func (m *Manager) latestRelease() (*GitHubRelease, error) {
	resp, err := m.client.Get(ytdlpReleaseAPI)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release info: %w", err)
	}

	return &release, nil
}

// detectPlatform returns the appropriate yt-dlp binary name for the current platform
func detectPlatform() string {
	switch runtime.GOOS {
	case "windows":
		return "yt-dlp.exe"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "yt-dlp_linux_aarch64"
		}
		return "yt-dlp_linux"
	case "darwin":
		return "yt-dlp_macos"
	default:
		return "yt-dlp"
	}
}
