package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ytdownloader/internal/filename"
	"ytdownloader/internal/progress"
	"ytdownloader/pkg/models"
)

const (
	// SessionFile is the record written into every session directory
	SessionFile = "session_info.json"

	maxTitleLength = 50
	idLength       = 8
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("invalid session record")
)

// Manager tracks download sessions, each living in its own working
// directory under the cache path
type Manager struct {
	mu        sync.RWMutex
	cachePath string
	entries   map[string]*models.Session
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a new session manager rooted at cachePath
func NewManager(cachePath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// Create cache directory if it doesn't exist
	if err := os.MkdirAll(cachePath, 0755); err != nil {
		logger.Warn("failed to create cache directory", "path", cachePath, "err", err)
	}

	manager := &Manager{
		cachePath: cachePath,
		entries:   make(map[string]*models.Session),
		logger:    logger,
		now:       time.Now,
	}

	// Index existing sessions
	if err := manager.Scan(); err != nil {
		logger.Warn("failed to scan cache directory", "path", cachePath, "err", err)
	}

	return manager
}

// CreateSession creates an isolated working directory for a download and
// writes its initial record
func (m *Manager) CreateSession(title, quality string) (*models.Session, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
	safeTitle := filename.Truncate(filename.Sanitize(title), maxTitleLength)
	dir := filepath.Join(m.cachePath, fmt.Sprintf("%s_%s", safeTitle, id))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create session directory: %w", err)
	}

	now := m.now()
	session := &models.Session{
		ID:          id,
		Title:       title,
		Quality:     quality,
		CreatedTime: now,
		UpdatedTime: now,
		Status:      models.SessionDownloading,
		Dir:         dir,
	}

	if err := writeRecord(dir, session); err != nil {
		return nil, "", err
	}

	m.entries[id] = session
	m.logger.Info("created download session", "session", id, "title", title, "dir", dir)

	sessionCopy := *session
	return &sessionCopy, dir, nil
}

// UpdateStatus rewrites the record in workingDir with a new status. A missing
// or corrupt record is logged and otherwise ignored.
func (m *Manager) UpdateStatus(workingDir string, status models.SessionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := readRecord(workingDir)
	if err != nil {
		m.logger.Warn("failed to update session status", "dir", workingDir, "status", status, "err", err)
		return
	}

	session.Status = status
	session.UpdatedTime = m.now()

	if err := writeRecord(workingDir, session); err != nil {
		m.logger.Warn("failed to update session status", "dir", workingDir, "status", status, "err", err)
		return
	}

	m.entries[session.ID] = session
	m.logger.Debug("session status updated", "session", session.ID, "status", status)
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	// Return a copy
	sessionCopy := *session
	return &sessionCopy, nil
}

// ListSessions returns all known sessions, most recently created first
func (m *Manager) ListSessions() []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*models.Session, 0, len(m.entries))
	for _, session := range m.entries {
		sessionCopy := *session
		_, sessionCopy.Size = dirStats(session.Dir)
		sessions = append(sessions, &sessionCopy)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedTime.After(sessions[j].CreatedTime)
	})

	return sessions
}

// DeleteSession removes a session and its working directory
func (m *Manager) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.entries[id]
	if !ok {
		return ErrSessionNotFound
	}

	if err := os.RemoveAll(session.Dir); err != nil {
		return fmt.Errorf("failed to delete session directory: %w", err)
	}

	delete(m.entries, id)
	m.logger.Info("deleted session", "session", id)

	return nil
}

// RemoveDir removes a working directory and forgets its session
func (m *Manager) RemoveDir(workingDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, session := range m.entries {
		if session.Dir == workingDir {
			delete(m.entries, id)
		}
	}

	if err := os.RemoveAll(workingDir); err != nil {
		return fmt.Errorf("failed to remove working directory: %w", err)
	}

	return nil
}

// ExpireOlderThan removes every session created before now-maxAge and
// returns how many were removed
func (m *Manager) ExpireOlderThan(maxAge time.Duration) (int, error) {
	if err := m.Scan(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0

	for id, session := range m.entries {
		if !session.CreatedTime.Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(session.Dir); err != nil {
			m.logger.Warn("failed to remove expired session", "session", id, "err", err)
			continue
		}

		delete(m.entries, id)
		removed++
	}

	if removed > 0 {
		m.logger.Info("expired old sessions", "count", removed, "maxAge", maxAge)
	}

	return removed, nil
}

// Clear removes every file under the cache path, prunes empty directories
// and returns the number of files and bytes removed
func (m *Manager) Clear() (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		count int
		size  int64
		dirs  []string
	)

	err := filepath.WalkDir(m.cachePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if d.IsDir() {
			if path != m.cachePath {
				dirs = append(dirs, path)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if err := os.Remove(path); err != nil {
			m.logger.Warn("failed to delete cache file", "path", path, "err", err)
			return nil
		}

		count++
		size += info.Size()
		return nil
	})
	if err != nil {
		return count, size, fmt.Errorf("failed to walk cache directory: %w", err)
	}

	// Deepest directories first so parents are empty when reached
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		_ = os.Remove(dir) // Fails on non-empty directories
	}

	clear(m.entries)
	m.logger.Info("cache cleared", "files", count, "size", progress.FormatBytes(float64(size)))

	return count, size, nil
}

// GetSize returns the total size of all files under the cache path
func (m *Manager) GetSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, size := dirStats(m.cachePath)
	return size
}

// Summary returns a short description of the cache contents
func (m *Manager) Summary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count, size := dirStats(m.cachePath)
	if count == 0 {
		return "no cached files"
	}
	return fmt.Sprintf("%d files, %s", count, progress.FormatBytes(float64(size)))
}

// Scan scans the cache directory and rebuilds the session index
func (m *Manager) Scan() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirEntries, err := os.ReadDir(m.cachePath)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	entries := make(map[string]*models.Session, len(dirEntries))
	for _, entry := range dirEntries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(m.cachePath, entry.Name())
		session, err := readRecord(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				m.logger.Debug("skipping unreadable session", "dir", dir, "err", err)
			}
			continue
		}

		entries[session.ID] = session
	}

	m.entries = entries

	return nil
}

// GetCachePath returns the cache directory path
func (m *Manager) GetCachePath() string {
	return m.cachePath
}

func readRecord(dir string) (*models.Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, SessionFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidSession)
	}

	session.Dir = dir
	return &session, nil
}

func writeRecord(dir string, session *models.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, SessionFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}

	return nil
}

func dirStats(root string) (int, int64) {
	var (
		count int
		total int64
	)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			count++
			total += info.Size()
		}
		return nil
	})
	return count, total
}
