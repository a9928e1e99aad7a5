package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xhit/go-str2duration/v2"

	"ytdownloader/internal/cache"
	"ytdownloader/internal/downloader"
	"ytdownloader/internal/format"
	"ytdownloader/pkg/models"
)

var (
	ErrNoURL           = errors.New("no URL provided")
	ErrNotYouTube      = errors.New("not a YouTube URL")
	ErrVideoIDNotFound = errors.New("video ID not found")
)

// DownloadRequest is the body of POST /api/download
type DownloadRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
	// Destination overrides the configured download directory
	Destination string `json:"destination"`
}

// InfoResponse is returned by GET /api/info
type InfoResponse struct {
	Video   *models.VideoInfo `json:"video"`
	Options []format.Option   `json:"options"`
	Formats format.Listing    `json:"formats"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	videoURL := r.URL.Query().Get("url")
	if err := checkURL(videoURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.downloader.FetchInfo(r.Context(), videoURL)
	if err != nil {
		s.logger.Warn("failed to fetch video info", "url", videoURL, "err", err)
		writeError(w, statusFor(err), downloader.UserMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, InfoResponse{
		Video:   info,
		Options: format.Options(info.Formats),
		Formats: format.List(info.Formats),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := checkURL(body.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tier := s.config.DefaultTier
	if body.Quality != "" {
		parsed, err := format.ParseTier(body.Quality)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tier = parsed
	}

	dest := s.config.DownloadDir
	if body.Destination != "" {
		dest = body.Destination
	}

	req := downloader.Request{URL: body.URL, DestinationDir: dest, Tier: tier}

	s.mu.Lock()
	if s.downloading {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, downloader.UserMessage(downloader.ErrBusy))
		return
	}
	s.downloading = true
	ctx := s.ctx
	s.jobs.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.jobs.Done()

		task, err := s.downloader.ExecuteDownload(ctx, req)
		res := &result{Task: task}
		if err != nil {
			res.Error = downloader.UserMessage(err)
		}

		s.mu.Lock()
		s.downloading = false
		s.last = res
		s.mu.Unlock()
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"url":    body.URL,
		"tier":   tier.String(),
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.downloader.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.downloader.Resume)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.downloader.Cancel)
}

func (s *Server) control(w http.ResponseWriter, action func() bool) {
	if !action() {
		writeError(w, http.StatusConflict, "no active download")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "current": s.downloader.Current()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.ListSessions())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cache.DeleteSession(id); err != nil {
		if errors.Is(err, cache.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExpireSessions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("maxAge")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "maxAge is required, e.g. 24h or 7d")
		return
	}
	maxAge, err := str2duration.ParseDuration(raw)
	if err != nil || maxAge < 0 {
		writeError(w, http.StatusBadRequest, "invalid maxAge: "+raw)
		return
	}

	removed, err := s.cache.ExpireOlderThan(maxAge)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	if s.downloader.Current() != nil {
		writeError(w, http.StatusConflict, downloader.UserMessage(downloader.ErrBusy))
		return
	}

	files, size, err := s.cache.Clear()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"files": int64(files), "bytes": size})
}

// statusFor maps a download or metadata error to an HTTP status
func statusFor(err error) int {
	var metaErr *downloader.MetadataError
	var existsErr *downloader.FileExistsError
	switch {
	case errors.Is(err, downloader.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &metaErr) && metaErr.Connectivity():
		return http.StatusBadGateway
	case errors.As(err, &existsErr):
		return http.StatusConflict
	case errors.Is(err, format.ErrNoFormatsAvailable), errors.Is(err, format.ErrNoMatchingFormat):
		return http.StatusUnprocessableEntity
	case errors.As(err, &metaErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func checkURL(videoURL string) error {
	if videoURL == "" {
		return ErrNoURL
	}
	if !isYouTubeURL(videoURL) {
		return ErrNotYouTube
	}
	if _, err := extractYouTubeVideoID(videoURL); err != nil {
		return err
	}
	return nil
}

// extractYouTubeVideoID extracts video ID from YouTube URL
func extractYouTubeVideoID(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	host := parsedURL.Hostname()

	// youtu.be short links
	if host == "youtu.be" {
		videoID := strings.TrimPrefix(parsedURL.Path, "/")
		if videoID != "" {
			return videoID, nil
		}
		return "", ErrVideoIDNotFound
	}

	if strings.HasSuffix(host, "youtube.com") {
		if parsedURL.Path == "/watch" {
			if videoID := parsedURL.Query().Get("v"); videoID != "" {
				return videoID, nil
			}
		}

		for _, prefix := range []string{"/embed/", "/v/", "/shorts/", "/live/"} {
			if videoID, ok := strings.CutPrefix(parsedURL.Path, prefix); ok && videoID != "" {
				return strings.TrimSuffix(videoID, "/"), nil
			}
		}
	}

	return "", ErrVideoIDNotFound
}

// isYouTubeURL checks if URL is a YouTube URL
func isYouTubeURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	host := parsedURL.Hostname()
	return host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") || host == "youtu.be"
}
