package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ytdownloader/internal/cache"
	"ytdownloader/internal/downloader"
	"ytdownloader/internal/format"
)

// Version is reported by the status endpoint
const Version = "0.1.0"

var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrServerNotRunning     = errors.New("server is not running")
)

// Config configures a Server
type Config struct {
	// Host defaults to 127.0.0.1
	Host        string
	Port        int
	DownloadDir string
	DefaultTier format.Tier
	Logger      *slog.Logger
}

// Server exposes the downloader and the session cache over HTTP
type Server struct {
	config     Config
	cache      *cache.Manager
	downloader *downloader.Downloader
	logger     *slog.Logger
	router     *chi.Mux

	server   *http.Server
	listener net.Listener
	running  bool
	mu       sync.RWMutex

	// Downloads outlive the request that started them
	ctx         context.Context
	cancel      context.CancelFunc
	jobs        sync.WaitGroup
	downloading bool
	last        *result
}

type result struct {
	Task  *downloader.Task `json:"task,omitempty"`
	Error string           `json:"error,omitempty"`
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, dl *downloader.Downloader, cacheMgr *cache.Manager) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:     cfg,
		cache:      cacheMgr,
		downloader: dl,
		logger:     logger,
		router:     chi.NewRouter(),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.setupRoutes()

	return s
}

// Handler returns the router, for embedding into another server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/info", s.handleInfo)

		r.Post("/download", s.handleDownload)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Post("/cancel", s.handleCancel)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Delete("/", s.handleClearSessions)
			r.Post("/expire", s.handleExpireSessions)
			r.Delete("/{id}", s.handleDeleteSession)
		})
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.GetAddr())
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener
	httpServer := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.server = httpServer
	s.running = true

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "err", err)
		}
	}()

	s.logger.Info("api server listening", "addr", listener.Addr().String())
	return nil
}

// Stop cancels any running download and gracefully stops the HTTP server
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrServerNotRunning
	}
	httpServer := s.server
	s.running = false
	s.server = nil
	s.listener = nil
	cancelJobs := s.cancel
	s.mu.Unlock()

	cancelJobs()
	s.jobs.Wait()

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetAddr returns the configured listen address
func (s *Server) GetAddr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// GetActualAddr returns the actual listening address (useful when port is 0)
func (s *Server) GetActualAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.GetAddr()
}

// Wait blocks until background downloads started over HTTP have finished
func (s *Server) Wait() {
	s.jobs.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	last := s.last
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"running":      running,
		"current":      s.downloader.Current(),
		"last":         last,
		"cacheSize":    s.cache.GetSize(),
		"sessionCount": len(s.cache.ListSessions()),
		"version":      Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
