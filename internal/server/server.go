package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pushgate/internal/audit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// Request timeout for middleware
	RequestTimeout = 30 * time.Second

	// Rate limiting - requests per minute per IP
	GlobalRateLimit = 60
)

// Server serves the read-only status API over the audit store.
type Server struct {
	Audit    *audit.Store
	Logger   *slog.Logger
	TestMode bool
}

// NewServer creates a status server over an open audit store.
func NewServer(store *audit.Store, logger *slog.Logger, testMode bool) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Audit:    store,
		Logger:   logger,
		TestMode: testMode,
	}
}

// Router creates and configures the HTTP router.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", req.Method,
					"path", req.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, req)
		})
	})

	if !s.TestMode {
		r.Use(NewRateLimitMiddleware(GlobalRateLimit, s.Logger))
	}

	r.Get("/healthz", s.HandleHealth)
	r.Get("/api/attempts", s.HandleAttempts)
	r.Get("/api/attempts/{branch}", s.HandleBranchAttempts)
	r.Get("/api/metrics", s.HandleMetrics)

	return r
}

// Start starts the HTTP server.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("Starting status server", "addr", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	return server.ListenAndServe()
}
