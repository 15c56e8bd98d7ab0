package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/headline-goat/vwo-pulse/internal/cache"
	"github.com/headline-goat/vwo-pulse/internal/logging"
	"github.com/headline-goat/vwo-pulse/internal/store"
	"github.com/headline-goat/vwo-pulse/internal/vwo"
)

// ExperimentCache is the read side the handlers need. *cache.Cache
// implements it.
type ExperimentCache interface {
	Get(ctx context.Context, b cache.Bucket) (cache.Result, error)
	Invalidate(status string) int
}

type Options struct {
	Port      int
	TokenFile string
	// Token fixes the access token; a random one is generated when empty.
	Token string
	// APIRateLimit is requests per minute per client IP on /api/*. Zero
	// disables the limit.
	APIRateLimit int
	// Types is the campaign type allow-list used when a request has none.
	Types []string
	// MaxUploadBytes bounds multipart uploads.
	MaxUploadBytes int64
}

type Server struct {
	cache     ExperimentCache
	overrides store.Store
	opts      Options
	token     string
	router    *http.ServeMux
	startTime time.Time
}

const defaultMaxUpload = 32 << 20

func New(c ExperimentCache, overrides store.Store, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if len(opts.Types) == 0 {
		opts.Types = vwo.DefaultTypes
	}
	token := opts.Token
	if token == "" {
		token = generateToken()
	}

	srv := &Server{
		cache:     c,
		overrides: overrides,
		opts:      opts,
		token:     token,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.Handler())

	// JSON API (protected, rate limited)
	limit := s.rateLimiter()
	api := func(h http.HandlerFunc) http.Handler {
		return limit(s.apiAuthMiddleware(h))
	}
	s.router.Handle("GET /api/experiments", api(s.handleExperiments))
	s.router.Handle("POST /api/experiments/refresh", api(s.handleRefresh))
	s.router.Handle("POST /api/looker/upload", api(s.handleUpload))

	// Dashboard pages (protected)
	s.router.Handle("GET /dashboard", s.authMiddleware(http.HandlerFunc(s.handleDashboard)))
	s.router.Handle("GET /dashboard/experiment/{id}", s.authMiddleware(http.HandlerFunc(s.handleDashboardExperiment)))
	s.router.Handle("GET /dashboard/assets/style.css", http.HandlerFunc(s.handleStyles))
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	// Write token to file for the token command
	if s.opts.TokenFile != "" {
		if err := os.WriteFile(s.opts.TokenFile, []byte(s.token), 0600); err != nil {
			logging.Warn().Err(err).Str("path", s.opts.TokenFile).Msg("failed to write token file")
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println()
	fmt.Printf("vwo-pulse running on http://localhost:%d\n", s.opts.Port)
	fmt.Printf("Dashboard: http://localhost:%d/dashboard?token=%s\n", s.opts.Port, s.token)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	logging.Info().Int("port", s.opts.Port).Msg("dashboard server starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logging.Info().Msg("dashboard server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) Token() string {
	return s.token
}

// Handler returns the router wrapped in request id and access log
// middleware.
func (s *Server) Handler() http.Handler {
	return requestID(accessLog(s.router))
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("generate token: %v", err))
	}
	return hex.EncodeToString(bytes)
}
