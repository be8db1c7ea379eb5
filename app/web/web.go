// Package web implements the http server of apkbuild: build trigger, static page and history api
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/apkbuild/app/builder"
	"github.com/umputun/apkbuild/app/web/persistence"
)

//go:generate moq -out mocks/builder.go -pkg mocks -skip-ensure -fmt goimports . Builder

//go:embed static/*
var staticFS embed.FS

// Server represents the web server
type Server struct {
	builder      Builder
	store        Persistence
	artifactsDir string
	version      string
	passwordHash string // bcrypt hash for basic auth
	buildLimiter *limiter.Limiter
	writeTimeout time.Duration
}

// Builder makes apk for the request
type Builder interface {
	Build(ctx context.Context, req builder.Request) (builder.Result, error)
}

// Persistence defines storage operations for build history
type Persistence interface {
	RecordStart(rec persistence.BuildRecord) error
	RecordComplete(rec persistence.BuildRecord) error
	Get(id string) (persistence.BuildRecord, error)
	List(limit int) ([]persistence.BuildRecord, error)
	MarkInterrupted() (int64, error)
}

// Config holds server configuration
type Config struct {
	Builder        Builder
	Store          Persistence
	ArtifactsDir   string        // stored apk files, served by history api
	Version        string        // reported by AppInfo middleware
	PasswordHash   string        // bcrypt hash for basic auth (empty to disable)
	BuildRateLimit float64       // build requests per second per client, 0 disables limiting
	WriteTimeout   time.Duration // response write timeout, must cover the whole build, 0 for none
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Builder == nil {
		return nil, errors.New("web server initialization failed: builder is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("web server initialization failed: store is required")
	}

	if _, err := cfg.Store.MarkInterrupted(); err != nil {
		return nil, fmt.Errorf("web server initialization failed: %w", err)
	}

	s := &Server{
		builder:      cfg.Builder,
		store:        cfg.Store,
		artifactsDir: cfg.ArtifactsDir,
		version:      cfg.Version,
		passwordHash: cfg.PasswordHash,
		writeTimeout: cfg.WriteTimeout,
	}

	if cfg.BuildRateLimit > 0 {
		s.buildLimiter = tollbooth.NewLimiter(cfg.BuildRateLimit, nil)
		s.buildLimiter.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
		s.buildLimiter.SetMessageContentType("application/json")
		s.buildLimiter.SetMessage(`{"error":"Rate Limit Exceeded.","message":"too many build requests, try again later"}`)
	}
	return s, nil
}

// Run starts the web server and blocks until ctx is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	// global middleware - applied to all routes
	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("apkbuild", "umputun", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024), // 64KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	if s.passwordHash != "" {
		log.Printf("[INFO] basic auth enabled")
		router.Use(s.authMiddleware)
	}

	router.HandleFunc("GET /{$}", s.handleIndex)

	if s.buildLimiter != nil {
		router.With(tollbooth.HTTPMiddleware(s.buildLimiter)).HandleFunc("POST /build-apk", s.handleBuild)
	} else {
		router.HandleFunc("POST /build-apk", s.handleBuild)
	}

	// JSON API for CLI/programmatic access
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /builds", s.handleAPIBuilds)
		api.HandleFunc("GET /builds/{id}", s.handleAPIBuild)
		api.HandleFunc("GET /builds/{id}/artifact", s.handleAPIArtifact)
		api.HandleFunc("GET /schema", s.handleAPISchema)
	})

	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("[ERROR] failed to create static file system: %v", err)
		router.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	} else {
		router.HandleFiles("/static/", http.FS(fsys))
	}

	return router
}

// handleIndex serves the build form
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		log.Printf("[ERROR] can't read index page: %v", err)
		http.Error(w, "Page not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response, message is omitted if empty
func (s *Server) writeJSONError(w http.ResponseWriter, status int, errMsg, message string) {
	resp := map[string]string{"error": errMsg}
	if message != "" {
		resp["message"] = message
	}
	s.writeJSON(w, status, resp)
}
