// Package server exposes quickmod over HTTP.
//
// Resolutions and installs run in the background: a POST starts a run and
// returns its id, and the run is polled with GET until its status is no
// longer "running". Runs live in memory for the lifetime of the server and
// share the descriptor store it was created with.
//
// Routes:
//
//	POST /v1/resolutions       start a resolution
//	GET  /v1/resolutions/{id}  poll a resolution
//	POST /v1/installs          start an install
//	GET  /v1/installs/{id}     poll an install
//	GET  /v1/mods              list stored descriptors (?match=glob)
//	GET  /v1/mods/{uid}        fetch one stored descriptor
//	GET  /metrics              Prometheus metrics, when configured
//	GET  /healthz              liveness and build info
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/quickmod/pkg/fetch"
	"github.com/matzehuels/quickmod/pkg/install"
	"github.com/matzehuels/quickmod/pkg/observability"
	"github.com/matzehuels/quickmod/pkg/quickmod"
	"github.com/matzehuels/quickmod/pkg/resolve"
)

// Store is the descriptor store the server works against.
// [*store.Store] implements it.
type Store interface {
	resolve.Store
	All() []*quickmod.Mod
}

// Options configures a [Server].
type Options struct {
	Store       Store
	Downloader  fetch.Downloader
	Navigator   install.Navigator // nil: web versions fail as unsupported
	DownloadDir string

	// GameVersion is the default for installs that do not name one.
	GameVersion string

	// Metrics, if set, is served on /metrics.
	Metrics *observability.Metrics

	Logger *log.Logger
}

// Server serves the HTTP API.
type Server struct {
	opts     Options
	logger   *log.Logger
	resolver *resolve.Resolver
	router   chi.Router

	// ctx is the parent of every run; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	resolutions map[string]*resolutionRun
	installs    map[string]*installRun
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:        opts,
		logger:      logger,
		resolver:    resolve.New(opts.Store, logger),
		ctx:         ctx,
		cancel:      cancel,
		resolutions: make(map[string]*resolutionRun),
		installs:    make(map[string]*installRun),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolutions", s.handleStartResolution)
		r.Get("/resolutions/{id}", s.handleGetResolution)
		r.Post("/installs", s.handleStartInstall)
		r.Get("/installs/{id}", s.handleGetInstall)
		r.Get("/mods", s.handleListMods)
		r.Get("/mods/{uid}", s.handleGetMod)
	})
	return r
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler { return s.router }

// Close cancels every running resolution and install and waits for them
// to stop.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// logRequests logs every request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// goRun starts fn in the background under the server's lifetime.
func (s *Server) goRun(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}
