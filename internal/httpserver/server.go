package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kubebridge/kubebridge/internal/infra/shutdown"
)

// Server exposes the snapshot and control surfaces over HTTP along with
// health endpoints.
type Server struct {
	logger     *slog.Logger
	snapshots  snapshotter
	controls   controller
	counter    resourceCounter
	pingers    []Pinger
	port       string
	server     *http.Server
	ready      chan struct{}
	inShutdown atomic.Bool
}

// New creates a new HTTP server instance.
func New(
	logger *slog.Logger,
	snapshots snapshotter,
	controls controller,
	counter resourceCounter,
	pingers []Pinger,
	port string,
) *Server {
	if port == "" {
		port = defaultPort
	}

	return &Server{
		logger:    logger,
		snapshots: snapshots,
		controls:  controls,
		counter:   counter,
		pingers:   pingers,
		port:      port,
		ready:     make(chan struct{}),
	}
}

var _ shutdown.Shutdowner = (*Server)(nil)

// Name returns the name of the server component.
func (s *Server) Name() string {
	return "http-server"
}

// Ping returns nil when the server is ready to serve.
func (s *Server) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		return nil
	default:
		return fmt.Errorf("http server is not ready")
	}
}

func (s *Server) router() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/-/healthz", s.handleHealthz)
	router.Get("/-/readyz", s.handleReadyz)
	router.Get("/-/status", s.handleStatus)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/refresh", s.handleRefresh)

		r.Get("/deployments", s.handleListDeployments)
		r.Get("/deployments/count", s.handleDeploymentsCount)
		r.Get("/statefulsets", s.handleListStatefulSets)
		r.Get("/statefulsets/count", s.handleStatefulSetsCount)
		r.Get("/cronjobs", s.handleListCronJobs)
		r.Get("/cronjobs/count", s.handleCronJobsCount)
		r.Get("/nodes", s.handleListNodes)
		r.Get("/nodes/count", s.handleNodesCount)
		r.Get("/pods", s.handleListPods)
		r.Get("/pods/count", s.handlePodsCount)

		r.Route("/{kind:deployments|statefulsets}/{namespace}/{name}", func(r chi.Router) {
			r.Get("/state", s.handleWorkloadState)
			r.Post("/scale", s.handleScale)
			r.Post("/start", s.handleStartWorkload)
			r.Post("/stop", s.handleStopWorkload)
		})

		r.Route("/cronjobs/{namespace}/{name}", func(r chi.Router) {
			r.Get("/state", s.handleCronJobState)
			r.Post("/suspend", s.handleSuspendCronJob)
			r.Post("/resume", s.handleResumeCronJob)
			r.Post("/trigger", s.handleTriggerCronJob)
		})
	})

	return router
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	if s.inShutdown.Load() {
		s.logger.InfoContext(ctx, "http server is shutting down, skipping start")

		return nil
	}

	addr := ":" + s.port
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      apiWriteTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	lc := &net.ListenConfig{
		KeepAliveConfig: net.KeepAliveConfig{
			Enable: true,
		},
	}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen tcp: %w", err)
	}

	s.logger.InfoContext(ctx, "http server listening", "addr", listener.Addr().String())

	go func() {
		close(s.ready)

		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.ErrorContext(ctx, "http server error", "error", err)
		}
	}()

	return nil
}

// Ready returns a channel that is closed when the HTTP server is ready to
// serve requests.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.inShutdown.CompareAndSwap(false, true) {
		s.logger.ErrorContext(ctx, "http server is already shutting down, skipping shutdown")

		return nil // Already shutting down
	}

	defer func() {
		s.logger.InfoContext(ctx, "http server shut downed")
	}()

	s.logger.InfoContext(ctx, "shutting down http server")

	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.ErrorContext(ctx, "error shutting down http server", "error", err)

		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.InfoContext(ctx, "http server closed properly")

	return nil
}
