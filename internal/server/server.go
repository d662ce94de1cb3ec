package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/httpx"
	"github.com/fekuna/omnipos-backoffice/pkg/logger"
	"github.com/fekuna/omnipos-backoffice/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const checkTimeout = 2 * time.Second

// Route mounts one API area below /api.
type Route struct {
	Prefix   string
	Register func(chi.Router)
}

// Check reports whether a dependency is usable.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// NewRouter builds the HTTP API: request ids, actor, access log, panic recovery,
// /healthz and every route under /api.
func NewRouter(log logger.ZapLogger, routes []Route, checks ...Check) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Actor)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthz(checks))
	r.Route("/api", func(api chi.Router) {
		for _, rt := range routes {
			api.Route(rt.Prefix, rt.Register)
		}
	})
	return r
}

func healthz(checks []Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[c.Name] = err.Error()
				continue
			}
			results[c.Name] = "ok"
		}
		httpx.WriteJSON(w, status, map[string]interface{}{
			"success": status == http.StatusOK,
			"checks":  results,
		})
	}
}

// Server runs the HTTP API next to the operational gRPC endpoint.
type Server struct {
	http            *http.Server
	grpc            *grpc.Server
	health          *health.Server
	logger          logger.ZapLogger
	shutdownTimeout time.Duration
}

func New(handler http.Handler, log logger.ZapLogger, shutdownTimeout time.Duration) *Server {
	g := grpc.NewServer(grpc.UnaryInterceptor(middleware.ContextInterceptor(log)))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(g, hs)
	reflection.Register(g)

	return &Server{
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpc:            g,
		health:          hs,
		logger:          log,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run serves on both listeners until ctx is done or one of them fails, then
// drains in-flight requests.
func (s *Server) Run(ctx context.Context, httpLis, grpcLis net.Listener) error {
	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", httpLis.Addr().String()))
		if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		s.logger.Info("Starting gRPC server", zap.String("addr", grpcLis.Addr().String()))
		if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		s.logger.Error("server failed", zap.Error(runErr))
	}

	s.logger.Info("Shutting down server...")
	s.health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		s.grpc.Stop()
		<-stopped
	}

	s.logger.Info("Server stopped")
	return runErr
}
