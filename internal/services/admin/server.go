package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "fleetsim"

// HTTPServer serves the admin router with access logging.
type HTTPServer struct {
	srv *http.Server
	log *slog.Logger
}

func NewHTTPServer(addr string, router http.Handler, accessLog io.Writer, log *slog.Logger) *HTTPServer {
	if log == nil {
		log = slog.Default()
	}
	h := router
	if accessLog != nil {
		h = handlers.LoggingHandler(accessLog, router)
	}
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handlers.RecoveryHandler()(h),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log.With("component", "admin-http"),
	}
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *HTTPServer) Serve(ctx context.Context, lis net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("admin HTTP listening", "addr", lis.Addr().String())
		errc <- s.srv.Serve(lis)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin http: %w", err)
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shCtx)
	}
}

// HealthServer publishes broker connectivity through the standard gRPC
// health protocol.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	conn   Connectivity
	poll   time.Duration
	log    *slog.Logger
}

func NewHealthServer(conn Connectivity, poll time.Duration, log *slog.Logger) *HealthServer {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	hs := &HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		conn:   conn,
		poll:   poll,
		log:    log.With("component", "grpc-health"),
	}
	healthpb.RegisterHealthServer(hs.grpc, hs.health)
	hs.refresh()
	return hs
}

func (h *HealthServer) refresh() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if h.conn != nil && h.conn.IsConnected() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(ServiceName, st)
}

// Serve blocks until ctx is cancelled, refreshing the reported status on
// every poll interval.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		h.log.Info("gRPC health listening", "addr", lis.Addr().String())
		errc <- h.grpc.Serve(lis)
	}()

	t := time.NewTicker(h.poll)
	defer t.Stop()
	for {
		select {
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("grpc health: %w", err)
			}
			return nil
		case <-t.C:
			h.refresh()
		case <-ctx.Done():
			h.health.Shutdown()
			h.grpc.GracefulStop()
			return nil
		}
	}
}
