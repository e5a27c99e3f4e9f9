// Package grpcserver exposes the standard gRPC health service for the
// catalog. The overall status follows the process lifecycle; each named
// dependency ("store", "bus") follows a periodic probe.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const probeTimeout = 3 * time.Second

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// Server owns the gRPC listener and the health registry.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	probes   map[string]Probe
	interval time.Duration
	log      *slog.Logger
}

// New builds a Server. Every probe name becomes a health service name.
func New(probes map[string]Probe, interval time.Duration, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "grpc")

	s := &Server{
		health:   health.NewServer(),
		probes:   probes,
		interval: interval,
		log:      log,
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	healthpb.RegisterHealthServer(s.grpc, s.health)

	// Nothing is serving until the first probe round.
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for name := range probes {
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// Serve accepts connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Run marks the service SERVING and re-probes every dependency on each
// interval until ctx ends.
func (s *Server) Run(ctx context.Context) {
	s.CheckOnce(ctx)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckOnce(ctx)
		}
	}
}

// CheckOnce probes every dependency and records the result.
func (s *Server) CheckOnce(ctx context.Context) {
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.probes[name](pctx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.Warn("dependency unhealthy", "service", name, "err", err)
		}
		s.health.SetServingStatus(name, st)
	}
}

// Shutdown flips every status to NOT_SERVING, then drains in-flight RPCs.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.log.Info("stopped")
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	s.log.Debug("rpc",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"took", time.Since(start))
	return resp, err
}
