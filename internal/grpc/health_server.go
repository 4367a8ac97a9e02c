// Package grpc exposes the standard gRPC health service for load balancers
// and orchestrators.
package grpc

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	googlegrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/sarathsp06/hookshot/internal/logger"
)

// DeliveryService is the health service name of the delivery pipeline. The
// empty name reports overall server health.
const DeliveryService = "hookshot.delivery"

// HealthFunc reports whether the delivery pipeline can make progress.
type HealthFunc func(ctx context.Context) bool

// HealthServer keeps a grpc health.Server in step with a HealthFunc.
type HealthServer struct {
	health   *health.Server
	healthy  HealthFunc
	interval time.Duration
	logger   *zap.SugaredLogger
}

// NewHealthServer creates a health server. Every service starts NOT_SERVING
// until the first check succeeds.
func NewHealthServer(healthy HealthFunc, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthServer{
		health:   health.NewServer(),
		healthy:  healthy,
		interval: interval,
		logger:   logger.NewLogger("grpc-health"),
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Health returns the underlying health service.
func (h *HealthServer) Health() *health.Server {
	return h.health
}

// Refresh checks once and publishes the result.
func (h *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	checkCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.healthy(checkCtx) {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.set(status)
	return status
}

// Run refreshes on every interval until ctx is done, then marks all
// services as shutting down.
func (h *HealthServer) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	last := h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return nil
		case <-ticker.C:
			if status := h.Refresh(ctx); status != last {
				h.logger.Infow("Health status changed", "from", last.String(), "to", status.String())
				last = status
			}
		}
	}
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(DeliveryService, status)
}

// NewServer builds a traced gRPC server serving the health service and
// reflection.
func NewServer(h *HealthServer) *googlegrpc.Server {
	srv := googlegrpc.NewServer(googlegrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, h.health)
	reflection.Register(srv)
	return srv
}
