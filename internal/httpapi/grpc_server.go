package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"nemprice.org/internal/dataset"
	"nemprice.org/internal/obs"
)

// StatsSource reports the live dataset snapshot.
type StatsSource interface {
	Stats() dataset.Stats
}

// HealthServer exposes dataset readiness over the standard grpc.health.v1
// service, both for the empty service name and for serviceName.
type HealthServer struct {
	srv    *health.Server
	source StatsSource
}

// NewHealthServer starts out NOT_SERVING until the first Sync.
func NewHealthServer(source StatsSource) *HealthServer {
	h := &HealthServer{srv: health.NewServer(), source: source}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *HealthServer) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Sync publishes SERVING when a snapshot is loaded and reports the result.
func (h *HealthServer) Sync() bool {
	ready := h.source.Stats().Loaded
	if ready {
		h.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	obs.SetReady(ready)
	return ready
}

// Run syncs on every tick until ctx is done, then marks everything
// NOT_SERVING so clients drain before the server stops.
func (h *HealthServer) Run(ctx context.Context, interval time.Duration) {
	h.Sync()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Sync()
		}
	}
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(serviceName, status)
}
