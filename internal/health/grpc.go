package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "taskflow.auth"

// Sync sets the serving status of hs from one readiness check.
func (c *Checker) Sync(ctx context.Context, hs *grpchealth.Server) error {
	status := healthpb.HealthCheckResponse_SERVING
	err := c.Ready(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
	return err
}

// Watch re-runs Sync every interval until ctx is done.
func (c *Checker) Watch(ctx context.Context, hs *grpchealth.Server, interval time.Duration, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	wasHealthy := true
	for {
		err := c.Sync(ctx, hs)
		switch {
		case err != nil && wasHealthy:
			log.Warn("health: not ready", zap.Error(err))
		case err == nil && !wasHealthy:
			log.Info("health: ready again")
		}
		wasHealthy = err == nil
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
