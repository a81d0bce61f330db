package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry. It serves only the
// standard health service.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	return grpc.NewServer(opts...)
}

// RegisterServices registers the health service on s.
func RegisterServices(s grpc.ServiceRegistrar, hs *grpchealth.Server) {
	healthpb.RegisterHealthServer(s, hs)
}
