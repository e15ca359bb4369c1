package httpapi

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// GRPCServer exposes readiness through the standard gRPC health protocol.
type GRPCServer struct {
	grpc_health_v1.UnimplementedHealthServer

	readiness readinessChecker
}

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(r readinessChecker) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	return &GRPCServer{readiness: r}
}

// Check maps readiness to SERVING or NOT_SERVING. Only the overall service
// ("") and serviceName are known.
func (s *GRPCServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if err := s.readiness.Check(ctx); err != nil {
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}
