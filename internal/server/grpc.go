package server

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService is the service name laurel reports in the gRPC health
// protocol, alongside the overall "" entry.
const HealthService = "laurel"

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// NewGRPCServer creates a gRPC server with standard interceptors, registers
// the health service and reflection, and returns the server ready to serve.
func NewGRPCServer(hs *health.Server, logger *slog.Logger) *grpc.Server {
	logger = logger.With("component", "grpc")
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor(logger),
		),
	)

	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv
}

// NewHealthServer returns a health server that reports NOT_SERVING until
// SetServing is called.
func NewHealthServer() *health.Server {
	hs := health.NewServer()
	SetServing(hs, false)
	return hs
}

// SetServing flips both the overall and the laurel service status.
func SetServing(hs *health.Server, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(HealthService, st)
}

// CheckHealth asks the gRPC server at addr for laurel's serving status and
// returns it as a lower-case string such as "serving".
func CheckHealth(ctx context.Context, addr string) (string, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		return "", fmt.Errorf("health check: %w", err)
	}
	return statusName(resp.GetStatus()), nil
}

func statusName(s healthpb.HealthCheckResponse_ServingStatus) string {
	switch s {
	case healthpb.HealthCheckResponse_SERVING:
		return "serving"
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return "not_serving"
	case healthpb.HealthCheckResponse_SERVICE_UNKNOWN:
		return "service_unknown"
	}
	return "unknown"
}
