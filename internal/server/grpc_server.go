package server

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/campusmatch/engine/internal/config"
)

// StartGRPCServer serves the standard health service (for orchestrator
// probes) until ctx is done, then stops gracefully.
func StartGRPCServer(ctx context.Context, cfg *config.Config) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return serveGRPC(ctx, lis)
}

func serveGRPC(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		grpcServer.GracefulStop()
	}()

	return grpcServer.Serve(lis)
}
