package database

import (
	"fmt"
	"net"

	"video_ingest_service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer grpc server exposing only grpc.health.v1
type HealthServer struct {
	Server *grpc.Server
	Health *health.Server
	lis    net.Listener
}

// NewHealthServer listen on ip:port, services start NOT_SERVING until SetServing
func NewHealthServer(ip, port string, services ...string) (*HealthServer, error) {
	addr := fmt.Sprintf("%s:%s", ip, port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen %s: %w", addr, err)
	}

	s := grpc.NewServer()
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)
	for _, svc := range services {
		h.SetServingStatus(svc, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	return &HealthServer{Server: s, Health: h, lis: lis}, nil
}

// SetServing mark service (and the overall "" service) serving or not
func (h *HealthServer) SetServing(service string, serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.Health.SetServingStatus(service, status)
	h.Health.SetServingStatus("", status)
}

// Serve blocking
func (h *HealthServer) Serve() error {
	logger.Log.Info(fmt.Sprintf("grpc health listening on %s", h.lis.Addr()))
	return h.Server.Serve(h.lis)
}

// Stop graceful stop, health reports NOT_SERVING first
func (h *HealthServer) Stop() {
	h.Health.Shutdown()
	h.Server.GracefulStop()
}
