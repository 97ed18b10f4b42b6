package api

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"dizzycode.xyz/strategy-engine/pkg/logger"
)

// GRPCServer gRPC 健康檢查服務
//
// 每個交易對註冊為一個 service name，格式 strategy.{instId}；
// 空字串代表整個服務。
type GRPCServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        logger.Logger
}

// NewGRPCServer 創建 gRPC Server 並啟用 reflection
func NewGRPCServer(log logger.Logger) *GRPCServer {
	if log == nil {
		log = logger.NewNop()
	}

	s := &GRPCServer{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		log:        log,
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	// reflection 必須在服務註冊之後
	reflection.Register(s.grpcServer)
	log.Debug("gRPC reflection enabled")

	return s
}

// HealthServiceName 交易對對應的 health service name
func HealthServiceName(instID string) string {
	return "strategy." + instID
}

// SetServing 更新交易對的健康狀態
func (s *GRPCServer) SetServing(instID string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthServiceName(instID), status)
}

// Serve 在已建立的 listener 上服務（阻塞）
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.log.Info("gRPC server listening", map[string]any{
		"address": lis.Addr().String(),
	})
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Start 監聽端口並服務（阻塞）
func (s *GRPCServer) Start(port string) error {
	address := fmt.Sprintf(":%s", port)
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return s.Serve(lis)
}

// GracefulStop 等待處理中的請求完成後關閉
func (s *GRPCServer) GracefulStop() {
	s.log.Info("Gracefully stopping gRPC server...")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.log.Info("gRPC server stopped")
}
