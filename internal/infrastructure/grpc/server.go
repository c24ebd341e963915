package grpc

import (
	"context"
	"fmt"
	"net"

	"github.com/jihun-01/scratcha-backend/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ScorerServiceName 행동 분석 모델 가용성을 나타내는 헬스 체크 서비스 이름
const ScorerServiceName = "scratcha.captcha.Scorer"

// Server gRPC 서버 구조체입니다.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *zap.Logger
	port       int
}

// ServerOption Server 생성을 위한 옵션 함수 타입입니다.
type ServerOption func(*Server)

// WithPort 서버 포트를 설정하는 옵션입니다.
func WithPort(port int) ServerOption {
	return func(s *Server) {
		s.port = port
	}
}

// WithLogger 로거를 설정하는 옵션입니다.
func WithLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer gRPC 서버를 생성합니다. 헬스 체크와 리플렉션만 등록됩니다.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		logger: zap.NewNop(),
		port:   9090,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.grpcServer = grpc.NewServer(
		grpc.UnaryInterceptor(logger.NewGrpcUnaryServerInterceptor(s.logger)),
		grpc.StreamInterceptor(logger.NewGrpcStreamServerInterceptor(s.logger)),
	)

	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ScorerServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	reflection.Register(s.grpcServer)

	return s
}

// SetScorerServing 모델 로드 상태를 헬스 체크에 반영합니다.
func (s *Server) SetScorerServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ScorerServiceName, status)
}

// Start 서버를 시작합니다.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gRPC 서버 리스닝 실패: %w", err)
	}

	s.logger.Info("gRPC 서버 시작", zap.String("addr", addr))
	return s.Serve(lis)
}

// Serve 주어진 리스너로 서비스합니다.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Shutdown 서버를 안전하게 종료합니다.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gRPC 서버 종료 중...")
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.logger.Warn("gRPC 서버 강제 종료")
		s.grpcServer.Stop()
		return ctx.Err()
	case <-stopped:
		s.logger.Info("gRPC 서버 종료 완료")
		return nil
	}
}
