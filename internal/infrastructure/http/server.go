package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/jihun-01/scratcha-backend/pkg/errors"
	"github.com/jihun-01/scratcha-backend/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server HTTP 서버 구조체입니다.
type Server struct {
	echo         *echo.Echo
	logger       *zap.Logger
	port         int
	readTimeout  time.Duration
	writeTimeout time.Duration
	gatherer     prometheus.Gatherer
	middlewares  []echo.MiddlewareFunc
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

// WithTimeouts 요청 읽기/쓰기 타임아웃을 설정합니다. 0 이면 제한 없음.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// WithMetrics /metrics 에서 노출할 레지스트리를 설정합니다.
func WithMetrics(gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithMiddleware 로깅 미들웨어 뒤에 추가할 미들웨어입니다.
func WithMiddleware(mw ...echo.MiddlewareFunc) ServerOption {
	return func(s *Server) {
		s.middlewares = append(s.middlewares, mw...)
	}
}

// NewServer HTTP 서버를 생성합니다.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		echo:   echo.New(),
		logger: zap.NewNop(),
		port:   8080,
	}

	for _, opt := range opts {
		opt(s)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = s.readTimeout
	e.Server.WriteTimeout = s.writeTimeout
	e.Validator = NewRequestValidator()

	logger.WithEchoLogger(e, s.logger)

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(logger.NewEchoRequestLogger(s.logger))
	for _, mw := range s.middlewares {
		e.Use(mw)
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

// RegisterRoutes 라우트를 등록하는 메서드입니다.
func (s *Server) RegisterRoutes(registerFunc func(e *echo.Echo)) {
	registerFunc(s.echo)
}

// Start 서버를 시작합니다. Shutdown 으로 종료된 경우 nil 을 반환합니다.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("HTTP 서버 시작", zap.String("addr", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 서버를 안전하게 종료합니다.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP 서버 종료 중...")
	return s.echo.Shutdown(ctx)
}

// Echo 내부 Echo 인스턴스를 반환합니다.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// RequestValidator go-playground/validator 를 echo.Validator 로 연결합니다.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate 검증 실패 시 INVALID_ARGUMENT AppError 를 반환합니다.
func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return apperrors.NewAppError(apperrors.ErrInvalidArgument, "요청 형식이 올바르지 않습니다.", err)
	}
	return nil
}
