// File: pkg/logger/echo_logger.go
package logger

import (
	"io"
	"net/http"

	apperrors "github.com/jihun-01/scratcha-backend/pkg/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 로그에 원문을 남기지 않을 헤더
var maskedHeaders = map[string]bool{
	"X-Api-Key":      true,
	"X-Client-Token": true,
}

// NewEchoRequestLogger는 Echo 서버를 위한 Request Logger를 생성합니다.
// zap을 사용하여 HTTP 요청과 응답을 로깅합니다.
func NewEchoRequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
		HandleError: true,

		LogLatency:      true,
		LogRemoteIP:     true,
		LogMethod:       true,
		LogURI:          true,
		LogRoutePath:    true,
		LogRequestID:    true,
		LogUserAgent:    true,
		LogStatus:       true,
		LogError:        true,
		LogResponseSize: true,
		LogHeaders:      []string{"Content-Type", "X-Api-Key", "X-Client-Token"},

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("request.remote_ip", v.RemoteIP),
				zap.String("request.method", v.Method),
				zap.String("request.uri", v.URI),
				zap.String("request.route", v.RoutePath),
				zap.String("request.user_agent", v.UserAgent),
				zap.String("request.request_id", v.RequestID),
				zap.Int("response.status", v.Status),
				zap.Duration("response.latency", v.Latency),
				zap.Int64("response.response_size", v.ResponseSize),
			}

			if len(v.Headers) > 0 {
				headers := make(map[string]string, len(v.Headers))
				for k, values := range v.Headers {
					if len(values) == 0 {
						continue
					}
					headers[k] = maskValue(k, values[0])
				}
				fields = append(fields, zap.Any("request.headers", headers))
			}

			switch {
			case v.Status >= 500:
				if v.Error != nil {
					fields = append(fields, zap.Error(v.Error))
				}
				logger.Error("Server error", fields...)
			case v.Status >= 400:
				if v.Error != nil {
					fields = append(fields, zap.Error(v.Error))
				}
				logger.Warn("Client error", fields...)
			default:
				logger.Info("Request completed", fields...)
			}
			return nil
		},
	})
}

// maskValue 민감한 헤더 값은 앞 6자리만 남깁니다.
func maskValue(header, value string) string {
	if !maskedHeaders[http.CanonicalHeaderKey(header)] {
		return value
	}
	if len(value) > 10 {
		return value[:6] + "..."
	}
	return "[MASKED]"
}

// WithEchoLogger Echo에 zap 기반 Logger와 에러 핸들러를 설정합니다.
// 에러 응답 본문은 pkg/errors 의 코드 체계를 따릅니다.
func WithEchoLogger(e *echo.Echo, logger *zap.Logger) {
	e.Logger = NewEchoZapLogger(logger)

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		he := apperrors.ToHTTPError(err)
		body := he.Message
		if _, ok := body.(apperrors.Body); !ok {
			body = apperrors.Body{Code: codeForStatus(he.Code), Message: messageOf(he)}
		}

		if he.Code >= http.StatusInternalServerError {
			logger.Error("HTTP error",
				zap.Error(err),
				zap.Int("status", he.Code),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("ip", c.RealIP()),
			)
		}

		var sendErr error
		if c.Request().Method == http.MethodHead {
			sendErr = c.NoContent(he.Code)
		} else {
			sendErr = c.JSON(he.Code, body)
		}
		if sendErr != nil {
			logger.Error("Failed to send error response", zap.Error(sendErr))
		}
	}
}

func messageOf(he *echo.HTTPError) string {
	if m, ok := he.Message.(string); ok {
		return m
	}
	return http.StatusText(he.Code)
}

// codeForStatus echo 내장 에러(404 라우트 없음, 405 등)를 에러 코드로 변환합니다.
func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return apperrors.ErrNotFound
	case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusUnsupportedMediaType:
		return apperrors.ErrInvalidArgument
	case http.StatusUnauthorized:
		return apperrors.ErrUnauthenticated
	case http.StatusForbidden:
		return apperrors.ErrUnauthorized
	default:
		return apperrors.ErrInternal
	}
}

// EchoZapLogger는 echo.Logger 인터페이스를 구현한 zap 로거 래퍼입니다.
// Debug/Info/Warn/Error/Fatal/Panic 계열은 SugaredLogger 메서드를 그대로 사용합니다.
type EchoZapLogger struct {
	*zap.SugaredLogger
	base   *zap.Logger
	prefix string
}

// NewEchoZapLogger는 Echo의 Logger 인터페이스를 구현한 zap 로거 래퍼를 생성합니다.
func NewEchoZapLogger(logger *zap.Logger) *EchoZapLogger {
	return &EchoZapLogger{SugaredLogger: logger.Sugar(), base: logger}
}

func (l *EchoZapLogger) Output() io.Writer { return &zapWriter{logger: l.base} }

// SetOutput zap 출력 대상은 생성 시점에 고정됩니다.
func (l *EchoZapLogger) SetOutput(io.Writer) {}

func (l *EchoZapLogger) Prefix() string { return l.prefix }

func (l *EchoZapLogger) SetPrefix(p string) { l.prefix = p }

// Level zap 레벨을 gommon 레벨로 변환합니다.
func (l *EchoZapLogger) Level() log.Lvl {
	switch l.base.Level() {
	case zapcore.DebugLevel:
		return log.DEBUG
	case zapcore.InfoLevel:
		return log.INFO
	case zapcore.WarnLevel:
		return log.WARN
	case zapcore.ErrorLevel:
		return log.ERROR
	default:
		return log.OFF
	}
}

// SetLevel zap 레벨은 설정 파일로만 변경합니다.
func (l *EchoZapLogger) SetLevel(log.Lvl) {}

func (l *EchoZapLogger) SetHeader(string) {}

func (l *EchoZapLogger) Print(i ...interface{}) { l.Info(i...) }

func (l *EchoZapLogger) Printf(format string, args ...interface{}) { l.Infof(format, args...) }

func (l *EchoZapLogger) Printj(j log.JSON) { l.base.Info("json_message", zap.Any("json", j)) }

func (l *EchoZapLogger) Debugj(j log.JSON) { l.base.Debug("json_message", zap.Any("json", j)) }

func (l *EchoZapLogger) Infoj(j log.JSON) { l.base.Info("json_message", zap.Any("json", j)) }

func (l *EchoZapLogger) Warnj(j log.JSON) { l.base.Warn("json_message", zap.Any("json", j)) }

func (l *EchoZapLogger) Errorj(j log.JSON) { l.base.Error("json_message", zap.Any("json", j)) }

func (l *EchoZapLogger) Fatalj(j log.JSON) { l.base.Fatal("json_message", zap.Any("json", j)) }

func (l *EchoZapLogger) Panicj(j log.JSON) { l.base.Panic("json_message", zap.Any("json", j)) }

// zapWriter는 io.Writer 인터페이스를 구현한 zap 로거 래퍼입니다.
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Write(p []byte) (n int, err error) {
	w.logger.Info(string(p))
	return len(p), nil
}
