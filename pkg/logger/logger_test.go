package logger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/jihun-01/scratcha-backend/pkg/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewZapLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewZapLogger(Config{Level: "warn", Format: "json", Output: "file", FilePath: path, Service: "captcha-api"})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", zap.String("token", "abc"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "warn", line["log.level"])
	assert.Equal(t, "captcha-api", line["service"])
	assert.Contains(t, line, "@timestamp")
}

func TestNewZapLogger_BadLevelDefaultsToInfo(t *testing.T) {
	logger, err := NewZapLogger(Config{Level: "loud", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, logger.Level())
}

func TestParseGormLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"info":    gormlogger.Info,
		"warn":    gormlogger.Warn,
		"unknown": gormlogger.Warn,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseGormLevel(in), in)
	}
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn, 50*time.Millisecond, true)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	gl.Trace(context.Background(), time.Now(), sql, nil)
	assert.Zero(t, logs.Len())

	gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	gl.Trace(context.Background(), time.Now(), sql, gorm.ErrInvalidTransaction)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "GORM slow query", entries[0].Message)
	assert.Equal(t, "GORM query error", entries[1].Message)

	silent := gl.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sql, gorm.ErrInvalidTransaction)
	assert.Equal(t, 2, logs.Len())
}

func TestWithEchoLogger_ErrorBodies(t *testing.T) {
	e := echo.New()
	WithEchoLogger(e, zap.NewNop())
	e.GET("/app", func(c echo.Context) error {
		return apperrors.NewAppError(apperrors.ErrQuotaExhausted, "no tokens left", nil)
	})
	e.GET("/boom", func(c echo.Context) error {
		return apperrors.New("secret detail")
	})

	tests := []struct {
		path   string
		status int
		body   apperrors.Body
	}{
		{"/app", http.StatusPaymentRequired, apperrors.Body{Code: apperrors.ErrQuotaExhausted, Message: "no tokens left"}},
		{"/boom", http.StatusInternalServerError, apperrors.Body{Code: apperrors.ErrInternal, Message: "Internal Server Error"}},
		{"/missing", http.StatusNotFound, apperrors.Body{Code: apperrors.ErrNotFound, Message: "Not Found"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			var body apperrors.Body
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.body, body)
		})
	}
}

func TestEchoZapLogger_Level(t *testing.T) {
	l := NewEchoZapLogger(zap.NewNop())
	assert.Equal(t, log.OFF, l.Level())

	core, _ := observer.New(zapcore.WarnLevel)
	l = NewEchoZapLogger(zap.New(core))
	assert.Equal(t, log.WARN, l.Level())
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "sk_liv...", maskValue("x-api-key", "sk_live_1234567890"))
	assert.Equal(t, "[MASKED]", maskValue("X-Client-Token", "short"))
	assert.Equal(t, "application/json", maskValue("Content-Type", "application/json"))
}
