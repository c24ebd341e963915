package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jihun-01/scratcha-backend/pkg/config"
	"github.com/jihun-01/scratcha-backend/pkg/logger"
	"go.uber.org/zap"
)

// 서버 역할
const (
	RoleAPI    = "api"
	RoleWorker = "worker"
	RoleAll    = "all"
)

// 행동 신호가 없을 때의 판정 정책
const (
	AbsentSignalDeny  = "deny"
	AbsentSignalAllow = "allow"
)

// DatabaseConfig 데이터베이스 설정
type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
	SlowThreshold   time.Duration
	AutoMigrate     bool
}

// DSN returns the libpq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// BehaviorConfig 행동 분석(스코어러) 설정
type BehaviorConfig struct {
	ModelPath          string
	CalibrationPath    string
	ThresholdPath      string
	Threshold          float64
	DefaultTemperature float64
	AbsentSignalPolicy string
}

// ArchiveConfig 텔레메트리 보관(S3) 설정
type ArchiveConfig struct {
	Enabled      bool
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	QueueSize    int
	Workers      int
	Timeout      time.Duration
}

// Config 캡챠 서비스 설정 구조체
type Config struct {
	// 서비스 기본 정보
	Service struct {
		Name    string
		Version string
		Role    string
	}

	// 서버 설정
	Server struct {
		HTTP struct {
			Port            string
			Debug           bool
			ReadTimeout     time.Duration
			WriteTimeout    time.Duration
			ShutdownTimeout time.Duration
		}
		GRPC struct {
			Enabled bool
			Port    string
		}
	}

	Database DatabaseConfig

	// Redis 설정
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// 로그 설정
	Log struct {
		Level    string
		Format   string
		Output   string
		FilePath string
	}

	// 캡챠 도메인 설정
	Captcha struct {
		ImageBaseURL     string
		ResponseDeadline time.Duration
		Behavior         BehaviorConfig
	}

	// 만료 세션 정리 작업
	Sweeper struct {
		Enabled   bool
		Schedule  string
		BatchSize int
	}

	// 비동기 검증 큐
	Queue struct {
		Backend     string
		Key         string
		StatusTTL   time.Duration
		Workers     int
		PollTimeout time.Duration
		JobTimeout  time.Duration
	}

	Archive ArchiveConfig

	GeoIP struct {
		DatabasePath string
	}

	Metrics struct {
		Enabled   bool
		Namespace string
	}

	// 로거 인스턴스
	Logger *zap.Logger
}

var defaults = map[string]interface{}{
	"service.name":                          "captcha",
	"service.role":                          RoleAll,
	"server.http.port":                      "8001",
	"server.http.read_timeout":              "10s",
	"server.http.write_timeout":             "10s",
	"server.http.shutdown_timeout":          "15s",
	"server.grpc.enabled":                   true,
	"server.grpc.port":                      "9001",
	"database.port":                         5432,
	"database.sslmode":                      "disable",
	"database.max_open_conns":               25,
	"database.max_idle_conns":               5,
	"database.conn_max_lifetime":            "5m",
	"database.log_level":                    "warn",
	"database.slow_threshold":               "200ms",
	"redis.addr":                            "localhost:6379",
	"log.level":                             "info",
	"log.format":                            "json",
	"log.output":                            "stdout",
	"captcha.response_deadline":             "3m",
	"captcha.behavior.model_path":           "model/weights.json",
	"captcha.behavior.calibration_path":     "model/calibration.json",
	"captcha.behavior.threshold_path":       "model/thresholds.json",
	"captcha.behavior.default_temperature":  2.0,
	"captcha.behavior.absent_signal_policy": AbsentSignalDeny,
	"sweeper.enabled":                       true,
	"sweeper.schedule":                      "@every 60s",
	"sweeper.batch_size":                    200,
	"queue.backend":                         "redis",
	"queue.key":                             "captcha:verify:jobs",
	"queue.status_ttl":                      "10m",
	"queue.workers":                         4,
	"queue.poll_timeout":                    "5s",
	"queue.job_timeout":                     "30s",
	"archive.prefix":                        "human_data",
	"archive.region":                        "ap-northeast-2",
	"archive.queue_size":                    256,
	"archive.workers":                       2,
	"archive.timeout":                       "10s",
	"metrics.enabled":                       true,
	"metrics.namespace":                     "scratcha",
}

// Load 설정 파일 로드
func Load() (*Config, error) {
	cfg, err := config.Load("captcha", defaults)
	if err != nil {
		return nil, err
	}

	appConfig := FromSource(cfg)

	// 과거 배포에서 사용하던 환경 변수
	if raw := os.Getenv("LOGIT_TEMPERATURE"); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			appConfig.Captcha.Behavior.DefaultTemperature = t
		}
	}

	if err := appConfig.Validate(); err != nil {
		return nil, err
	}

	appConfig.Logger, err = logger.NewZapLogger(logger.Config{
		Level:       appConfig.Log.Level,
		Format:      appConfig.Log.Format,
		Output:      appConfig.Log.Output,
		FilePath:    appConfig.Log.FilePath,
		Development: appConfig.Server.HTTP.Debug,
		Service:     appConfig.Service.Name,
	})
	if err != nil {
		return nil, err
	}

	return appConfig, nil
}

// FromSource maps raw configuration keys into the typed struct
func FromSource(cfg config.Config) *Config {
	appConfig := &Config{}

	// 서비스 정보
	appConfig.Service.Name = cfg.GetString("service.name")
	appConfig.Service.Version = cfg.GetString("service.version")
	appConfig.Service.Role = cfg.GetString("service.role")

	// HTTP / gRPC 서버 설정
	appConfig.Server.HTTP.Port = cfg.GetString("server.http.port")
	appConfig.Server.HTTP.Debug = cfg.GetBool("server.http.debug")
	appConfig.Server.HTTP.ReadTimeout = cfg.GetDuration("server.http.read_timeout")
	appConfig.Server.HTTP.WriteTimeout = cfg.GetDuration("server.http.write_timeout")
	appConfig.Server.HTTP.ShutdownTimeout = cfg.GetDuration("server.http.shutdown_timeout")
	appConfig.Server.GRPC.Enabled = cfg.GetBool("server.grpc.enabled")
	appConfig.Server.GRPC.Port = cfg.GetString("server.grpc.port")

	// 데이터베이스 설정
	appConfig.Database.Host = cfg.GetString("database.host")
	appConfig.Database.Port = cfg.GetInt("database.port")
	appConfig.Database.Name = cfg.GetString("database.name")
	appConfig.Database.User = cfg.GetString("database.user")
	appConfig.Database.Password = cfg.GetString("database.password")
	appConfig.Database.SSLMode = cfg.GetString("database.sslmode")
	appConfig.Database.MaxOpenConns = cfg.GetInt("database.max_open_conns")
	appConfig.Database.MaxIdleConns = cfg.GetInt("database.max_idle_conns")
	appConfig.Database.ConnMaxLifetime = cfg.GetDuration("database.conn_max_lifetime")
	appConfig.Database.LogLevel = cfg.GetString("database.log_level")
	appConfig.Database.SlowThreshold = cfg.GetDuration("database.slow_threshold")
	appConfig.Database.AutoMigrate = cfg.GetBool("database.auto_migrate")

	// Redis 설정
	appConfig.Redis.Addr = cfg.GetString("redis.addr")
	appConfig.Redis.Password = cfg.GetString("redis.password")
	appConfig.Redis.DB = cfg.GetInt("redis.db")

	// 로그 설정
	appConfig.Log.Level = cfg.GetString("log.level")
	appConfig.Log.Format = cfg.GetString("log.format")
	appConfig.Log.Output = cfg.GetString("log.output")
	appConfig.Log.FilePath = cfg.GetString("log.file_path")

	// 캡챠 설정
	appConfig.Captcha.ImageBaseURL = cfg.GetString("captcha.image_base_url")
	appConfig.Captcha.ResponseDeadline = cfg.GetDuration("captcha.response_deadline")
	appConfig.Captcha.Behavior.ModelPath = cfg.GetString("captcha.behavior.model_path")
	appConfig.Captcha.Behavior.CalibrationPath = cfg.GetString("captcha.behavior.calibration_path")
	appConfig.Captcha.Behavior.ThresholdPath = cfg.GetString("captcha.behavior.threshold_path")
	appConfig.Captcha.Behavior.Threshold = cfg.GetFloat64("captcha.behavior.threshold")
	appConfig.Captcha.Behavior.DefaultTemperature = cfg.GetFloat64("captcha.behavior.default_temperature")
	appConfig.Captcha.Behavior.AbsentSignalPolicy = cfg.GetString("captcha.behavior.absent_signal_policy")

	// 정리 작업
	appConfig.Sweeper.Enabled = cfg.GetBool("sweeper.enabled")
	appConfig.Sweeper.Schedule = cfg.GetString("sweeper.schedule")
	appConfig.Sweeper.BatchSize = cfg.GetInt("sweeper.batch_size")

	// 큐
	appConfig.Queue.Backend = cfg.GetString("queue.backend")
	appConfig.Queue.Key = cfg.GetString("queue.key")
	appConfig.Queue.StatusTTL = cfg.GetDuration("queue.status_ttl")
	appConfig.Queue.Workers = cfg.GetInt("queue.workers")
	appConfig.Queue.PollTimeout = cfg.GetDuration("queue.poll_timeout")
	appConfig.Queue.JobTimeout = cfg.GetDuration("queue.job_timeout")

	// 텔레메트리 보관
	appConfig.Archive.Enabled = cfg.GetBool("archive.enabled")
	appConfig.Archive.Bucket = cfg.GetString("archive.bucket")
	appConfig.Archive.Prefix = cfg.GetString("archive.prefix")
	appConfig.Archive.Region = cfg.GetString("archive.region")
	appConfig.Archive.Endpoint = cfg.GetString("archive.endpoint")
	appConfig.Archive.AccessKey = cfg.GetString("archive.access_key")
	appConfig.Archive.SecretKey = cfg.GetString("archive.secret_key")
	appConfig.Archive.UsePathStyle = cfg.GetBool("archive.use_path_style")
	appConfig.Archive.QueueSize = cfg.GetInt("archive.queue_size")
	appConfig.Archive.Workers = cfg.GetInt("archive.workers")
	appConfig.Archive.Timeout = cfg.GetDuration("archive.timeout")

	appConfig.GeoIP.DatabasePath = cfg.GetString("geoip.database_path")

	appConfig.Metrics.Enabled = cfg.GetBool("metrics.enabled")
	appConfig.Metrics.Namespace = cfg.GetString("metrics.namespace")

	return appConfig
}

// Validate rejects values the service cannot run with
func (c *Config) Validate() error {
	switch c.Service.Role {
	case RoleAPI, RoleWorker, RoleAll:
	default:
		return fmt.Errorf("unknown service.role %q", c.Service.Role)
	}
	switch c.Captcha.Behavior.AbsentSignalPolicy {
	case AbsentSignalDeny, AbsentSignalAllow:
	default:
		return fmt.Errorf("unknown captcha.behavior.absent_signal_policy %q", c.Captcha.Behavior.AbsentSignalPolicy)
	}
	switch c.Queue.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown queue.backend %q", c.Queue.Backend)
	}
	if c.Captcha.ResponseDeadline <= 0 {
		return fmt.Errorf("captcha.response_deadline must be positive")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive is enabled")
	}
	return nil
}

// RunsAPI reports whether the HTTP API is served by this process
func (c *Config) RunsAPI() bool {
	return c.Service.Role == RoleAPI || c.Service.Role == RoleAll
}

// RunsWorkers reports whether verification workers and the sweeper run in this process
func (c *Config) RunsWorkers() bool {
	return c.Service.Role == RoleWorker || c.Service.Role == RoleAll
}
