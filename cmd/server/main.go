package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	httpHandler "github.com/jihun-01/scratcha-backend/internal/adapter/handler/http"
	"github.com/jihun-01/scratcha-backend/internal/adapter/repository"
	"github.com/jihun-01/scratcha-backend/internal/config"
	domainRepo "github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/database"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/geoip"
	grpcServer "github.com/jihun-01/scratcha-backend/internal/infrastructure/grpc"
	httpServer "github.com/jihun-01/scratcha-backend/internal/infrastructure/http"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/jobqueue"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/metrics"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/storage/archive"
	"github.com/jihun-01/scratcha-backend/internal/usecase"
	"github.com/jihun-01/scratcha-backend/internal/usecase/behavior"
	"github.com/jihun-01/scratcha-backend/internal/worker"
	"github.com/jihun-01/scratcha-backend/pkg/messaging"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. 설정 로드
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("설정 로드 실패: %v", err))
	}

	log := cfg.Logger
	defer log.Sync()

	log.Info("캡챠 서비스 시작",
		zap.String("role", cfg.Service.Role),
		zap.String("version", cfg.Service.Version))

	if err := run(cfg, log); err != nil {
		log.Fatal("서비스 실행 실패", zap.Error(err))
	}
	log.Info("서버 정상 종료")
}

func run(cfg *config.Config, log *zap.Logger) error {
	// 2. 데이터베이스
	db, err := database.NewConnection(cfg.Database, log)
	if err != nil {
		return err
	}
	defer database.Close(db, log)

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, log); err != nil {
			return err
		}
	}

	// 3. 메트릭
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(registry, cfg.Metrics.Namespace)
	}

	// 4. 비동기 큐
	queue, closeQueue, err := newJobQueue(cfg, log)
	if err != nil {
		return err
	}
	defer closeQueue()

	// 5. 리포지토리
	tx := database.NewTransactor(db)
	sessionRepo := repository.NewSessionRepository(db, log)
	usageRepo := repository.NewUsageRepository(db, log)
	credentialRepo := repository.NewCredentialRepository(db, log)
	quotaRepo := repository.NewQuotaRepository(db, log)
	problemRepo := repository.NewProblemRepository(db, log)

	geo, closeGeo := newGeoLocator(cfg, log)
	defer closeGeo()

	// 6. 행동 분석 모델
	behaviorCfg := cfg.Captcha.Behavior
	models := behavior.NewModelHandle(behaviorCfg.ModelPath, log)
	calibration := behavior.NewCalibrationSource(behaviorCfg.CalibrationPath, behaviorCfg.DefaultTemperature, log)
	threshold, err := behavior.LoadThreshold(behaviorCfg.ThresholdPath, 0.5)
	if err != nil {
		log.Warn("임계값 파일을 읽지 못해 기본값 사용", zap.String("path", behaviorCfg.ThresholdPath), zap.Error(err))
	}
	if behaviorCfg.Threshold > 0 {
		threshold = behaviorCfg.Threshold
	}
	analyzer := behavior.NewAnalyzer(behavior.NewScorer(models, calibration, threshold))
	if _, err := models.Network(); err != nil {
		log.Warn("행동 분석 모델 없이 시작합니다", zap.String("path", behaviorCfg.ModelPath))
	}

	var recorder usecase.Recorder
	if m != nil {
		recorder = m
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var shutdowns []func(context.Context) error

	// 7. API 역할: HTTP / gRPC 서버
	if cfg.RunsAPI() {
		telemetryArchive, closeArchive, err := newArchive(ctx, cfg, m, log)
		if err != nil {
			return err
		}

		challenges := usecase.NewChallengeService(tx, credentialRepo, quotaRepo, problemRepo, sessionRepo, usageRepo,
			geo, cfg.Captcha.ImageBaseURL, recorder, log)
		submissions := usecase.NewSubmissionService(queue, telemetryArchive, log)

		opts := []httpServer.ServerOption{
			httpServer.WithPort(parseInt(cfg.Server.HTTP.Port, 8001)),
			httpServer.WithLogger(log),
			httpServer.WithTimeouts(cfg.Server.HTTP.ReadTimeout, cfg.Server.HTTP.WriteTimeout),
			httpServer.WithMetrics(registry),
		}
		if m != nil {
			opts = append(opts, httpServer.WithMiddleware(m.Middleware()))
		}
		httpSrv := httpServer.NewServer(opts...)
		httpSrv.RegisterRoutes(func(e *echo.Echo) {
			httpHandler.NewCaptchaHandler(challenges, submissions, log).RegisterRoutes(e)
		})
		g.Go(httpSrv.Start)
		shutdowns = append(shutdowns, httpSrv.Shutdown, closeArchive)

		if cfg.Server.GRPC.Enabled {
			grpcSrv := grpcServer.NewServer(
				grpcServer.WithPort(parseInt(cfg.Server.GRPC.Port, 9001)),
				grpcServer.WithLogger(log),
			)
			g.Go(grpcSrv.Start)
			g.Go(func() error {
				watchModel(ctx, models, grpcSrv.SetScorerServing)
				return nil
			})
			shutdowns = append(shutdowns, grpcSrv.Shutdown)
		}
	}

	// 8. 워커 역할: 검증 워커, 만료 세션 정리
	if cfg.RunsWorkers() {
		verifier := usecase.NewVerificationService(tx, sessionRepo, usageRepo, analyzer, usecase.VerificationOptions{
			ResponseDeadline:  cfg.Captcha.ResponseDeadline,
			AllowAbsentSignal: behaviorCfg.AbsentSignalPolicy == config.AbsentSignalAllow,
		}, recorder, log)

		var gauge worker.DepthGauge
		if m != nil {
			gauge = m
		}
		verificationWorker := worker.NewVerificationWorker(queue, verifier, cfg.Queue.Workers, cfg.Queue.JobTimeout, gauge, log)
		g.Go(func() error {
			return verificationWorker.Run(ctx)
		})

		if cfg.Sweeper.Enabled {
			sweeper := usecase.NewSweeperService(tx, sessionRepo, usageRepo, cfg.Captcha.ResponseDeadline,
				cfg.Sweeper.BatchSize, recorder, log)
			scheduler, err := worker.NewSweeperScheduler(cfg.Sweeper.Schedule, sweeper, time.Minute, log)
			if err != nil {
				return err
			}
			scheduler.Start()
			shutdowns = append(shutdowns, scheduler.Stop)
		}
	}

	log.Info("서버 실행 중...",
		zap.String("http_port", cfg.Server.HTTP.Port),
		zap.String("grpc_port", cfg.Server.GRPC.Port))

	// 9. 종료 시그널 또는 서버 오류 대기
	<-ctx.Done()
	log.Info("서버 종료 중...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer cancel()
	for _, shutdown := range shutdowns {
		if err := shutdown(shutdownCtx); err != nil {
			log.Error("종료 처리 실패", zap.Error(err))
		}
	}

	return g.Wait()
}

func newJobQueue(cfg *config.Config, log *zap.Logger) (domainRepo.JobQueue, func(), error) {
	switch cfg.Queue.Backend {
	case "memory":
		if cfg.Service.Role != config.RoleAll {
			log.Warn("메모리 큐는 단일 프로세스에서만 동작합니다", zap.String("role", cfg.Service.Role))
		}
		return jobqueue.NewMemoryQueue(1024, cfg.Queue.StatusTTL), func() {}, nil
	case "redis", "":
		client, err := messaging.NewRedisClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		q := jobqueue.NewRedisQueue(client, cfg.Queue.Key, cfg.Queue.StatusTTL, cfg.Queue.PollTimeout, log)
		return q, func() {
			if err := client.Close(); err != nil {
				log.Error("Redis 연결 종료 실패", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue.backend %q", cfg.Queue.Backend)
	}
}

func newGeoLocator(cfg *config.Config, log *zap.Logger) (domainRepo.GeoLocator, func()) {
	if cfg.GeoIP.DatabasePath == "" {
		return geoip.Disabled{}, func() {}
	}
	reader, err := geoip.Open(cfg.GeoIP.DatabasePath, log)
	if err != nil {
		log.Warn("GeoIP 데이터베이스를 열지 못했습니다", zap.String("path", cfg.GeoIP.DatabasePath), zap.Error(err))
		return geoip.Disabled{}, func() {}
	}
	return reader, func() { _ = reader.Close() }
}

func newArchive(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) (domainRepo.TelemetryArchive, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Archive.Enabled {
		return nil, noop, nil
	}

	client, err := archive.NewS3Client(ctx, cfg.Archive)
	if err != nil {
		return nil, noop, err
	}
	var rec archive.Recorder
	if m != nil {
		rec = m
	}
	uploader := archive.NewUploader(client, cfg.Archive, rec, log)
	return uploader, uploader.Close, nil
}

// watchModel 모델 로드 상태를 주기적으로 헬스 체크에 반영합니다.
func watchModel(ctx context.Context, models behavior.NetworkSource, report func(bool)) {
	check := func() {
		_, err := models.Network()
		report(err == nil)
	}
	check()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// parseInt는 문자열을 정수로 변환하고, 변환 실패 시 기본값을 반환합니다.
func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
