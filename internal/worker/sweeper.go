package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper is implemented by *usecase.SweeperService
type Sweeper interface {
	SweepOnce(ctx context.Context) (int, error)
}

// SweeperScheduler runs the sweeper on a cron schedule. A run that is still
// going when the next tick fires causes that tick to be skipped.
type SweeperScheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
	logger  *zap.Logger
}

// NewSweeperScheduler parses spec ("@every 60s", "*/1 * * * *", ...)
func NewSweeperScheduler(spec string, sweeper Sweeper, timeout time.Duration, logger *zap.Logger) (*SweeperScheduler, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	cl := cronLogger{logger.Sugar()}
	s := &SweeperScheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sweeper: sweeper,
		timeout: timeout,
		logger:  logger,
	}
	if _, err := s.cron.AddJob(spec, s.build("captcha-expiry-sweep")); err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *SweeperScheduler) build(name string) cron.Job {
	return cronJobAdapterFunc(func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		n, err := s.sweeper.SweepOnce(ctx)
		if err != nil {
			s.logger.Error("Sweep failed", zap.String("job-name", name), zap.Int("resolved", n), zap.Error(err))
			return
		}
		s.logger.Debug("Sweep finished",
			zap.String("job-name", name),
			zap.Int("resolved", n),
			zap.Duration("cost", time.Since(start)))
	})
}

// Start begins scheduling in the background
func (s *SweeperScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Expiry sweeper scheduled")
}

// Stop stops scheduling and waits for a running sweep or ctx, whichever ends first
func (s *SweeperScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronJobAdapterFunc func()

func (c cronJobAdapterFunc) Run() {
	c()
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
