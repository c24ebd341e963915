package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	domainErrors "github.com/jihun-01/scratcha-backend/internal/domain/errors"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"github.com/jihun-01/scratcha-backend/internal/domain/repository"
	"github.com/jihun-01/scratcha-backend/internal/usecase/behavior"
	apperrors "github.com/jihun-01/scratcha-backend/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Result messages returned to the widget
const (
	MessageSuccess = "캡챠 검증에 성공했습니다."
	MessageFail    = "캡챠 검증에 실패했습니다."
	MessageTimeout = "캡챠 세션이 만료되었습니다."
)

// BehaviorAnalyzer scores raw telemetry. *behavior.Analyzer satisfies it.
type BehaviorAnalyzer interface {
	Assess(telemetry *model.TelemetryInput) (*behavior.Assessment, behavior.Stats, error)
}

// VerifyCommand is one verification attempt.
type VerifyCommand struct {
	ClientToken string
	Answer      string
	IPAddress   string
	UserAgent   string
	Telemetry   *model.TelemetryInput
}

// VerificationOptions tunes the decision engine.
type VerificationOptions struct {
	ResponseDeadline time.Duration

	// AllowAbsentSignal lets a correct answer succeed when no behavioral
	// verdict could be produced.
	AllowAbsentSignal bool
}

// VerificationService is the decision engine. Resolve is the body of an
// asynchronous verification job.
type VerificationService struct {
	tx       repository.Transactor
	sessions repository.SessionRepository
	usage    repository.UsageRepository
	analyzer BehaviorAnalyzer
	opts     VerificationOptions
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewVerificationService(
	tx repository.Transactor,
	sessions repository.SessionRepository,
	usage repository.UsageRepository,
	analyzer BehaviorAnalyzer,
	opts VerificationOptions,
	recorder Recorder,
	logger *zap.Logger,
) *VerificationService {
	return &VerificationService{
		tx:       tx,
		sessions: sessions,
		usage:    usage,
		analyzer: analyzer,
		opts:     opts,
		recorder: recorderOrNop(recorder),
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve locks the session, writes its terminal log and updates the usage
// counters in one transaction.
func (s *VerificationService) Resolve(ctx context.Context, cmd VerifyCommand) (*model.VerificationResult, error) {
	var (
		result  *model.VerificationResult
		outcome model.Outcome
	)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		session, err := s.sessions.GetByToken(ctx, cmd.ClientToken, true)
		if err != nil {
			return err
		}

		// Checked only once the row lock is held
		resolved, err := s.sessions.HasTerminalLog(ctx, session.ID)
		if err != nil {
			return err
		}
		if resolved {
			return domainErrors.ErrAlreadyResolved
		}

		elapsed := session.Elapsed(s.now())
		resolution := model.Resolution{
			LatencyMs: elapsed.Milliseconds(),
			IPAddress: optional(cmd.IPAddress),
			UserAgent: optional(cmd.UserAgent),
		}

		if elapsed > s.opts.ResponseDeadline {
			resolution.Outcome = model.OutcomeTimeout
			resolution.IsCorrect = boolPtr(false)
			result = &model.VerificationResult{Result: model.OutcomeTimeout.Lower(), Message: MessageTimeout}
		} else {
			probability, verdict := s.assess(session, cmd.Telemetry)
			correct := answersMatch(cmd.Answer, session)

			resolution.Outcome = s.decide(correct, verdict)
			resolution.IsCorrect = &correct
			resolution.Probability = probability
			resolution.Verdict = verdict

			message := MessageFail
			if resolution.Outcome == model.OutcomeSuccess {
				message = MessageSuccess
			}
			result = &model.VerificationResult{
				Result:     resolution.Outcome.Lower(),
				Message:    message,
				Confidence: probability,
				Verdict:    verdict,
			}
		}

		if _, err := s.sessions.AttachTerminalLog(ctx, session, resolution); err != nil {
			return err
		}
		if session.CredentialID != nil {
			if err := s.usage.IncrementResolved(ctx, *session.CredentialID, resolution.Outcome, resolution.LatencyMs); err != nil {
				return err
			}
		}
		outcome = resolution.Outcome
		return nil
	})
	if err != nil {
		return nil, s.resolveError(err)
	}

	s.recorder.ObserveOutcome(SourceResolver, outcome.Lower())
	return result, nil
}

// decide merges answer correctness with the behavioral verdict
func (s *VerificationService) decide(correct bool, verdict *model.Verdict) model.Outcome {
	if !correct {
		return model.OutcomeFail
	}
	if verdict == nil {
		if s.opts.AllowAbsentSignal {
			return model.OutcomeSuccess
		}
		return model.OutcomeFail
	}
	if *verdict == model.VerdictHuman {
		return model.OutcomeSuccess
	}
	return model.OutcomeFail
}

// assess runs the behavioral pipeline. Every failure degrades to an absent
// signal.
func (s *VerificationService) assess(session *model.Session, telemetry *model.TelemetryInput) (*float64, *model.Verdict) {
	if s.analyzer == nil || !telemetry.Present() {
		s.recorder.ObserveScore("absent", 0)
		return nil, nil
	}

	assessment, stats, err := s.analyzer.Assess(telemetry)
	if err != nil {
		s.recorder.ObserveScore("absent", 0)
		s.logger.Info("Behavioral signal unavailable",
			zap.Int64("session_id", session.ID),
			zap.Int("n_events", stats.NEvents),
			zap.Error(err))
		return nil, nil
	}

	score := assessment.Score
	s.recorder.ObserveScore(string(score.Verdict), assessment.Duration)
	s.logger.Debug("Behavioral score",
		zap.Int64("session_id", session.ID),
		zap.Float64("logit", score.Logit),
		zap.Float64("bot_prob", score.Probability),
		zap.Float64("threshold", score.Threshold),
		zap.String("calibration", score.Calibration),
		zap.String("verdict", string(score.Verdict)),
		zap.String("time_rule", stats.TimeRule),
		zap.Float64("oob_rate_canvas", stats.OOBRateCanvas),
		zap.Float64("oob_rate_wrapper", stats.OOBRateWrapper),
		zap.Float64("speed_mean", stats.SpeedMean),
		zap.Int("n_events", stats.NEvents))

	probability := score.Probability
	verdict := score.Verdict
	return &probability, &verdict
}

func (s *VerificationService) resolveError(err error) error {
	switch {
	case errors.Is(err, domainErrors.ErrSessionNotFound):
		return apperrors.NewAppError(apperrors.ErrNotFound, "유효하지 않은 클라이언트 토큰입니다.", err)
	case errors.Is(err, domainErrors.ErrAlreadyResolved):
		return apperrors.NewAppError(apperrors.ErrAlreadyResolved, "이미 검증된 토큰입니다.", err)
	}
	s.logger.Error("Failed to resolve captcha session", zap.Error(err))
	return apperrors.NewAppError(apperrors.ErrInternal, "캡챠 검증에 실패했습니다.", err)
}

// answersMatch compares after trimming and NFC normalisation so that
// decomposed Hangul from some input methods still matches.
func answersMatch(submitted string, session *model.Session) bool {
	if session.Problem == nil {
		return false
	}
	return normalizeAnswer(submitted) == normalizeAnswer(session.Problem.Answer)
}

func normalizeAnswer(v string) string {
	return norm.NFC.String(strings.TrimSpace(v))
}

func boolPtr(v bool) *bool { return &v }
