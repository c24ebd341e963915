package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	domainErrors "github.com/jihun-01/scratcha-backend/internal/domain/errors"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"github.com/jihun-01/scratcha-backend/internal/domain/repository"
	apperrors "github.com/jihun-01/scratcha-backend/pkg/errors"
	"go.uber.org/zap"
)

// IssueCommand carries the caller context of a challenge request.
type IssueCommand struct {
	Credential *model.Credential
	IPAddress  string
	UserAgent  string
}

// IssuedChallenge is what the widget receives.
type IssuedChallenge struct {
	ClientToken string   `json:"clientToken"`
	ImageURL    string   `json:"imageUrl"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
}

// ChallengeService authenticates credentials and issues sessions.
type ChallengeService struct {
	tx           repository.Transactor
	credentials  repository.CredentialRepository
	quota        repository.QuotaRepository
	problems     repository.ProblemRepository
	sessions     repository.SessionRepository
	usage        repository.UsageRepository
	geo          repository.GeoLocator
	imageBaseURL string
	recorder     Recorder
	logger       *zap.Logger
	shuffle      func(n int, swap func(i, j int))
}

func NewChallengeService(
	tx repository.Transactor,
	credentials repository.CredentialRepository,
	quota repository.QuotaRepository,
	problems repository.ProblemRepository,
	sessions repository.SessionRepository,
	usage repository.UsageRepository,
	geo repository.GeoLocator,
	imageBaseURL string,
	recorder Recorder,
	logger *zap.Logger,
) *ChallengeService {
	return &ChallengeService{
		tx:           tx,
		credentials:  credentials,
		quota:        quota,
		problems:     problems,
		sessions:     sessions,
		usage:        usage,
		geo:          geo,
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
		recorder:     recorderOrNop(recorder),
		logger:       logger,
		shuffle:      rand.Shuffle,
	}
}

// Authenticate resolves an API key to an active credential.
func (s *ChallengeService) Authenticate(ctx context.Context, apiKey string) (*model.Credential, error) {
	if apiKey == "" {
		return nil, apperrors.NewAppError(apperrors.ErrUnauthenticated, "API 키가 필요합니다.", nil)
	}
	credential, err := s.credentials.GetActiveByKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, domainErrors.ErrCredentialNotFound) {
			return nil, apperrors.NewAppError(apperrors.ErrUnauthenticated, "유효하지 않거나 비활성화된 API 키입니다.", err)
		}
		return nil, apperrors.NewAppError(apperrors.ErrInternal, "API 키 조회에 실패했습니다.", err)
	}
	return credential, nil
}

// Issue debits one token, binds a random problem to a fresh session and
// counts the request. Every write happens in one transaction, so a failure
// leaves neither a debit nor a session behind.
func (s *ChallengeService) Issue(ctx context.Context, cmd IssueCommand) (*IssuedChallenge, error) {
	cred := cmd.Credential
	var (
		session *model.Session
		problem *model.Problem
	)

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.quota.TryDebit(ctx, cred)
		if err != nil {
			return err
		}
		if !ok {
			return domainErrors.ErrQuotaExhausted
		}

		problem, err = s.problems.PickRandom(ctx, cred.Difficulty)
		if err != nil {
			return err
		}
		if problem == nil {
			return domainErrors.ErrNoProblemAvailable
		}

		session = &model.Session{
			CredentialID: &cred.ID,
			ProblemID:    problem.ID,
			ClientToken:  uuid.NewString(),
			IPAddress:    optional(cmd.IPAddress),
			UserAgent:    optional(cmd.UserAgent),
			Country:      s.country(cmd.IPAddress),
		}
		if err := s.sessions.Issue(ctx, session); err != nil {
			return err
		}
		return s.usage.IncrementIssued(ctx, cred.ID)
	})
	if err != nil {
		return nil, s.issueError(cred, err)
	}

	s.recorder.ObserveIssued("issued")
	s.logger.Debug("Captcha session issued",
		zap.Int64("key_id", cred.ID),
		zap.Int64("session_id", session.ID),
		zap.Int64("problem_id", problem.ID))

	options := problem.Options()
	s.shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

	return &IssuedChallenge{
		ClientToken: session.ClientToken,
		ImageURL:    s.imageBaseURL + "/" + problem.ImageURL,
		Prompt:      problem.Prompt,
		Options:     options,
	}, nil
}

func (s *ChallengeService) issueError(cred *model.Credential, err error) error {
	switch {
	case errors.Is(err, domainErrors.ErrQuotaExhausted):
		s.recorder.ObserveIssued("quota_exhausted")
		return apperrors.NewAppError(apperrors.ErrQuotaExhausted, "API 토큰이 부족합니다.", err)
	case errors.Is(err, domainErrors.ErrNoProblemAvailable):
		s.recorder.ObserveIssued("no_problem")
		s.logger.Warn("No captcha problem available", zap.Int("difficulty", cred.Difficulty))
		return apperrors.NewAppError(apperrors.ErrUnavailable, "활성화된 캡차 문제가 없습니다.", err)
	}
	s.recorder.ObserveIssued("error")
	s.logger.Error("Failed to issue captcha session", zap.Int64("key_id", cred.ID), zap.Error(err))
	return apperrors.NewAppError(apperrors.ErrInternal, "캡챠 문제 생성에 실패했습니다.", err)
}

func (s *ChallengeService) country(ip string) *string {
	if s.geo == nil || ip == "" {
		return nil
	}
	if code, ok := s.geo.Country(ip); ok {
		return &code
	}
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
