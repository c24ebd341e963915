package usecase

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/jihun-01/scratcha-backend/internal/domain/errors"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"github.com/jihun-01/scratcha-backend/internal/usecase/behavior"
	"github.com/stretchr/testify/mock"
)

// passthroughTx runs fn directly
type passthroughTx struct{}

func (passthroughTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Issue(ctx context.Context, session *model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByToken(ctx context.Context, clientToken string, exclusive bool) (*model.Session, error) {
	args := m.Called(ctx, clientToken, exclusive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockSessionRepository) HasTerminalLog(ctx context.Context, sessionID int64) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) AttachTerminalLog(ctx context.Context, session *model.Session, resolution model.Resolution) (*model.TerminalLog, error) {
	args := m.Called(ctx, session, resolution)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TerminalLog), args.Error(1)
}

func (m *MockSessionRepository) LockExpired(ctx context.Context, cutoff time.Time, limit int) ([]*model.Session, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Session), args.Error(1)
}

// MockUsageRepository is a mock implementation of UsageRepository
type MockUsageRepository struct {
	mock.Mock
}

func (m *MockUsageRepository) IncrementIssued(ctx context.Context, credentialID int64) error {
	return m.Called(ctx, credentialID).Error(0)
}

func (m *MockUsageRepository) IncrementResolved(ctx context.Context, credentialID int64, outcome model.Outcome, latencyMs int64) error {
	return m.Called(ctx, credentialID, outcome, latencyMs).Error(0)
}

// MockQuotaRepository is a mock implementation of QuotaRepository
type MockQuotaRepository struct {
	mock.Mock
}

func (m *MockQuotaRepository) TryDebit(ctx context.Context, credential *model.Credential) (bool, error) {
	args := m.Called(ctx, credential)
	return args.Bool(0), args.Error(1)
}

// MockProblemRepository is a mock implementation of ProblemRepository
type MockProblemRepository struct {
	mock.Mock
}

func (m *MockProblemRepository) PickRandom(ctx context.Context, difficulty int) (*model.Problem, error) {
	args := m.Called(ctx, difficulty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Problem), args.Error(1)
}

// MockCredentialRepository is a mock implementation of CredentialRepository
type MockCredentialRepository struct {
	mock.Mock
}

func (m *MockCredentialRepository) GetActiveByKey(ctx context.Context, key string) (*model.Credential, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

// MockJobQueue is a mock implementation of JobQueue
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Submit(ctx context.Context, job *model.VerifyJob) (string, error) {
	args := m.Called(ctx, job)
	return args.String(0), args.Error(1)
}

func (m *MockJobQueue) Status(ctx context.Context, handle string) (*model.JobStatus, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobStatus), args.Error(1)
}

func (m *MockJobQueue) Next(ctx context.Context) (*model.VerifyJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.VerifyJob), args.Error(1)
}

func (m *MockJobQueue) Complete(ctx context.Context, handle string, result *model.VerificationResult) error {
	return m.Called(ctx, handle, result).Error(0)
}

func (m *MockJobQueue) Fail(ctx context.Context, handle string, jobErr *model.JobError) error {
	return m.Called(ctx, handle, jobErr).Error(0)
}

// recordingArchive remembers archived tokens
type recordingArchive struct {
	mu     sync.Mutex
	tokens []string
}

func (a *recordingArchive) Archive(clientToken string, _ *model.TelemetryInput) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens = append(a.tokens, clientToken)
}

// stubAnalyzer returns a fixed verdict or error
type stubAnalyzer struct {
	verdict     model.Verdict
	probability float64
	err         error
	calls       int
}

func (a *stubAnalyzer) Assess(*model.TelemetryInput) (*behavior.Assessment, behavior.Stats, error) {
	a.calls++
	if a.err != nil {
		return nil, behavior.Stats{}, a.err
	}
	return &behavior.Assessment{
		Score: behavior.Score{Probability: a.probability, Verdict: a.verdict, Threshold: 0.5},
	}, behavior.Stats{NEvents: 10}, nil
}

// memoryStore is a session store whose transactions are fully serialised,
// standing in for row locks in race tests.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	logs     map[int64][]model.Resolution
	resolved map[int64]int
}

func newMemoryStore(sessions ...*model.Session) *memoryStore {
	s := &memoryStore{
		sessions: map[string]*model.Session{},
		logs:     map[int64][]model.Resolution{},
		resolved: map[int64]int{},
	}
	for _, session := range sessions {
		s.sessions[session.ClientToken] = session
	}
	return s
}

func (s *memoryStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

func (s *memoryStore) Issue(_ context.Context, session *model.Session) error {
	s.sessions[session.ClientToken] = session
	return nil
}

func (s *memoryStore) GetByToken(_ context.Context, clientToken string, _ bool) (*model.Session, error) {
	session, ok := s.sessions[clientToken]
	if !ok {
		return nil, domainErrors.ErrSessionNotFound
	}
	return session, nil
}

func (s *memoryStore) HasTerminalLog(_ context.Context, sessionID int64) (bool, error) {
	return len(s.logs[sessionID]) > 0, nil
}

func (s *memoryStore) AttachTerminalLog(_ context.Context, session *model.Session, resolution model.Resolution) (*model.TerminalLog, error) {
	s.logs[session.ID] = append(s.logs[session.ID], resolution)
	return &model.TerminalLog{SessionID: session.ID, Result: resolution.Outcome}, nil
}

func (s *memoryStore) LockExpired(_ context.Context, cutoff time.Time, limit int) ([]*model.Session, error) {
	var out []*model.Session
	for _, session := range s.sessions {
		if len(out) == limit {
			break
		}
		if session.CreatedAt.Before(cutoff) && len(s.logs[session.ID]) == 0 {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *memoryStore) IncrementIssued(context.Context, int64) error { return nil }

func (s *memoryStore) IncrementResolved(_ context.Context, credentialID int64, _ model.Outcome, _ int64) error {
	s.resolved[credentialID]++
	return nil
}

func (s *memoryStore) logCount(sessionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs[sessionID])
}
