package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	infrahttp "github.com/jihun-01/scratcha-backend/internal/infrastructure/http"
	"github.com/jihun-01/scratcha-backend/internal/usecase"
	apperrors "github.com/jihun-01/scratcha-backend/pkg/errors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockChallengeIssuer struct {
	mock.Mock
}

func (m *MockChallengeIssuer) Authenticate(ctx context.Context, apiKey string) (*model.Credential, error) {
	args := m.Called(ctx, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

func (m *MockChallengeIssuer) Issue(ctx context.Context, cmd usecase.IssueCommand) (*usecase.IssuedChallenge, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.IssuedChallenge), args.Error(1)
}

type MockVerificationSubmitter struct {
	mock.Mock
}

func (m *MockVerificationSubmitter) Submit(ctx context.Context, cmd usecase.VerifyCommand) (string, error) {
	args := m.Called(ctx, cmd)
	return args.String(0), args.Error(1)
}

func (m *MockVerificationSubmitter) Status(ctx context.Context, handle string) (*model.JobStatus, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobStatus), args.Error(1)
}

var unauthenticated = apperrors.NewAppError(apperrors.ErrUnauthenticated, "유효하지 않거나 비활성화된 API 키입니다.", nil)

func setup(t *testing.T) (*echo.Echo, *MockChallengeIssuer, *MockVerificationSubmitter) {
	t.Helper()
	issuer := &MockChallengeIssuer{}
	submitter := &MockVerificationSubmitter{}

	server := infrahttp.NewServer(infrahttp.WithLogger(zap.NewNop()))
	server.RegisterRoutes(NewCaptchaHandler(issuer, submitter, zap.NewNop()).RegisterRoutes)

	t.Cleanup(func() {
		issuer.AssertExpectations(t)
		submitter.AssertExpectations(t)
	})
	return server.Echo(), issuer, submitter
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIssueProblem(t *testing.T) {
	e, issuer, _ := setup(t)
	cred := &model.Credential{ID: 7}

	issuer.On("Authenticate", mock.Anything, "key-1").Return(cred, nil)
	issuer.On("Issue", mock.Anything, mock.MatchedBy(func(cmd usecase.IssueCommand) bool {
		return cmd.Credential == cred && cmd.IPAddress == "203.0.113.9" && cmd.UserAgent == "widget/1.0"
	})).Return(&usecase.IssuedChallenge{
		ClientToken: "tok",
		ImageURL:    "https://img.example.com/p/1.png",
		Prompt:      "스크래치 후 정답을 선택하세요.",
		Options:     []string{"고양이", "강아지", "토끼", "여우"},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/captcha/problem", nil)
	req.Header.Set(headerAPIKey, "key-1")
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.9")
	req.Header.Set("User-Agent", "widget/1.0")
	rec := serve(e, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"clientToken": "tok",
		"imageUrl": "https://img.example.com/p/1.png",
		"prompt": "스크래치 후 정답을 선택하세요.",
		"options": ["고양이", "강아지", "토끼", "여우"]
	}`, rec.Body.String())
}

func TestIssueProblem_Errors(t *testing.T) {
	tests := []struct {
		name     string
		authErr  error
		issueErr error
		status   int
		code     string
	}{
		{"bad key", unauthenticated, nil, http.StatusUnauthorized, apperrors.ErrUnauthenticated},
		{"quota", nil, apperrors.NewAppError(apperrors.ErrQuotaExhausted, "API 토큰이 부족합니다.", nil), http.StatusPaymentRequired, apperrors.ErrQuotaExhausted},
		{"no problem", nil, apperrors.NewAppError(apperrors.ErrUnavailable, "활성화된 캡차 문제가 없습니다.", nil), http.StatusServiceUnavailable, apperrors.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, issuer, _ := setup(t)
			if tt.authErr != nil {
				issuer.On("Authenticate", mock.Anything, "k").Return(nil, tt.authErr)
			} else {
				issuer.On("Authenticate", mock.Anything, "k").Return(&model.Credential{ID: 1}, nil)
				issuer.On("Issue", mock.Anything, mock.Anything).Return(nil, tt.issueErr)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/captcha/problem", nil)
			req.Header.Set(headerAPIKey, "k")
			rec := serve(e, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

func TestSubmitVerification(t *testing.T) {
	e, issuer, submitter := setup(t)
	issuer.On("Authenticate", mock.Anything, "k").Return(&model.Credential{ID: 1}, nil)
	submitter.On("Submit", mock.Anything, mock.MatchedBy(func(cmd usecase.VerifyCommand) bool {
		return cmd.ClientToken == "tok" &&
			cmd.Answer == "고양이" &&
			cmd.Telemetry.Present() &&
			len(cmd.Telemetry.Events) == 2
	})).Return("handle-1", nil)

	body := `{"answer":"고양이","meta":{"device":"mouse"},"events":[{"type":"pointerdown","t":1},{"type":"pointerup","t":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/captcha/verify", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(headerAPIKey, "k")
	req.Header.Set(headerClientToken, "tok")
	rec := serve(e, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"taskId":"handle-1"}`, rec.Body.String())
}

func TestSubmitVerification_Invalid(t *testing.T) {
	t.Run("missing answer", func(t *testing.T) {
		e, issuer, _ := setup(t)
		issuer.On("Authenticate", mock.Anything, "k").Return(&model.Credential{ID: 1}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/captcha/verify", strings.NewReader(`{"meta":{}}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(headerAPIKey, "k")
		rec := serve(e, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), apperrors.ErrInvalidArgument)
	})

	t.Run("malformed json", func(t *testing.T) {
		e, issuer, _ := setup(t)
		issuer.On("Authenticate", mock.Anything, "k").Return(&model.Credential{ID: 1}, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/captcha/verify", strings.NewReader(`{"answer":`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(headerAPIKey, "k")
		rec := serve(e, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad key", func(t *testing.T) {
		e, issuer, _ := setup(t)
		issuer.On("Authenticate", mock.Anything, "").Return(nil, unauthenticated)

		req := httptest.NewRequest(http.MethodPost, "/api/captcha/verify", strings.NewReader(`{"answer":"a"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := serve(e, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetVerificationResult(t *testing.T) {
	confidence := 0.12
	verdict := model.VerdictHuman

	tests := []struct {
		name   string
		status *model.JobStatus
		err    error
		code   int
		body   string
	}{
		{
			name:   "pending",
			status: &model.JobStatus{Handle: "h", State: model.JobPending},
			code:   http.StatusAccepted,
			body:   `{"taskId":"h","status":"pending"}`,
		},
		{
			name: "done",
			status: &model.JobStatus{Handle: "h", State: model.JobDone, Result: &model.VerificationResult{
				Result:     "success",
				Message:    "캡챠 검증에 성공했습니다.",
				Confidence: &confidence,
				Verdict:    &verdict,
			}},
			code: http.StatusOK,
			body: `{"result":"success","message":"캡챠 검증에 성공했습니다.","confidence":0.12,"verdict":"human"}`,
		},
		{
			name: "failed",
			status: &model.JobStatus{Handle: "h", State: model.JobFailed, Error: &model.JobError{
				Code:    apperrors.ErrAlreadyResolved,
				Type:    "AlreadyResolved",
				Message: "이미 검증된 토큰입니다.",
			}},
			code: http.StatusConflict,
			body: `{"code":"ALREADY_RESOLVED","type":"AlreadyResolved","message":"이미 검증된 토큰입니다."}`,
		},
		{
			name: "unknown handle",
			err:  apperrors.NewAppError(apperrors.ErrNotFound, "검증 작업을 찾을 수 없습니다.", nil),
			code: http.StatusNotFound,
			body: `{"code":"NOT_FOUND","message":"검증 작업을 찾을 수 없습니다."}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, submitter := setup(t)
			if tt.err != nil {
				submitter.On("Status", mock.Anything, "h").Return(nil, tt.err)
			} else {
				submitter.On("Status", mock.Anything, "h").Return(tt.status, nil)
			}

			rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/captcha/verify/result/h", nil))

			require.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}
