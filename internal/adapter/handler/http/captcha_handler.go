package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"github.com/jihun-01/scratcha-backend/internal/usecase"
	apperrors "github.com/jihun-01/scratcha-backend/pkg/errors"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	headerAPIKey      = "X-Api-Key"
	headerClientToken = "X-Client-Token"
)

// ChallengeIssuer authenticates API keys and issues challenges
type ChallengeIssuer interface {
	Authenticate(ctx context.Context, apiKey string) (*model.Credential, error)
	Issue(ctx context.Context, cmd usecase.IssueCommand) (*usecase.IssuedChallenge, error)
}

// VerificationSubmitter accepts verification attempts and reports their state
type VerificationSubmitter interface {
	Submit(ctx context.Context, cmd usecase.VerifyCommand) (string, error)
	Status(ctx context.Context, handle string) (*model.JobStatus, error)
}

// CaptchaHandler는 캡챠 발급/검증 HTTP 핸들러입니다
type CaptchaHandler struct {
	challenges    ChallengeIssuer
	verifications VerificationSubmitter
	logger        *zap.Logger
}

func NewCaptchaHandler(challenges ChallengeIssuer, verifications VerificationSubmitter, logger *zap.Logger) *CaptchaHandler {
	return &CaptchaHandler{
		challenges:    challenges,
		verifications: verifications,
		logger:        logger,
	}
}

// RegisterRoutes는 Echo 라우터에 핸들러 경로를 등록합니다
func (h *CaptchaHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/captcha")
	g.POST("/problem", h.IssueProblem)
	g.POST("/verify", h.SubmitVerification)
	g.GET("/verify/result/:taskId", h.GetVerificationResult)
}

// VerifyRequest is the widget's verification body
type VerifyRequest struct {
	Answer string            `json:"answer" validate:"required"`
	Meta   json.RawMessage   `json:"meta,omitempty"`
	Events []json.RawMessage `json:"events,omitempty"`
}

// SubmitResponse carries the handle to poll
type SubmitResponse struct {
	TaskID string `json:"taskId"`
}

// PendingResponse is returned while a job has not finished
type PendingResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// JobErrorResponse is returned for a failed job
type JobErrorResponse struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// IssueProblem godoc
// @Summary 캡챠 문제 발급
// @Tags captcha
// @Produce json
// @Param X-Api-Key header string true "API 키"
// @Success 200 {object} usecase.IssuedChallenge
// @Failure 401 {object} apperrors.Body
// @Failure 402 {object} apperrors.Body
// @Failure 503 {object} apperrors.Body
// @Router /api/captcha/problem [post]
func (h *CaptchaHandler) IssueProblem(c echo.Context) error {
	ctx := c.Request().Context()

	cred, err := h.challenges.Authenticate(ctx, c.Request().Header.Get(headerAPIKey))
	if err != nil {
		return err
	}

	challenge, err := h.challenges.Issue(ctx, usecase.IssueCommand{
		Credential: cred,
		IPAddress:  c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, challenge)
}

// SubmitVerification godoc
// @Summary 캡챠 검증 요청
// @Tags captcha
// @Accept json
// @Produce json
// @Param X-Api-Key header string true "API 키"
// @Param X-Client-Token header string true "발급된 클라이언트 토큰"
// @Success 202 {object} SubmitResponse
// @Router /api/captcha/verify [post]
func (h *CaptchaHandler) SubmitVerification(c echo.Context) error {
	ctx := c.Request().Context()

	if _, err := h.challenges.Authenticate(ctx, c.Request().Header.Get(headerAPIKey)); err != nil {
		return err
	}

	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.NewAppError(apperrors.ErrInvalidArgument, "요청 본문을 해석할 수 없습니다.", err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	handle, err := h.verifications.Submit(ctx, usecase.VerifyCommand{
		ClientToken: c.Request().Header.Get(headerClientToken),
		Answer:      req.Answer,
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
		Telemetry: &model.TelemetryInput{
			Meta:   req.Meta,
			Events: req.Events,
		},
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, SubmitResponse{TaskID: handle})
}

// GetVerificationResult godoc
// @Summary 캡챠 검증 결과 조회
// @Tags captcha
// @Produce json
// @Param taskId path string true "검증 작업 ID"
// @Success 200 {object} model.VerificationResult
// @Success 202 {object} PendingResponse
// @Failure 404 {object} apperrors.Body
// @Router /api/captcha/verify/result/{taskId} [get]
func (h *CaptchaHandler) GetVerificationResult(c echo.Context) error {
	taskID := c.Param("taskId")

	status, err := h.verifications.Status(c.Request().Context(), taskID)
	if err != nil {
		return err
	}

	switch status.State {
	case model.JobDone:
		return c.JSON(http.StatusOK, status.Result)
	case model.JobFailed:
		jobErr := status.Error
		if jobErr == nil {
			jobErr = &model.JobError{Code: apperrors.ErrInternal, Type: "InternalError", Message: http.StatusText(http.StatusInternalServerError)}
		}
		return c.JSON(apperrors.ToHTTPStatus(jobErr.Code), JobErrorResponse{
			Code:    jobErr.Code,
			Type:    jobErr.Type,
			Message: jobErr.Message,
		})
	default:
		return c.JSON(http.StatusAccepted, PendingResponse{TaskID: taskID, Status: string(model.JobPending)})
	}
}
