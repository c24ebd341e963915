package errors

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Body는 클라이언트에 내려가는 에러 응답 본문입니다
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToHTTPError는 에러를 Echo HTTP 에러로 변환합니다
func ToHTTPError(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}

	// Echo 에러인 경우 그대로 반환
	var echoErr *echo.HTTPError
	if As(err, &echoErr) {
		return echoErr
	}

	var appErr *AppError
	if As(err, &appErr) {
		return echo.NewHTTPError(ToHTTPStatus(appErr.Code()), Body{
			Code:    appErr.Code(),
			Message: appErr.Message(),
		})
	}

	// 내부 에러 메시지는 노출하지 않습니다
	return echo.NewHTTPError(http.StatusInternalServerError, Body{
		Code:    ErrInternal,
		Message: http.StatusText(http.StatusInternalServerError),
	})
}
