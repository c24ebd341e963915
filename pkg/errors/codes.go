package errors

import "net/http"

// 공통 에러 코드 정의
const (
	ErrInternal        = "INTERNAL"
	ErrNotFound        = "NOT_FOUND"
	ErrInvalidArgument = "INVALID_ARGUMENT"
	ErrUnauthenticated = "UNAUTHENTICATED"
	ErrUnauthorized    = "UNAUTHORIZED"
	ErrConflict        = "CONFLICT"
	ErrTimeout         = "TIMEOUT"

	// 캡챠 도메인 에러 코드
	ErrQuotaExhausted  = "QUOTA_EXHAUSTED"
	ErrUnavailable     = "UNAVAILABLE"
	ErrAlreadyResolved = "ALREADY_RESOLVED"
)

// 코드별 HTTP 상태 매핑
var httpStatusByCode = map[string]int{
	ErrInternal:        http.StatusInternalServerError,
	ErrNotFound:        http.StatusNotFound,
	ErrInvalidArgument: http.StatusBadRequest,
	ErrUnauthenticated: http.StatusUnauthorized,
	ErrUnauthorized:    http.StatusForbidden,
	ErrConflict:        http.StatusConflict,
	ErrTimeout:         http.StatusGatewayTimeout,
	ErrQuotaExhausted:  http.StatusPaymentRequired,
	ErrUnavailable:     http.StatusServiceUnavailable,
	ErrAlreadyResolved: http.StatusConflict,
}

// ToHTTPStatus는 에러 코드를 HTTP 상태 코드로 변환합니다
func ToHTTPStatus(code string) int {
	if status, ok := httpStatusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeOf는 에러 체인에서 AppError 코드를 찾아 반환합니다. 없으면 INTERNAL.
func CodeOf(err error) string {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr.Code()
	}
	return ErrInternal
}
