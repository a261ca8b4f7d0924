package xerr

import "fmt"

// CodeError 业务错误，Code 与 HTTP 语义对齐
type CodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	cause   error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("code=%d message=%s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("code=%d message=%s", e.Code, e.Message)
}

func (e *CodeError) Unwrap() error { return e.cause }

func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Message: msg}
}

// Wrap 保留底层错误，响应时只暴露 Message
func Wrap(code int, msg string, cause error) *CodeError {
	return &CodeError{Code: code, Message: msg, cause: cause}
}

const (
	OK                  = 200
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrServerError  = New(InternalServerError, "internal server error")
	ErrParam        = New(BadRequest, "invalid parameters")
	ErrUnauthorized = New(Unauthorized, "unauthorized")
	ErrNoTargets    = New(BadRequest, "no target users")
)
