package apperrors

import "fmt"

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error codes
const (
	ErrCodeConfigFetch    = "CONFIG_FETCH_FAILED"
	ErrCodeConfigPush     = "CONFIG_PUSH_FAILED"
	ErrCodeSessionCreate  = "SESSION_CREATE_FAILED"
	ErrCodeSessionGet     = "SESSION_GET_FAILED"
	ErrCodeSessionDelete  = "SESSION_DELETE_FAILED"
	ErrCodeMessagePush    = "MESSAGE_PUSH_FAILED"
	ErrCodeKnowledgeFetch = "KNOWLEDGE_FETCH_FAILED"
	ErrCodeAgentFetch     = "AGENT_FETCH_FAILED"
	ErrCodeToolServer     = "TOOL_SERVER_FAILED"
	ErrCodeFeedbackPush   = "FEEDBACK_PUSH_FAILED"
	ErrCodeStreamOpen     = "STREAM_OPEN_FAILED"
	ErrCodeStreamDecode   = "STREAM_DECODE_FAILED"
	ErrCodeExtraction     = "EXTRACTION_FAILED"
	ErrCodeCacheIO        = "CACHE_IO_FAILED"
	ErrCodeInvalidInput   = "INVALID_INPUT"
)
