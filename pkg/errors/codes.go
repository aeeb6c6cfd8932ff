package errors

import (
	"net/http"
)

// ErrorCode is a string representation of a specific error condition.
// The prefix before the underscore names the owning module.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
)

// Sentinel codes used by GetCode.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Prior-art pipeline error codes. Each maps onto one outcome kind of the
// pipeline (see internal/domain/priorart.KindOf).
const (
	ErrCodeInput             ErrorCode = "PRIORART_001"
	ErrCodeToolProtocol      ErrorCode = "PRIORART_002"
	ErrCodeRetrieval         ErrorCode = "PRIORART_003"
	ErrCodeJudgeProtocol     ErrorCode = "PRIORART_004"
	ErrCodeAllJudgesFailed   ErrorCode = "PRIORART_005"
	ErrCodeSynthesis         ErrorCode = "PRIORART_006"
	ErrCodeServiceTimeout    ErrorCode = "PRIORART_007"
	ErrCodeCompletionService ErrorCode = "PRIORART_008"
	ErrCodeCancelled         ErrorCode = "PRIORART_009"
)

// Completion (LLM) adapter error codes
const (
	ErrCodeCompletionRateLimited ErrorCode = "LLM_001"
	ErrCodeCompletionRejected    ErrorCode = "LLM_002"
	ErrCodeUnknownTool           ErrorCode = "LLM_003"
	ErrCodeToolArguments         ErrorCode = "LLM_004"
)

// Embedding backend error codes
const (
	ErrCodeEmbeddingFailed      ErrorCode = "EMBED_001"
	ErrCodeEmbeddingEmpty       ErrorCode = "EMBED_002"
	ErrCodeEmbeddingUnsupported ErrorCode = "EMBED_003"
)

// Vector search error codes
const (
	ErrCodeVectorSearchFailed ErrorCode = "SEARCH_001"
	ErrCodeVectorConnection   ErrorCode = "SEARCH_002"
	ErrCodeVectorUnhealthy    ErrorCode = "SEARCH_003"
)

// ErrorCodeHTTPStatus maps codes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,

	ErrCodeInput:             http.StatusBadRequest,
	ErrCodeToolProtocol:      http.StatusBadGateway,
	ErrCodeRetrieval:         http.StatusBadGateway,
	ErrCodeJudgeProtocol:     http.StatusBadGateway,
	ErrCodeAllJudgesFailed:   http.StatusBadGateway,
	ErrCodeSynthesis:         http.StatusBadGateway,
	ErrCodeServiceTimeout:    http.StatusGatewayTimeout,
	ErrCodeCompletionService: http.StatusBadGateway,
	ErrCodeCancelled:         http.StatusServiceUnavailable,

	ErrCodeCompletionRateLimited: http.StatusServiceUnavailable,
	ErrCodeCompletionRejected:    http.StatusBadGateway,
	ErrCodeUnknownTool:           http.StatusBadGateway,
	ErrCodeToolArguments:         http.StatusBadGateway,

	ErrCodeEmbeddingFailed:      http.StatusBadGateway,
	ErrCodeEmbeddingEmpty:       http.StatusBadGateway,
	ErrCodeEmbeddingUnsupported: http.StatusInternalServerError,

	ErrCodeVectorSearchFailed: http.StatusBadGateway,
	ErrCodeVectorConnection:   http.StatusServiceUnavailable,
	ErrCodeVectorUnhealthy:    http.StatusServiceUnavailable,
}

// ErrorCodeMessage holds the default message per code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",

	ErrCodeInput:             "invalid idea input",
	ErrCodeToolProtocol:      "router tool protocol violation",
	ErrCodeRetrieval:         "patent retrieval failed",
	ErrCodeJudgeProtocol:     "similarity judge protocol violation",
	ErrCodeAllJudgesFailed:   "every similarity evaluation failed",
	ErrCodeSynthesis:         "report synthesis failed",
	ErrCodeServiceTimeout:    "collaborator call timed out",
	ErrCodeCompletionService: "completion service unavailable",
	ErrCodeCancelled:         "request cancelled",

	ErrCodeCompletionRateLimited: "completion service rate limited",
	ErrCodeCompletionRejected:    "completion request rejected",
	ErrCodeUnknownTool:           "unknown tool invocation",
	ErrCodeToolArguments:         "invalid tool arguments",

	ErrCodeEmbeddingFailed:      "embedding request failed",
	ErrCodeEmbeddingEmpty:       "embedding response was empty",
	ErrCodeEmbeddingUnsupported: "unsupported embedding backend",

	ErrCodeVectorSearchFailed: "vector search failed",
	ErrCodeVectorConnection:   "vector store connection failed",
	ErrCodeVectorUnhealthy:    "vector store unhealthy",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsServerError reports whether code maps to a 5xx status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}
