package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.  Codes
// are grouped by module prefix: COMMON, CFG, PII, DET, STORE.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeNotImplemented     ErrorCode = "COMMON_016"
	ErrCodeRateLimited        ErrorCode = "COMMON_017"
)

// Configuration error codes.
const (
	ErrCodeConfigLoad      ErrorCode = "CFG_001"
	ErrCodeConfigInvalid   ErrorCode = "CFG_002"
	ErrCodeInputNotFound   ErrorCode = "CFG_003"
	ErrCodeFilterFileParse ErrorCode = "CFG_004"
	ErrCodeInputFormat     ErrorCode = "CFG_005"
)

// Pipeline error codes.
const (
	ErrCodeInvalidChunking     ErrorCode = "PII_001"
	ErrCodeInvalidSpan         ErrorCode = "PII_002"
	ErrCodeMissingScore        ErrorCode = "PII_003"
	ErrCodePlaceholderFormat   ErrorCode = "PII_004"
	ErrCodeEmptyLabels         ErrorCode = "PII_005"
	ErrCodeThresholdOutOfRange ErrorCode = "PII_006"
)

// Detector error codes.
const (
	ErrCodeDetectorUnavailable ErrorCode = "DET_001"
	ErrCodeDetectorResponse    ErrorCode = "DET_002"
	ErrCodeDetectorTimeout     ErrorCode = "DET_003"
	ErrCodeDetectorUnknownKind ErrorCode = "DET_004"
)

// Storage, cache and messaging error codes.
const (
	ErrCodeCacheError       ErrorCode = "STORE_001"
	ErrCodeCacheMiss        ErrorCode = "STORE_002"
	ErrCodeArtifactUpload   ErrorCode = "STORE_003"
	ErrCodeArtifactNotFound ErrorCode = "STORE_004"
	ErrCodeMessagePublish   ErrorCode = "STORE_005"
	ErrCodeMessageConsume   ErrorCode = "STORE_006"
)

// Short aliases used at call sites.
const (
	CodeOK                 = ErrorCode("OK")
	CodeUnknown            = ErrorCode("UNKNOWN")
	CodeInternal           = ErrCodeInternal
	CodeInvalidParam       = ErrCodeBadRequest
	CodeNotFound           = ErrCodeNotFound
	CodeServiceUnavailable = ErrCodeServiceUnavailable
	CodeTimeout            = ErrCodeTimeout
	CodeValidation         = ErrCodeValidation
	CodeSerialization      = ErrCodeSerialization
	CodeNotImplemented     = ErrCodeNotImplemented
	CodeRateLimited        = ErrCodeRateLimited

	CodeConfigLoad      = ErrCodeConfigLoad
	CodeConfigInvalid   = ErrCodeConfigInvalid
	CodeInputNotFound   = ErrCodeInputNotFound
	CodeFilterFileParse = ErrCodeFilterFileParse
	CodeInputFormat     = ErrCodeInputFormat

	CodeInvalidChunking     = ErrCodeInvalidChunking
	CodeInvalidSpan         = ErrCodeInvalidSpan
	CodeMissingScore        = ErrCodeMissingScore
	CodePlaceholderFormat   = ErrCodePlaceholderFormat
	CodeEmptyLabels         = ErrCodeEmptyLabels
	CodeThresholdOutOfRange = ErrCodeThresholdOutOfRange

	CodeDetectorUnavailable = ErrCodeDetectorUnavailable
	CodeDetectorResponse    = ErrCodeDetectorResponse
	CodeDetectorTimeout     = ErrCodeDetectorTimeout
	CodeDetectorUnknownKind = ErrCodeDetectorUnknownKind

	CodeCacheError       = ErrCodeCacheError
	CodeCacheMiss        = ErrCodeCacheMiss
	CodeArtifactUpload   = ErrCodeArtifactUpload
	CodeArtifactNotFound = ErrCodeArtifactNotFound
	CodeMessagePublish   = ErrCodeMessagePublish
	CodeMessageConsume   = ErrCodeMessageConsume
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeNotImplemented:     http.StatusNotImplemented,
	ErrCodeRateLimited:        http.StatusTooManyRequests,

	ErrCodeConfigLoad:      http.StatusInternalServerError,
	ErrCodeConfigInvalid:   http.StatusBadRequest,
	ErrCodeInputNotFound:   http.StatusNotFound,
	ErrCodeFilterFileParse: http.StatusInternalServerError,
	ErrCodeInputFormat:     http.StatusUnsupportedMediaType,

	ErrCodeInvalidChunking:     http.StatusBadRequest,
	ErrCodeInvalidSpan:         http.StatusBadGateway,
	ErrCodeMissingScore:        http.StatusBadGateway,
	ErrCodePlaceholderFormat:   http.StatusBadRequest,
	ErrCodeEmptyLabels:         http.StatusBadRequest,
	ErrCodeThresholdOutOfRange: http.StatusBadRequest,

	ErrCodeDetectorUnavailable: http.StatusServiceUnavailable,
	ErrCodeDetectorResponse:    http.StatusBadGateway,
	ErrCodeDetectorTimeout:     http.StatusGatewayTimeout,
	ErrCodeDetectorUnknownKind: http.StatusBadRequest,

	ErrCodeCacheError:       http.StatusInternalServerError,
	ErrCodeCacheMiss:        http.StatusNotFound,
	ErrCodeArtifactUpload:   http.StatusBadGateway,
	ErrCodeArtifactNotFound: http.StatusNotFound,
	ErrCodeMessagePublish:   http.StatusBadGateway,
	ErrCodeMessageConsume:   http.StatusBadGateway,
}

// ErrorCodeMessage maps error codes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeNotImplemented:     "not implemented",
	ErrCodeRateLimited:        "rate limit exceeded, retry later",

	ErrCodeConfigLoad:      "failed to load configuration",
	ErrCodeConfigInvalid:   "invalid configuration",
	ErrCodeInputNotFound:   "input file not found",
	ErrCodeFilterFileParse: "failed to parse false-positive file",
	ErrCodeInputFormat:     "unsupported or unreadable input document",

	ErrCodeInvalidChunking:     "invalid chunk size or overlap",
	ErrCodeInvalidSpan:         "detection span out of bounds",
	ErrCodeMissingScore:        "detection is missing a confidence score",
	ErrCodePlaceholderFormat:   "unknown placeholder format",
	ErrCodeEmptyLabels:         "no labels requested",
	ErrCodeThresholdOutOfRange: "threshold must be within [0,1]",

	ErrCodeDetectorUnavailable: "detector unavailable",
	ErrCodeDetectorResponse:    "invalid detector response",
	ErrCodeDetectorTimeout:     "detector timeout",
	ErrCodeDetectorUnknownKind: "unknown detector kind",

	ErrCodeCacheError:       "cache error",
	ErrCodeCacheMiss:        "cache miss",
	ErrCodeArtifactUpload:   "failed to upload artifact",
	ErrCodeArtifactNotFound: "artifact not found",
	ErrCodeMessagePublish:   "failed to publish message",
	ErrCodeMessageConsume:   "failed to consume message",
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

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

// ExitCodeForCode maps an error code to a process exit status for the CLI.
// Every failure exits 1; configuration problems exit 2 so scripts can tell a
// bad invocation from a failed run.
func ExitCodeForCode(code ErrorCode) int {
	switch code {
	case CodeOK:
		return 0
	case ErrCodeConfigInvalid, ErrCodePlaceholderFormat, ErrCodeDetectorUnknownKind:
		return 2
	default:
		return 1
	}
}

//Personal.AI order the ending
