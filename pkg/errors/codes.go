package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTimeout            ErrorCode = "COMMON_005"
	ErrCodeValidation         ErrorCode = "COMMON_006"
	ErrCodeSerialization      ErrorCode = "COMMON_007"
	ErrCodeDatabaseError      ErrorCode = "COMMON_008"
	ErrCodeCacheError         ErrorCode = "COMMON_009"
	ErrCodeStorageError       ErrorCode = "COMMON_010"
	ErrCodeMessagingError     ErrorCode = "COMMON_011"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_012"
	ErrCodeNotImplemented     ErrorCode = "COMMON_013"
)

// Molecule module error codes.
const (
	ErrCodeInvalidSMILES        ErrorCode = "MOL_001"
	ErrCodeSMILESParseFailed    ErrorCode = "MOL_002"
	ErrCodeMoleculeTooLarge     ErrorCode = "MOL_003"
	ErrCodeFeaturizationFailed  ErrorCode = "MOL_004"
	ErrCodeDegreeOutOfRange     ErrorCode = "MOL_005"
	ErrCodeGraphInvariantBroken ErrorCode = "MOL_006"
)

// Dataset module error codes.
const (
	ErrCodeDatasetLoadFailed  ErrorCode = "DATA_001"
	ErrCodeDatasetEmpty       ErrorCode = "DATA_002"
	ErrCodeDatasetSchema      ErrorCode = "DATA_003"
	ErrCodeSplitFractions     ErrorCode = "DATA_004"
	ErrCodeBatchSizeInvalid   ErrorCode = "DATA_005"
	ErrCodeLabelParseFailed   ErrorCode = "DATA_006"
	ErrCodeFeatureCacheFailed ErrorCode = "DATA_007"
)

// Training module error codes.
const (
	ErrCodeModelConfigInvalid ErrorCode = "TRAIN_001"
	ErrCodeTrainingFailed     ErrorCode = "TRAIN_002"
	ErrCodeEvaluationFailed   ErrorCode = "TRAIN_003"
	ErrCodeCheckpointFailed   ErrorCode = "TRAIN_004"
	ErrCodeShapeMismatch      ErrorCode = "TRAIN_005"
	ErrCodeRunNotFound        ErrorCode = "TRAIN_006"
	ErrCodeTrainingLocked     ErrorCode = "TRAIN_007"
)

// Serving module error codes.
const (
	ErrCodeModelNotLoaded  ErrorCode = "SERVE_001"
	ErrCodePredictFailed   ErrorCode = "SERVE_002"
	ErrCodeEmbeddingFailed ErrorCode = "SERVE_003"
)

// Aliases used throughout the codebase for the most common conditions.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeUnknown      = ErrorCode("UNKNOWN")
	CodeOK           = ErrorCode("OK")
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes for the API layer.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeInvalidSMILES:        http.StatusBadRequest,
	ErrCodeSMILESParseFailed:    http.StatusBadRequest,
	ErrCodeMoleculeTooLarge:     http.StatusBadRequest,
	ErrCodeFeaturizationFailed:  http.StatusInternalServerError,
	ErrCodeDegreeOutOfRange:     http.StatusBadRequest,
	ErrCodeGraphInvariantBroken: http.StatusInternalServerError,

	ErrCodeDatasetLoadFailed:  http.StatusInternalServerError,
	ErrCodeDatasetEmpty:       http.StatusBadRequest,
	ErrCodeDatasetSchema:      http.StatusBadRequest,
	ErrCodeSplitFractions:     http.StatusBadRequest,
	ErrCodeBatchSizeInvalid:   http.StatusBadRequest,
	ErrCodeLabelParseFailed:   http.StatusBadRequest,
	ErrCodeFeatureCacheFailed: http.StatusInternalServerError,

	ErrCodeModelConfigInvalid: http.StatusBadRequest,
	ErrCodeTrainingFailed:     http.StatusInternalServerError,
	ErrCodeEvaluationFailed:   http.StatusInternalServerError,
	ErrCodeCheckpointFailed:   http.StatusInternalServerError,
	ErrCodeShapeMismatch:      http.StatusInternalServerError,
	ErrCodeRunNotFound:        http.StatusNotFound,
	ErrCodeTrainingLocked:     http.StatusConflict,

	ErrCodeModelNotLoaded:  http.StatusServiceUnavailable,
	ErrCodePredictFailed:   http.StatusInternalServerError,
	ErrCodeEmbeddingFailed: http.StatusInternalServerError,
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsClientError reports whether the ErrorCode maps to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether the ErrorCode maps to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode ("MOL", "DATA", ...).
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
