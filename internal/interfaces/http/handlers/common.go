// Package handlers implements the GraphChem HTTP API endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/molforge/graphchem/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpStatus maps platform error codes to HTTP status codes.
func httpStatus(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeBadRequest, errors.ErrCodeValidation,
		errors.ErrCodeInvalidSMILES, errors.ErrCodeSMILESParseFailed,
		errors.ErrCodeMoleculeTooLarge, errors.ErrCodeDegreeOutOfRange,
		errors.ErrCodeDatasetSchema, errors.ErrCodeSplitFractions,
		errors.ErrCodeBatchSizeInvalid, errors.ErrCodeShapeMismatch:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodeRunNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict, errors.ErrCodeTrainingLocked:
		return http.StatusConflict
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeServiceUnavailable, errors.ErrCodeModelNotLoaded:
		return http.StatusServiceUnavailable
	case errors.ErrCodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a structured error response, masking internal detail
// on 5xx responses.
func respondError(c *gin.Context, err error) {
	status := httpStatus(err)
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    string(errors.GetCode(err)),
		Message: msg,
	})
}
