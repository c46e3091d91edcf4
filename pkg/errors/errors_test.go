package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	e := New(ErrCodeInvalidSMILES, "SMILES has unbalanced brackets")
	assert.Equal(t, "[MOL_001] SMILES has unbalanced brackets", e.Error())

	withDetail := e.WithDetail("smiles=C1CC")
	assert.Equal(t, "[MOL_001] SMILES has unbalanced brackets: smiles=C1CC", withDetail.Error())
	// Original is not mutated.
	assert.Empty(t, e.Detail)
}

func TestAppError_NilReceivers(t *testing.T) {
	var e *AppError
	assert.Nil(t, e.WithDetail("x"))
	assert.Nil(t, e.WithCause(stderrors.New("boom")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "never happens"))

	cause := stderrors.New("disk full")
	wrapped := Wrap(cause, ErrCodeDatasetLoadFailed, "failed to read CSV")
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrCodeDatasetLoadFailed, wrapped.Code)
	assert.True(t, stderrors.Is(wrapped, cause))
}

func TestWrap_PreservesCodeOnUnknown(t *testing.T) {
	inner := New(ErrCodeRunNotFound, "run missing")
	outer := Wrap(inner, CodeUnknown, "lookup failed")
	assert.Equal(t, ErrCodeRunNotFound, outer.Code)
}

func TestIsCode(t *testing.T) {
	inner := New(ErrCodeShapeMismatch, "expected 75 columns")
	chained := fmt.Errorf("forward pass: %w", inner)
	assert.True(t, IsCode(chained, ErrCodeShapeMismatch))
	assert.False(t, IsCode(chained, ErrCodeCacheError))
	assert.False(t, IsCode(nil, ErrCodeShapeMismatch))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(New(ErrCodeRunNotFound, "no such run")))
	assert.True(t, IsNotFound(NotFound("missing")))
	assert.False(t, IsNotFound(Internal("boom")))
	assert.False(t, IsNotFound(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrCodeCacheError, GetCode(New(ErrCodeCacheError, "redis down")))
}

func TestHTTPStatusForCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatusForCode(ErrCodeInvalidSMILES))
	assert.Equal(t, http.StatusNotFound, HTTPStatusForCode(ErrCodeRunNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusForCode(ErrCodeModelNotLoaded))
	// Unmapped codes fall back to 500.
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusForCode(ErrorCode("NOPE_999")))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "MOL", ModuleForCode(ErrCodeInvalidSMILES))
	assert.Equal(t, "TRAIN", ModuleForCode(ErrCodeTrainingFailed))
	assert.Equal(t, "UNKNOWN", ModuleForCode(ErrorCode("")))
}

func TestClientServerErrorClassification(t *testing.T) {
	assert.True(t, IsClientError(ErrCodeInvalidSMILES))
	assert.False(t, IsServerError(ErrCodeInvalidSMILES))
	assert.True(t, IsServerError(ErrCodeCheckpointFailed))
}
