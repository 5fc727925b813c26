package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_StatusCode_CodeOverrideWinsOverCategory(t *testing.T) {
	err := NotFound(CodeSessionNotFound, "no such session")
	assert.Equal(t, http.StatusNotFound, err.StatusCode())
}

func TestAppError_StatusCode_FallsBackToCategory(t *testing.T) {
	err := Validation("", "bad input", nil)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode())
}

func TestAppError_StatusCode_UnknownCategoryIsInternal(t *testing.T) {
	err := New(Category("BOGUS"), "BOGUS_CODE", "oops", nil)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode())
}

func TestValidation_DefaultsCodeWhenEmpty(t *testing.T) {
	err := Validation("", "bad field", nil)
	assert.Equal(t, CodeValidationFailed, err.Code)
}

func TestValidation_KeepsCallerSuppliedCode(t *testing.T) {
	err := Validation("NICKNAME_TAKEN", "nickname in use", nil)
	assert.Equal(t, "NICKNAME_TAKEN", err.Code)
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := StorageUnavailable(cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestToEnvelope_HidesCauseInProduction(t *testing.T) {
	err := Internal(errors.New("stack trace leaked here"))
	env := ToEnvelope(err, "req-1", true)
	assert.Nil(t, env.Details)
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, CodeInternal, env.Code)
}

func TestToEnvelope_IncludesCauseOutsideProduction(t *testing.T) {
	err := Internal(errors.New("stack trace"))
	env := ToEnvelope(err, "req-1", false)
	assert.NotNil(t, env.Details)
	assert.Equal(t, "stack trace", env.Details["cause"])
}

func TestAs_PassesThroughAppError(t *testing.T) {
	original := Conflict(CodeDuplicateAnswer, "already answered")
	assert.Same(t, original, As(original))
}

func TestAs_WrapsForeignErrorAsUnknown(t *testing.T) {
	ae := As(errors.New("not ours"))
	assert.Equal(t, CategoryUnknown, ae.Category)
	assert.Equal(t, CodeInternal, ae.Code)
}

func TestAs_NilIsNil(t *testing.T) {
	assert.Nil(t, As(nil))
}
