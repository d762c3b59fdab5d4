package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	err := ErrNotFound.WithDetail("key", "beta")
	assert.Contains(t, err.Details, "key")
	assert.Empty(t, ErrNotFound.Details)
}

func TestWrapPreservesCode(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrInternal)

	assert.True(t, !IsNotFound(err))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(err))
	assert.ErrorContains(t, err, "connection refused")
}

func TestIsHelpers(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound.WithDetail("key", "x")))
	assert.True(t, IsValidation(Wrap(fmt.Errorf("bad"), ErrValidation)))
	assert.True(t, IsConflict(ErrConflict))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))
}

func TestToHTTPStatusUnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(fmt.Errorf("plain")))
}

func TestToErrorResponse(t *testing.T) {
	response := ToErrorResponse(ErrValidation.WithDetail("message", "key is required"))
	assert.Equal(t, "VALIDATION_ERROR", response["error_code"])
	assert.Contains(t, response, "details")

	plain := ToErrorResponse(fmt.Errorf("boom"))
	assert.Equal(t, "INTERNAL_ERROR", plain["error_code"])
}
