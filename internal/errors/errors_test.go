package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHTTPStatuses(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{NewInvalidArgumentError("field", "bad"), http.StatusBadRequest},
		{NewNotFoundError("post"), http.StatusNotFound},
		{NewUnauthorizedError("nope"), http.StatusUnauthorized},
		{NewForbiddenError("nope"), http.StatusForbidden},
		{NewRateLimitError(30, "1m"), http.StatusTooManyRequests},
		{NewUpstreamError("google_geocoding", "geocode", stderrors.New("down")), http.StatusServiceUnavailable},
		{NewStorageError("get_post", stderrors.New("down")), http.StatusServiceUnavailable},
		{NewInternalError("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus, tt.err.Code)
	}
}

func TestWithHTTPStatusOverride(t *testing.T) {
	err := NewInvalidArgumentError("zipCode", "must be 5 digits").WithHTTPStatus(422)
	assert.Equal(t, 422, err.HTTPStatus)
	assert.Equal(t, ErrorTypeValidation, err.Type)
}

func TestErrorStringIncludesDetails(t *testing.T) {
	err := NewNotFoundError("post")
	assert.Equal(t, "NOT_FOUND: post not found", err.Error())

	err = err.WithDetails("post abc123")
	assert.Contains(t, err.Error(), "post abc123")
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewStorageError("get_post", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause.Error(), err.Details)
}

func TestIsErrorType(t *testing.T) {
	err := NewNotFoundError("post")
	assert.True(t, IsErrorType(err, ErrorTypeNotFound))
	assert.False(t, IsErrorType(err, ErrorTypeValidation))
	assert.False(t, IsErrorType(stderrors.New("plain"), ErrorTypeNotFound))

	wrapped := fmt.Errorf("loading page: %w", err)
	assert.True(t, IsErrorType(wrapped, ErrorTypeNotFound))
}

func TestAsAppError(t *testing.T) {
	original := NewForbiddenError("not yours")
	got := AsAppError(fmt.Errorf("context: %w", original))
	assert.Same(t, original, got)

	plain := stderrors.New("boom")
	got = AsAppError(plain)
	require.NotNil(t, got)
	assert.Equal(t, ErrorTypeInternal, got.Type)
	assert.ErrorIs(t, got, plain)
}

func TestWithMetadata(t *testing.T) {
	err := NewInvalidArgumentError("genres", "unknown genre").
		WithMetadata("genre", "polka")

	assert.Equal(t, "genres", err.Metadata["field"])
	assert.Equal(t, "polka", err.Metadata["genre"])
}
