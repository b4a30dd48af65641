package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected string
	}{
		{
			name: "error without cause",
			appError: &AppError{
				Code:    "TEST_ERROR",
				Message: "Test error message",
			},
			expected: "TEST_ERROR: Test error message",
		},
		{
			name: "error with cause",
			appError: &AppError{
				Code:    "TEST_ERROR",
				Message: "Test error message",
				Cause:   fmt.Errorf("underlying error"),
			},
			expected: "TEST_ERROR: Test error message (caused by: underlying error)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.Error())
		})
	}
}

func TestAppError_GetHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		expected int
	}{
		{name: "validation error", appError: &AppError{Type: ErrTypeValidation}, expected: http.StatusBadRequest},
		{name: "structural conflict", appError: &AppError{Type: ErrTypeStructural}, expected: http.StatusConflict},
		{name: "concurrency", appError: &AppError{Type: ErrTypeConcurrency}, expected: http.StatusConflict},
		{name: "not found", appError: &AppError{Type: ErrTypeNotFound}, expected: http.StatusNotFound},
		{name: "timeout", appError: &AppError{Type: ErrTypeTimeout}, expected: http.StatusGatewayTimeout},
		{name: "rate limit", appError: &AppError{Type: ErrTypeRateLimit}, expected: http.StatusTooManyRequests},
		{name: "external", appError: &AppError{Type: ErrTypeExternal}, expected: http.StatusBadGateway},
		{name: "internal", appError: &AppError{Type: ErrTypeInternal}, expected: http.StatusInternalServerError},
		{name: "explicit status wins", appError: &AppError{Type: ErrTypeValidation, StatusCode: http.StatusConflict}, expected: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appError.GetHTTPStatusCode())
		})
	}
}

func TestHierarchyErrorConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		sentinel  *AppError
		errType   ErrorType
		status    int
		retryable bool
	}{
		{"invalid segment", NewInvalidSegmentError("", nil), ErrInvalidSegment, ErrTypeValidation, http.StatusBadRequest, false},
		{"malformed path", NewMalformedPathError("a//b", nil), ErrMalformedPath, ErrTypeValidation, http.StatusBadRequest, false},
		{"duplicate sibling", NewDuplicateSiblingNameError("phones"), ErrDuplicateSiblingName, ErrTypeValidation, http.StatusConflict, false},
		{"incomplete reorder", NewIncompleteReorderSetError("missing x"), ErrIncompleteReorderSet, ErrTypeValidation, http.StatusBadRequest, false},
		{"has children", NewNodeHasChildrenError("n1", 2), ErrNodeHasChildren, ErrTypeValidation, http.StatusConflict, false},
		{"dependent items", NewDependentItemsExistError("n1"), ErrDependentItemsExist, ErrTypeValidation, http.StatusConflict, false},
		{"cyclic move", NewCyclicMoveError("a", "b"), ErrCyclicMove, ErrTypeStructural, http.StatusConflict, false},
		{"overlapping batch", NewOverlappingMoveBatchError("a", "b"), ErrOverlappingMoveBatch, ErrTypeStructural, http.StatusConflict, false},
		{"no common ancestor", NewNoCommonAncestorError("a", "b"), ErrNoCommonAncestor, ErrTypeStructural, http.StatusConflict, false},
		{"concurrent modification", NewConcurrentModificationError("a/b", nil), ErrConcurrentModification, ErrTypeConcurrency, http.StatusConflict, true},
		{"deadline exceeded", NewDeadlineExceededError("bulk_move", context.DeadlineExceeded), ErrDeadlineExceeded, ErrTypeTimeout, http.StatusGatewayTimeout, true},
		{"node not found", NewNodeNotFoundError("n1"), ErrNodeNotFound, ErrTypeNotFound, http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.errType, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.GetHTTPStatusCode())
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.True(t, Is(tt.err, tt.sentinel))
			assert.NotEmpty(t, tt.err.Details)
		})
	}
}

func TestSentinelMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("move failed: %w", NewCyclicMoveError("a", "b"))

	assert.True(t, stderrors.Is(err, ErrCyclicMove))
	assert.False(t, stderrors.Is(err, ErrOverlappingMoveBatch))

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeCyclicMove, appErr.Code)
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := NewNotFoundError(ErrCodeNodeNotFound, "missing", nil)
	detailed := base.WithDetails("node %s", "x")

	assert.Empty(t, base.Details)
	assert.Equal(t, "node x", detailed.Details)
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(NewValidationError("TEST", "test", nil)))
	assert.True(t, IsAppError(fmt.Errorf("wrapped: %w", NewNodeNotFoundError("x"))))
	assert.False(t, IsAppError(fmt.Errorf("regular error")))
	assert.False(t, IsAppError(nil))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, ErrTypeInternal, "TEST", "test"))

	cause := fmt.Errorf("connection reset")
	wrapped := WrapError(cause, ErrTypeDatabase, ErrCodeDatabaseQuery, "query failed")
	assert.Equal(t, ErrTypeDatabase, wrapped.Type)
	assert.Equal(t, cause, wrapped.Cause)
	assert.True(t, wrapped.Retryable)

	inner := NewConcurrentModificationError("a", nil)
	rewrapped := WrapError(inner, ErrTypeInternal, ErrCodeProcessingError, "outer")
	assert.True(t, rewrapped.Retryable, "retryability of an inner AppError is preserved")
	assert.True(t, Is(rewrapped, ErrConcurrentModification))
}

func TestFromContext(t *testing.T) {
	err := FromContext(context.DeadlineExceeded, "repair")
	assert.True(t, Is(err, ErrDeadlineExceeded))

	err = FromContext(context.Canceled, "repair")
	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, ErrTypeInternal, appErr.Type)

	plain := fmt.Errorf("other")
	assert.Equal(t, plain, FromContext(plain, "repair"))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewConcurrentModificationError("a", nil)))
	assert.True(t, IsRetryable(NewDeadlineExceededError("move", nil)))
	assert.False(t, IsRetryable(NewCyclicMoveError("a", "b")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(fmt.Errorf("unknown")))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	appErr := &AppError{Cause: cause}

	assert.Equal(t, cause, appErr.Unwrap())
}
