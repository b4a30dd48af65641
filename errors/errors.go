package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeValidation  ErrorType = "validation"
	ErrTypeStructural  ErrorType = "structural_conflict"
	ErrTypeConcurrency ErrorType = "concurrency"
	ErrTypeExternal    ErrorType = "external_service"
	ErrTypeDatabase    ErrorType = "database"
	ErrTypeInternal    ErrorType = "internal"
	ErrTypeTimeout     ErrorType = "timeout"
	ErrTypeRateLimit   ErrorType = "rate_limit"
	ErrTypeNotFound    ErrorType = "not_found"
	ErrTypeConflict    ErrorType = "conflict"
)

// AppError represents a standardized application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Cause      error     `json:"-"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code, so the sentinels below work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// IsRetryable returns whether the error should be retried
func (e *AppError) IsRetryable() bool {
	return e.Retryable
}

// GetHTTPStatusCode returns the appropriate HTTP status code
func (e *AppError) GetHTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeConflict, ErrTypeStructural, ErrTypeConcurrency:
		return http.StatusConflict
	case ErrTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy of the error carrying details.
func (e *AppError) WithDetails(format string, args ...interface{}) *AppError {
	clone := *e
	clone.Details = fmt.Sprintf(format, args...)
	return &clone
}

// Error constructors for common error types

// NewValidationError creates a validation error
func NewValidationError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeValidation,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
	}
}

// NewStructuralError creates an error for requests that would break the tree shape
func NewStructuralError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeStructural,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusConflict,
		Retryable:  false,
	}
}

// NewConcurrencyError creates a retryable concurrency error
func NewConcurrencyError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeConcurrency,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusConflict,
		Retryable:  true,
	}
}

// NewExternalServiceError creates an external service error
func NewExternalServiceError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeExternal,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeDatabase,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
		Retryable:  true,
	}
}

// NewInternalError creates an internal error
func NewInternalError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeInternal,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeTimeout,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusGatewayTimeout,
		Retryable:  true,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeRateLimit,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeNotFound,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusNotFound,
		Retryable:  false,
	}
}

// NewConflictError creates a conflict error
func NewConflictError(code, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeConflict,
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusConflict,
		Retryable:  false,
	}
}

// Predefined error codes
const (
	// Validation errors
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeMissingField         = "MISSING_FIELD"
	ErrCodeInvalidFormat        = "INVALID_FORMAT"
	ErrCodeInvalidRange         = "INVALID_RANGE"
	ErrCodeInvalidSegment       = "INVALID_SEGMENT"
	ErrCodeMalformedPath        = "MALFORMED_PATH"
	ErrCodeDuplicateSiblingName = "DUPLICATE_SIBLING_NAME"
	ErrCodeIncompleteReorderSet = "INCOMPLETE_REORDER_SET"
	ErrCodeNodeHasChildren      = "NODE_HAS_CHILDREN"
	ErrCodeDependentItemsExist  = "DEPENDENT_ITEMS_EXIST"
	ErrCodeMaxDepthExceeded     = "MAX_DEPTH_EXCEEDED"

	// Structural conflicts
	ErrCodeCyclicMove           = "CYCLIC_MOVE"
	ErrCodeOverlappingMoveBatch = "OVERLAPPING_MOVE_BATCH"
	ErrCodeNoCommonAncestor     = "NO_COMMON_ANCESTOR"
	ErrCodeNotAnOrphan          = "NOT_AN_ORPHAN"

	// Concurrency errors
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	ErrCodeDeadlineExceeded       = "DEADLINE_EXCEEDED"

	// External service errors
	ErrCodeCacheUnavailable = "CACHE_UNAVAILABLE"
	ErrCodeEventPublish     = "EVENT_PUBLISH_FAILED"

	// Database errors
	ErrCodeDatabaseConnection = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQuery      = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseConstraint = "DATABASE_CONSTRAINT_VIOLATION"

	// Internal errors
	ErrCodeConfigurationError = "CONFIGURATION_ERROR"
	ErrCodeSerializationError = "SERIALIZATION_ERROR"
	ErrCodeProcessingError    = "PROCESSING_ERROR"

	// Resource errors
	ErrCodeNodeNotFound     = "NODE_NOT_FOUND"
	ErrCodeResourceConflict = "RESOURCE_CONFLICT"
	ErrCodeRateLimited      = "RATE_LIMITED"
)

// Sentinels for errors.Is checks against any error carrying the same code.
var (
	ErrInvalidSegment         = &AppError{Type: ErrTypeValidation, Code: ErrCodeInvalidSegment}
	ErrMalformedPath          = &AppError{Type: ErrTypeValidation, Code: ErrCodeMalformedPath}
	ErrDuplicateSiblingName   = &AppError{Type: ErrTypeValidation, Code: ErrCodeDuplicateSiblingName}
	ErrIncompleteReorderSet   = &AppError{Type: ErrTypeValidation, Code: ErrCodeIncompleteReorderSet}
	ErrNodeHasChildren        = &AppError{Type: ErrTypeValidation, Code: ErrCodeNodeHasChildren}
	ErrDependentItemsExist    = &AppError{Type: ErrTypeValidation, Code: ErrCodeDependentItemsExist}
	ErrMaxDepthExceeded       = &AppError{Type: ErrTypeValidation, Code: ErrCodeMaxDepthExceeded}
	ErrCyclicMove             = &AppError{Type: ErrTypeStructural, Code: ErrCodeCyclicMove}
	ErrOverlappingMoveBatch   = &AppError{Type: ErrTypeStructural, Code: ErrCodeOverlappingMoveBatch}
	ErrNoCommonAncestor       = &AppError{Type: ErrTypeStructural, Code: ErrCodeNoCommonAncestor}
	ErrNotAnOrphan            = &AppError{Type: ErrTypeStructural, Code: ErrCodeNotAnOrphan}
	ErrConcurrentModification = &AppError{Type: ErrTypeConcurrency, Code: ErrCodeConcurrentModification}
	ErrDeadlineExceeded       = &AppError{Type: ErrTypeTimeout, Code: ErrCodeDeadlineExceeded}
	ErrNodeNotFound           = &AppError{Type: ErrTypeNotFound, Code: ErrCodeNodeNotFound}
)

// Hierarchy error constructors

// NewInvalidSegmentError reports a name or segment that cannot become a path segment
func NewInvalidSegmentError(segment string, cause error) *AppError {
	return NewValidationError(ErrCodeInvalidSegment, "Invalid path segment", cause).
		WithDetails("segment %q", segment)
}

// NewMalformedPathError reports a stored path that failed to decode
func NewMalformedPathError(path string, cause error) *AppError {
	return NewValidationError(ErrCodeMalformedPath, "Malformed materialized path", cause).
		WithDetails("path %q", path)
}

// NewDuplicateSiblingNameError reports a segment already used under the same parent
func NewDuplicateSiblingNameError(segment string) *AppError {
	err := NewValidationError(ErrCodeDuplicateSiblingName, "A sibling with the same name already exists", nil)
	err.StatusCode = http.StatusConflict
	return err.WithDetails("segment %q", segment)
}

// NewIncompleteReorderSetError reports a reorder list that does not match the child set
func NewIncompleteReorderSetError(details string) *AppError {
	return NewValidationError(ErrCodeIncompleteReorderSet, "Reorder list must contain exactly the current children", nil).
		WithDetails("%s", details)
}

// NewNodeHasChildrenError reports a delete of a node that still has children
func NewNodeHasChildrenError(nodeID string, children int) *AppError {
	err := NewValidationError(ErrCodeNodeHasChildren, "Node still has children", nil)
	err.StatusCode = http.StatusConflict
	return err.WithDetails("node %s has %d children", nodeID, children)
}

// NewDependentItemsExistError reports a delete blocked by external dependents
func NewDependentItemsExistError(nodeID string) *AppError {
	err := NewValidationError(ErrCodeDependentItemsExist, "Node has dependent items", nil)
	err.StatusCode = http.StatusConflict
	return err.WithDetails("node %s", nodeID)
}

// NewMaxDepthExceededError reports a mutation that would nest nodes too deeply
func NewMaxDepthExceededError(depth, max int) *AppError {
	return NewValidationError(ErrCodeMaxDepthExceeded, "Maximum hierarchy depth exceeded", nil).
		WithDetails("depth %d exceeds maximum %d", depth, max)
}

// NewCyclicMoveError reports a move under the node itself or one of its descendants
func NewCyclicMoveError(nodeID, targetID string) *AppError {
	return NewStructuralError(ErrCodeCyclicMove, "Move would create a cycle", nil).
		WithDetails("cannot move %s under %s", nodeID, targetID)
}

// NewOverlappingMoveBatchError reports two moves in one batch touching the same subtree
func NewOverlappingMoveBatchError(first, second string) *AppError {
	return NewStructuralError(ErrCodeOverlappingMoveBatch, "Batch contains moves of overlapping subtrees", nil).
		WithDetails("%s overlaps %s", first, second)
}

// NewNoCommonAncestorError reports two nodes under disjoint roots
func NewNoCommonAncestorError(a, b string) *AppError {
	return NewStructuralError(ErrCodeNoCommonAncestor, "Nodes share no common ancestor", nil).
		WithDetails("%s and %s are in different trees", a, b)
}

// NewNotAnOrphanError reports an orphan resolution request for a node whose parent exists
func NewNotAnOrphanError(nodeID string) *AppError {
	return NewStructuralError(ErrCodeNotAnOrphan, "Node is not an orphan", nil).
		WithDetails("node %s", nodeID)
}

// NewConcurrentModificationError reports a lock or serialization conflict
func NewConcurrentModificationError(scope string, cause error) *AppError {
	return NewConcurrencyError(ErrCodeConcurrentModification, "Subtree is being modified concurrently", cause).
		WithDetails("scope %q", scope)
}

// NewDeadlineExceededError reports a mutation abandoned at the caller's deadline
func NewDeadlineExceededError(operation string, cause error) *AppError {
	return NewTimeoutError(ErrCodeDeadlineExceeded, "Operation deadline exceeded", cause).
		WithDetails("operation %s rolled back", operation)
}

// NewNodeNotFoundError reports an id that does not resolve
func NewNodeNotFoundError(nodeID string) *AppError {
	return NewNotFoundError(ErrCodeNodeNotFound, "Category node not found", nil).
		WithDetails("node %s", nodeID)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError converts an error to AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// WrapError wraps an existing error as an AppError
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the original type unless explicitly overridden
	if appErr, ok := AsAppError(err); ok {
		return &AppError{
			Type:      errType,
			Code:      code,
			Message:   message,
			Cause:     appErr,
			Retryable: appErr.Retryable,
		}
	}

	return &AppError{
		Type:      errType,
		Code:      code,
		Message:   message,
		Cause:     err,
		Retryable: isRetryableByDefault(errType),
	}
}

// FromContext maps a context error onto the error taxonomy.
func FromContext(err error, operation string) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return NewDeadlineExceededError(operation, err)
	case stderrors.Is(err, context.Canceled):
		return NewInternalError(ErrCodeProcessingError, "Operation canceled", err).
			WithDetails("operation %s rolled back", operation)
	default:
		return err
	}
}

// isRetryableByDefault determines default retryability based on error type
func isRetryableByDefault(errType ErrorType) bool {
	switch errType {
	case ErrTypeExternal, ErrTypeDatabase, ErrTypeConcurrency, ErrTypeTimeout, ErrTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.IsRetryable()
	}

	// Check for context errors
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Default to non-retryable for unknown errors
	return false
}
