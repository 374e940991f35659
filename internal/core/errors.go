package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation  ErrorCategory = "validation"  // Invalid input
	ErrCatExecution   ErrorCategory = "execution"   // Runtime failure
	ErrCatTimeout     ErrorCategory = "timeout"     // Operation timed out
	ErrCatRateLimit   ErrorCategory = "rate_limit"  // Reasoner rate limited
	ErrCatState       ErrorCategory = "state"       // Illegal lifecycle move
	ErrCatNotFound    ErrorCategory = "not_found"   // Resource not found
	ErrCatConflict    ErrorCategory = "conflict"    // Duplicate or concurrent modification
	ErrCatPersistence ErrorCategory = "persistence" // Datastore write failed
	ErrCatInternal    ErrorCategory = "internal"    // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
	Details  map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatExecution,
		Code:     code,
		Message:  message,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category: ErrCatTimeout,
		Code:     "TIMEOUT",
		Message:  message,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category: ErrCatRateLimit,
		Code:     "RATE_LIMITED",
		Message:  message,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatState,
		Code:     code,
		Message:  message,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// ErrConflict creates a conflict error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatConflict,
		Code:     code,
		Message:  message,
	}
}

// ErrPersistence wraps a failed datastore write.
func ErrPersistence(operation string, cause error) *DomainError {
	return &DomainError{
		Category: ErrCatPersistence,
		Code:     CodeStoreWrite,
		Message:  operation + " failed",
		Cause:    cause,
	}
}

// ErrNotActive reports a conversation that is not (or no longer) running.
func ErrNotActive(conversationID string) *DomainError {
	return ErrState(CodeNotActive, fmt.Sprintf("Conversation %s is not active.", conversationID)).
		WithDetail("conversation_id", conversationID)
}

// ErrNoActiveConversation reports a user with no running conversation.
func ErrNoActiveConversation(userID string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     CodeNoActiveConversation,
		Message:  fmt.Sprintf("No active conversation found for %s.", userID),
	}
}

// ErrNotParticipant reports an instruction from outside the conversation.
func ErrNotParticipant(conversationID, userID string) *DomainError {
	return ErrValidation(CodeNotParticipant, "You are not a participant in that conversation.").
		WithDetail("conversation_id", conversationID).
		WithDetail("user_id", userID)
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return IsCategory(err, ErrCatNotFound)
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code == code
	}
	return false
}

// IsNotActive reports whether err signals an inactive conversation.
func IsNotActive(err error) bool {
	return HasCode(err, CodeNotActive)
}

// Predefined error codes
const (
	CodeNotActive            = "NOT_ACTIVE"
	CodeNotParticipant       = "NOT_PARTICIPANT"
	CodeNoActiveConversation = "NO_ACTIVE_CONVERSATION"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeDuplicateParticipant = "DUPLICATE_PARTICIPANT"
	CodeClarificationPending = "CLARIFICATION_PENDING"
	CodeStoreWrite           = "STORE_WRITE"

	// Validation error codes
	CodeEmptyTopic        = "EMPTY_TOPIC"
	CodeEmptyUser         = "EMPTY_USER"
	CodeEmptyInstruction  = "EMPTY_INSTRUCTION"
	CodeInvalidIterations = "INVALID_ITERATIONS"
	CodeInvalidTimeout    = "INVALID_TIMEOUT"
	CodeInvalidConfig     = "INVALID_CONFIG"

	// Execution error codes
	CodeReasonerFailed = "REASONER_FAILED"
	CodeDeliveryFailed = "DELIVERY_FAILED"
	CodeParseFailed    = "PARSE_FAILED"
)
