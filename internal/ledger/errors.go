package ledger

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before it touches the ledger.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NewValidationError builds a field-level validation failure.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether any error in the chain is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError marks an absent deal, fact, or review. It carries no detail
// beyond entity and id, so it never leaks another caller's data.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// IsNotFound reports whether any error in the chain is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// StaleReviewError signals that a review was resolved concurrently, or that
// a write raced another mutation of the same fact. The caller must refetch.
type StaleReviewError struct {
	ReviewID string
}

func (e *StaleReviewError) Error() string {
	if e.ReviewID == "" {
		return "concurrent fact mutation, refetch and retry"
	}
	return fmt.Sprintf("review already resolved: %s", e.ReviewID)
}

// IsStaleReview reports whether any error in the chain is a StaleReviewError.
func IsStaleReview(err error) bool {
	var sr *StaleReviewError
	return errors.As(err, &sr)
}
