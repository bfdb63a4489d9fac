// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Ledger errors.
	ErrNotFound         = errors.New("not found")
	ErrLedgerContention = errors.New("ledger contention on transponder key")

	// Ingest errors.
	ErrSegmentRejected = errors.New("segment rejected")

	// Disclosure errors.
	ErrCaseAlreadyOpen      = errors.New("disclosure case already open")
	ErrInvalidTransition    = errors.New("invalid case status transition")
	ErrInsufficientEvidence = errors.New("insufficient evidence for disclosure")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRejection reports whether an error is a quality rejection, which is a
// reported statistic rather than a pipeline failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrSegmentRejected)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrLedgerContention) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
