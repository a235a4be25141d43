package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed client request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrValidation marks an amount the recorder refuses to persist.
	ErrValidation = errors.New("amount must be a valid positive number")
	// ErrPersistence marks a failed storage write.
	ErrPersistence = errors.New("persistence failure")
	// ErrMessageDecode marks an event payload that cannot be decoded.
	ErrMessageDecode = errors.New("message decode failure")
	// ErrEntityNotFound marks an event that references a missing entity.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrRateLimited marks a caller that exceeded its donation quota.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// PaymentProviderError reports a failed call to the payment provider.
// Status is zero when the provider could not be reached at all.
type PaymentProviderError struct {
	Status int
	Body   string
	Err    error
}

func (e *PaymentProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("payment provider unavailable: %v", e.Err)
	}
	return fmt.Sprintf("payment provider rejected request: %d - %s", e.Status, e.Body)
}

func (e *PaymentProviderError) Unwrap() error {
	return e.Err
}

// RateLimitError carries how long the caller should wait.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s; retry after %ds", ErrRateLimited, e.RetryAfterSeconds)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
