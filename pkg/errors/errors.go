package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a service is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Bus-specific errors

var (
	// ErrNotConnected indicates the event bus is not connected
	ErrNotConnected = errors.New("event bus not connected")

	// ErrInvalidTopic indicates a malformed topic or pattern
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrSubscriptionNotFound indicates an unknown subscription id
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrRequestTimeout indicates a request/reply exceeded its deadline
	ErrRequestTimeout = errors.New("request timed out")
)

// Risk-specific errors

var (
	// ErrNotInitialized indicates an operation was called before Initialize
	ErrNotInitialized = errors.New("portfolio not initialized")

	// ErrOrderBlocked indicates an order was rejected by the risk manager
	ErrOrderBlocked = errors.New("order blocked by risk manager")

	// ErrDrawdownExceeded indicates the drawdown limit was breached
	ErrDrawdownExceeded = errors.New("drawdown limit exceeded")

	// ErrMaxExposure indicates the maximum exposure limit was reached
	ErrMaxExposure = errors.New("maximum exposure limit reached")

	// ErrWarningNotFound indicates an unknown risk warning id
	ErrWarningNotFound = errors.New("risk warning not found")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
