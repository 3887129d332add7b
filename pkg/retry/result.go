package retry

import "github.com/rohmanhakim/pagefrontier/pkg/failure"

// Result carries the outcome of a Retry call: the produced value on
// success, the terminal error on failure, and how many attempts were
// made either way.
type Result[T any] struct {
	value    T
	err      failure.ClassifiedError
	attempts int
}

// NewSuccessResult wraps a successful value with the attempt count it took.
func NewSuccessResult[T any](value T, attempts int) Result[T] {
	return Result[T]{value: value, attempts: attempts}
}

// Value returns the produced value; the zero value of T if the call failed.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the terminal error, or nil on success.
func (r Result[T]) Err() failure.ClassifiedError {
	return r.err
}

// IsSuccess reports whether the call ultimately succeeded.
func (r Result[T]) IsSuccess() bool {
	return r.err == nil
}

// IsFailure reports whether the call ultimately failed.
func (r Result[T]) IsFailure() bool {
	return r.err != nil
}

// Attempts reports how many attempts were made.
func (r Result[T]) Attempts() int {
	return r.attempts
}
