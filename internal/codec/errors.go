package codec

import (
	"errors"
	"fmt"

	"github.com/muurk/ocfstack/internal/payload"
)

var (
	// ErrBufferTooSmall is reported by the bounded writer when an encode
	// did not fit. Encode retries once before surfacing it.
	ErrBufferTooSmall = errors.New("encode buffer too small")

	// ErrInvalidPayload marks a payload whose shape cannot be encoded
	// (mixed array kinds, storage shorter than its dimensions, both
	// discovery forms, missing mandatory fields).
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrMalformedResponse is matched by every DecodeError.
	ErrMalformedResponse = errors.New("malformed response")
)

// EncodeError is returned by Encode
type EncodeError struct {
	Kind payload.Kind // Payload variant being encoded
	Err  error        // Underlying cause; wraps ErrBufferTooSmall or ErrInvalidPayload
}

// Error implements the error interface
func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding %s payload: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DecodeError is returned by Decode for any structural problem in the input.
// No partial payload accompanies it.
type DecodeError struct {
	Kind   payload.Kind // Payload variant that was expected
	Offset int          // Byte offset where decoding stopped
	Err    error        // Underlying cause
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decoding %s payload at offset %d: %v",
		ErrMalformedResponse, e.Kind, e.Offset, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes every DecodeError match ErrMalformedResponse
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedResponse
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}
