// Package asr provides the gateway to the automatic speech recognition
// provider. It classifies provider outcomes as transient or permanent,
// enforces a global concurrency cap, and ships two providers: an in-process
// simulator and an HTTP client for an external ASR service.
package asr

import (
	"context"
	"errors"
	"fmt"
)

// Transcriber turns one audio chunk path into a transcript. Errors are
// classified with IsPermanent / IsTransient.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// PermanentError marks an outcome that will never succeed on retry, such as
// unprocessable audio.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("asr: %s: %v", e.Reason, e.Err)
	}
	return "asr: " + e.Reason
}

func (e *PermanentError) Unwrap() error { return e.Err }

// TransientError marks retryable infrastructure trouble: timeouts, 5xx
// responses, throttling.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("asr: %s: %v", e.Reason, e.Err)
	}
	return "asr: " + e.Reason
}

func (e *TransientError) Unwrap() error { return e.Err }

// NewPermanent wraps err as a permanent failure.
func NewPermanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// NewTransient wraps err as a transient failure.
func NewTransient(reason string, err error) error {
	return &TransientError{Reason: reason, Err: err}
}

// IsPermanent reports whether err carries a do-not-retry signal.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err is worth retrying. Any failure without a
// permanent classification counts as transient.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
