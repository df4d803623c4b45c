package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrNotOwner is returned when a job exists but belongs to another user
	ErrNotOwner = errors.New("job belongs to another user")

	// ErrStaleTransition is returned when a status-guarded update matched no
	// row: the job was cancelled, rescued, or claimed by another consumer
	ErrStaleTransition = errors.New("job no longer in expected status")

	// ErrJobTerminal is returned when an operation targets a job that has
	// already reached completed or cancelled
	ErrJobTerminal = errors.New("job already in terminal status")
)

// ExtractionError means the source document could not be parsed or holds no
// extractable text. Terminal for the job.
type ExtractionError struct{ Reason string }

func (e *ExtractionError) Error() string { return "extraction failed: " + e.Reason }

// ModelResponseError means a language-model call failed, timed out, or
// returned unusable content. Terminal, never retried automatically.
type ModelResponseError struct{ Err error }

func (e *ModelResponseError) Error() string { return "model response error: " + e.Err.Error() }
func (e *ModelResponseError) Unwrap() error { return e.Err }

// SynthesisError means text-to-speech produced no audio at all.
type SynthesisError struct{ Reason string }

func (e *SynthesisError) Error() string { return "speech synthesis failed: " + e.Reason }

// AssemblyError means the audio concatenation step failed.
type AssemblyError struct{ Err error }

func (e *AssemblyError) Error() string { return "audio assembly failed: " + e.Err.Error() }
func (e *AssemblyError) Unwrap() error { return e.Err }

// PayloadTooLargeError means the assembled audio exceeds the upload ceiling.
// Deliberate policy, checked before attempting the upload.
type PayloadTooLargeError struct {
	SizeBytes int
	MaxBytes  int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("assembled audio is %d bytes, exceeds the %d byte upload ceiling",
		e.SizeBytes, e.MaxBytes)
}

// TriggerError means the current stage finished and persisted its result but
// could not hand off to the next stage. The job is marked failed because no
// further progress will happen on its own.
type TriggerError struct{ Err error }

func (e *TriggerError) Error() string { return "failed to trigger next stage: " + e.Err.Error() }
func (e *TriggerError) Unwrap() error { return e.Err }

// RetryableError wraps transient infrastructure errors that should trigger a
// queue redelivery rather than a job failure
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return "retryable error: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
