package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidSide is returned when a node side is neither left nor right.
	ErrInvalidSide = errors.New("invalid node side")

	// ErrInvalidDepth is returned when a node's depth does not match its parent.
	ErrInvalidDepth = errors.New("invalid node depth")

	// ErrInvalidTaskStatus is returned when an image task status is not valid.
	ErrInvalidTaskStatus = errors.New("invalid image task status")

	// ErrInvalidJobStatus is returned when a job status is not valid.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrInvalidStatusTransition is returned when a status change violates the
	// task or job state machine.
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)
