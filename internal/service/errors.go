package service

import (
	"errors"

	"tasklink.app/bridge/internal/github"
	"tasklink.app/bridge/internal/lock"
	"tasklink.app/bridge/internal/tracker"
)

var (
	// ErrValidation marks malformed payloads. Terminal: retrying a malformed
	// payload can never succeed, so it is acknowledged without retry.
	ErrValidation = errors.New("malformed payload")

	// ErrUnknownEvent marks event types with no registered handler. Terminal,
	// logged and acknowledged.
	ErrUnknownEvent = errors.New("event type not implemented")

	// ErrUnknownAction marks payload actions outside the handler's known
	// vocabulary. Terminal for the same reason as ErrValidation.
	ErrUnknownAction = errors.New("action not recognized")
)

// Retryable classifies an error for retry-queue eligibility. Lock contention
// and transient remote failures are retryable; everything else is terminal.
func Retryable(err error) bool {
	return errors.Is(err, lock.ErrContended) ||
		errors.Is(err, github.ErrUnavailable) ||
		errors.Is(err, tracker.ErrUnavailable)
}
