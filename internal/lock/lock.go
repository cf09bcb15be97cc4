// Package lock provides lease-based mutual exclusion keyed by
// (entity id, sort key). A lock is held for the lifetime of one
// event-processing attempt and is never extended mid-flight; re-acquisition
// on retry is the only renewal path.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrContended is returned when a lease could not be acquired within the
// acquire timeout. Callers treat it as retryable and must not process
// partially.
var ErrContended = errors.New("lock contended")

// Locker grants lease-based exclusive claims. Two different keys never
// contend; the same key always contends.
type Locker interface {
	// Acquire blocks (with bounded retry) until the lease is granted or the
	// acquire timeout elapses, in which case it returns ErrContended.
	Acquire(ctx context.Context, key, sortKey string, lease time.Duration) (Guard, error)
}

// Guard is a held lease. Release is safe to defer and safe to call after the
// lease has already expired.
type Guard interface {
	Release(ctx context.Context) error
}
