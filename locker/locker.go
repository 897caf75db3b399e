// Package locker serializes token refreshes. A Locker hands out per-key
// mutual exclusion with a bounded wait so a stuck holder cannot park every
// caller forever.
package locker

import (
	"context"
	"errors"
)

// ErrLockBusy is returned when the wait bound elapses before the lock frees.
// Callers should treat it as retryable.
var ErrLockBusy = errors.New("lock busy")

// ReleaseFunc frees a held lock. Implementations are safe to call more than
// once; only the first call releases.
type ReleaseFunc func()

type Locker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}
