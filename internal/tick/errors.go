package tick

import (
	"errors"
	"fmt"
)

// ErrOptimisticLockConflict means another advancer committed between this
// call's read of the world clock and its conditional update. The unit's
// transaction was rolled back; the caller may retry with backoff.
var ErrOptimisticLockConflict = errors.New("tick: world clock lock version changed during advance")

// VersionConflictError means the caller supplied a stale
// expectedLockVersion. Nothing was mutated and the call is not retried.
type VersionConflictError struct {
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("tick: expected lock version %d, world clock is at %d", e.Expected, e.Actual)
}
