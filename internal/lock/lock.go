package lock

import (
	"context"
	"errors"
)

// ErrNotObtained is returned when a lock could not be acquired before the
// wait budget or the context ran out.
var ErrNotObtained = errors.New("lock not obtained")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func(ctx context.Context) error

// Locker provides mutual exclusion keyed by an arbitrary string.
//
// Implementations take a wait budget at construction. A positive wait keeps
// retrying a held key until the budget or ctx runs out. A zero wait makes a
// single attempt and fails with ErrNotObtained at once if the key is held.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}
