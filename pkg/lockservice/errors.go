package lockservice

import "errors"

var (
	// ErrLockConflict is a non-retryable client error (equivocation): a
	// ref is already bound to a different transaction digest.
	ErrLockConflict = errors.New("lockservice: lock conflict")

	// ErrLockDoesNotExist is returned when a lock is read or acquired for
	// a ref that was never initialized. After expected initialization
	// this is an invariant violation; the caller decides which applies.
	ErrLockDoesNotExist = errors.New("lockservice: lock does not exist")
)
