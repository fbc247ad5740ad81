package mongobee

import "errors"

var (
	// ErrLockNotAcquired indicates the changelog lock could not be obtained
	// within the configured wait policy and the runner was configured to
	// treat that as fatal.
	ErrLockNotAcquired = errors.New("changelog lock not acquired")

	// ErrInvalidChangeUnit indicates a change unit has a malformed identity
	// or action shape. Raised before the action executes; aborts the run.
	ErrInvalidChangeUnit = errors.New("invalid change unit")
)
