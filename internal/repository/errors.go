package repository

import "errors"

var (
	// ErrMissingKey is returned when a point operation targets a
	// (resourceID, endpoint) pair that does not exist.
	ErrMissingKey = errors.New("repository: missing key")
	// ErrDuplicateKey is returned by StoreResource when the given endpoint
	// already claims the resource; it signals "no-op, already present"
	// rather than a failure, distinguished from other errors via errors.Is.
	ErrDuplicateKey = errors.New("repository: duplicate key")
)
