package records

import "errors"

var (
	// ErrRecordNotFound is returned when a record ID does not exist in the
	// collection or has been soft-deleted.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidCollection is returned for a collection name outside Collections.
	ErrInvalidCollection = errors.New("invalid collection")

	// ErrInvalidBody is returned when a record body is not a JSON object
	// or exceeds MaxBodySize.
	ErrInvalidBody = errors.New("record body must be a JSON object")

	// ErrMissingOwner is returned when a record is created without an owner.
	ErrMissingOwner = errors.New("record owner is required")
)
