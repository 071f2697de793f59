package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert violates a unique constraint.
var ErrAlreadyExists = errors.New("already exists")

// ErrValueTooLong is returned when a value exceeds its column's length.
var ErrValueTooLong = errors.New("value too long")

const (
	uniqueViolation      = "23505"
	stringDataRightTrunc = "22001"
)

func isUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolation)
}

func isValueTooLong(err error) bool {
	return hasCode(err, stringDataRightTrunc)
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}
