package sqlxrepos

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a postgres unique constraint
// violation, optionally on one of the given constraint names.
func isUniqueViolation(err error, constraints ...string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != uniqueViolation {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if pqErr.Constraint == c {
			return true
		}
	}
	return false
}

func newID() string {
	return uuid.New().String()
}

// isUUID guards lookups by primary key: a malformed ID can never match.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
