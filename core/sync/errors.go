package sync

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrRunNotFound     = errors.New("sync run not found")
	ErrMappingNotFound = errors.New("sync mapping not found")
	ErrMappingExists   = errors.New("a sync mapping for this entity already exists")
)

// TransitionError reports a run status transition that violates
// pending -> running -> terminal. It indicates a connector bug, not bad data.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid sync run transition: %s -> %s", e.From, e.To)
}

// FatalError marks a run-level failure: the batch itself cannot proceed
// (authentication failure, malformed bundle, network exhaustion). Anything not
// wrapped in FatalError is a per-record condition that must stay inside the
// batch loop.
type FatalError struct {
	Err error
}

// Fatal wraps err as a run-level failure.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Fatalf wraps a formatted message as a run-level failure.
func Fatalf(format string, args ...interface{}) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err is (or wraps) a run-level failure.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := errors.Cause(err).(*FatalError); ok {
		return true
	}
	var fe *FatalError
	return errors.As(err, &fe)
}
