package tracking

import (
	"errors"
	"fmt"
)

var (
	ErrEntityNotFound = errors.New("entity not tracked")
	errStalePointer   = errors.New("pointer moved")
)

// StoreReadError is returned by Load. The registry is left empty but usable.
type StoreReadError struct{ Err error }

func (e *StoreReadError) Error() string { return fmt.Sprintf("tracking store read: %v", e.Err) }
func (e *StoreReadError) Unwrap() error { return e.Err }

// StoreWriteError is returned by Save. The previously persisted snapshot is intact.
type StoreWriteError struct{ Err error }

func (e *StoreWriteError) Error() string { return fmt.Sprintf("tracking store write: %v", e.Err) }
func (e *StoreWriteError) Unwrap() error { return e.Err }
