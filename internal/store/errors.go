package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates no conversation matches the (user, conversation) pair.
	// It is returned both for unknown ids and for conversations owned by another
	// user, so the two cases cannot be told apart.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidBranchPoint indicates a branch point outside [0, len(log)].
	ErrInvalidBranchPoint = errors.New("invalid branch point")

	// ErrInvalidMessage indicates a user message without a known msgtype.
	// Such a message could be written but never read back.
	ErrInvalidMessage = errors.New("invalid message")
)

// PersistenceError reports a unit of work that failed to read or commit.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persistence failure: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SerializationError reports a message that could not be converted to or from
// its stored representation.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization failure: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// classify maps a repository error onto the store's error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidBranchPoint) || errors.Is(err, ErrInvalidMessage) {
		return err
	}
	var serr *SerializationError
	if errors.As(err, &serr) {
		return err
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
