package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// PersistenceError reports a failed store operation whose effects were rolled back.
// Err may join several causes, one per failed item.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError joins errs into a PersistenceError for op.
// Returns nil when every err is nil.
func NewPersistenceError(op string, errs ...error) error {
	joined := errors.Join(errs...)
	if joined == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: joined}
}
