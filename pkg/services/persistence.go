package services

import (
	"errors"

	"github.com/ekaya-inc/ekaya-quality/pkg/apperrors"
)

// asPersistenceError makes sure a failed write surfaces as a
// *apperrors.PersistenceError, keeping one that is already typed.
func asPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *apperrors.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return apperrors.NewPersistenceError(op, err)
}
