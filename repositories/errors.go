package repositories

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrIntegrity = errors.New("integrity violation")
	ErrInvalid   = errors.New("invalid input")
)

// notFound turns the driver's no-documents error into ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errors.Wrap(ErrNotFound, what)
	}
	return errors.Wrapf(err, "find %s", what)
}

// conflict turns a unique index violation into ErrConflict.
func conflict(err error, msg string) error {
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrap(ErrConflict, msg)
	}
	return err
}
