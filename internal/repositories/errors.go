package repositories

import (
	"errors"
	"regexp"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrInvalidID = errors.New("invalid document id")
	ErrDuplicate = errors.New("duplicate key")
)

// DuplicateError names the unique field that rejected a write.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return "duplicate value for " + e.Field
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

var indexNamePattern = regexp.MustCompile(`index: ([a-z_]+?)_1`)

// translateWriteError maps a Mongo duplicate-key failure to *DuplicateError.
func translateWriteError(err error) error {
	if err == nil || !mongo.IsDuplicateKeyError(err) {
		return err
	}
	field := "unknown"
	if m := indexNamePattern.FindStringSubmatch(err.Error()); len(m) == 2 {
		field = m[1]
	}
	return &DuplicateError{Field: field}
}
