// ABOUTME: Error types for the text store
// ABOUTME: Absent data is never an error; corrupt or unreadable data is a StorageError

package textstore

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt marks a stored record that cannot be decoded.
	ErrCorrupt = errors.New("textstore: corrupt record")
	// ErrInvalidDocID rejects document ids that cannot form a key.
	ErrInvalidDocID = errors.New("textstore: invalid document id")
	// ErrInvalidPage rejects page numbers outside 1..MaxPages.
	ErrInvalidPage = errors.New("textstore: invalid page number")
)

// StorageError reports a failed store operation on one key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("textstore: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("textstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

func corrupt(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
