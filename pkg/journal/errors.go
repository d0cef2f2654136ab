// Package journal implements a CRC-checked append-only record log used to
// persist small pieces of process state, such as ingestion progress, that
// must survive a crash between writes.
package journal

import "errors"

var (
	// ErrCorrupted indicates a record whose checksum does not match.
	ErrCorrupted = errors.New("journal: corrupted record")

	// ErrTruncated indicates a record cut short, usually by a torn write.
	ErrTruncated = errors.New("journal: truncated record")

	// ErrClosed indicates an operation on a closed journal.
	ErrClosed = errors.New("journal: closed")
)
