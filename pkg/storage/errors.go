// ABOUTME: Error values for the KV store
// ABOUTME: Size limit errors are re-exported from the tree

package storage

import (
	"errors"

	"github.com/nainya/pagefinder/pkg/btree"
)

var (
	ErrClosed       = errors.New("storage: database closed")
	ErrReadOnly     = errors.New("storage: write in read-only transaction")
	ErrTxDone       = errors.New("storage: transaction already finished")
	ErrBadSignature = errors.New("storage: invalid database signature")

	ErrKeyTooLarge   = btree.ErrKeyTooLarge
	ErrValueTooLarge = btree.ErrValueTooLarge
	ErrEmptyKey      = btree.ErrEmptyKey
)

const (
	// MaxKeySize is the largest key the store accepts.
	MaxKeySize = btree.MaxKeySize
	// MaxValueSize is the largest value a single key can hold.
	MaxValueSize = btree.MaxValSize
)
