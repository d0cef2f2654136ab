// ABOUTME: Error values returned by B+Tree mutations
// ABOUTME: Size limits are checked before any page is touched

package btree

import "errors"

var (
	// ErrEmptyKey is returned for a zero-length key; the empty key is reserved
	// as the leftmost sentinel.
	ErrEmptyKey = errors.New("btree: empty key")

	// ErrKeyTooLarge is returned when a key exceeds MaxKeySize.
	ErrKeyTooLarge = errors.New("btree: key too large")

	// ErrValueTooLarge is returned when a value exceeds MaxValSize.
	ErrValueTooLarge = errors.New("btree: value too large")
)

func checkLimits(key, val []byte) error {
	switch {
	case len(key) == 0:
		return ErrEmptyKey
	case len(key) > MaxKeySize:
		return ErrKeyTooLarge
	case len(val) > MaxValSize:
		return ErrValueTooLarge
	}
	return nil
}
