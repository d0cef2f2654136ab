// ABOUTME: Key layout for partitioned data sharing one tree
// ABOUTME: A 4-byte big-endian partition id followed by the partition-local key

package storage

import (
	"encoding/binary"
	"fmt"
)

// Partition separates independent key spaces inside one file.
type Partition uint32

// Key builds the full key for a partition-local key made of parts.
func (p Partition) Key(parts ...[]byte) []byte {
	size := 4
	for _, part := range parts {
		size += len(part)
	}
	out := make([]byte, 4, size)
	binary.BigEndian.PutUint32(out, uint32(p))
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

// StringKey is Key for a single string.
func (p Partition) StringKey(s string) []byte {
	return p.Key([]byte(s))
}

// Uint64Key encodes n so that keys sort numerically.
func (p Partition) Uint64Key(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return p.Key(buf[:])
}

// Prefix returns the key prefix shared by every key of the partition.
func (p Partition) Prefix() []byte {
	return p.Key()
}

// Local strips the partition id from a full key.
func (p Partition) Local(key []byte) ([]byte, error) {
	if len(key) < 4 {
		return nil, fmt.Errorf("key too short: %d bytes", len(key))
	}
	if got := Partition(binary.BigEndian.Uint32(key[:4])); got != p {
		return nil, fmt.Errorf("key belongs to partition %d, not %d", got, p)
	}
	return key[4:], nil
}

// DecodeUint64 reverses Uint64Key on a partition-local key.
func DecodeUint64(local []byte) (uint64, error) {
	if len(local) != 8 {
		return 0, fmt.Errorf("expected 8-byte integer key, got %d bytes", len(local))
	}
	return binary.BigEndian.Uint64(local), nil
}
