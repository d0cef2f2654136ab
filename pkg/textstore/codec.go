// ABOUTME: Blob codec for values larger than one tree cell
// ABOUTME: Values are brotli-compressed when that helps, then split into chunks

package textstore

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/nainya/pagefinder/pkg/storage"
)

const (
	formatRaw    byte = 1
	formatBrotli byte = 2

	// head chunk layout: [format][chunk count uint16][payload]
	blobHeader = 3
	maxChunks  = 1<<16 - 1
)

// compress returns the brotli form of data, or data itself when brotli
// does not make it smaller.
func compress(data []byte) (byte, []byte, error) {
	if len(data) < 64 {
		return formatRaw, data, nil
	}
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		return 0, nil, err
	}
	if err := w.Close(); err != nil {
		return 0, nil, err
	}
	if buf.Len() >= len(data) {
		return formatRaw, data, nil
	}
	return formatBrotli, buf.Bytes(), nil
}

func decompress(format byte, payload []byte) ([]byte, error) {
	switch format {
	case formatRaw:
		return payload, nil
	case formatBrotli:
		out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, corrupt("brotli: %v", err)
		}
		return out, nil
	default:
		return nil, corrupt("unknown value format %d", format)
	}
}

// encodeBlob splits data into tree-sized chunks. The first chunk carries
// the header.
func encodeBlob(data []byte) ([][]byte, error) {
	format, payload, err := compress(data)
	if err != nil {
		return nil, err
	}

	first := storage.MaxValueSize - blobHeader
	n := 1
	if len(payload) > first {
		n += (len(payload) - first + storage.MaxValueSize - 1) / storage.MaxValueSize
	}
	if n > maxChunks {
		return nil, storage.ErrValueTooLarge
	}

	head := make([]byte, blobHeader, blobHeader+min(first, len(payload)))
	head[0] = format
	binary.BigEndian.PutUint16(head[1:], uint16(n))
	head = append(head, payload[:min(first, len(payload))]...)

	chunks := [][]byte{head}
	for rest := payload[min(first, len(payload)):]; len(rest) > 0; {
		size := min(storage.MaxValueSize, len(rest))
		chunks = append(chunks, rest[:size])
		rest = rest[size:]
	}
	return chunks, nil
}

// decodeBlob reassembles a value from its head and the continuation chunks
// returned by next (called with 1..count-1).
func decodeBlob(head []byte, next func(i int) ([]byte, bool)) ([]byte, error) {
	if len(head) < blobHeader {
		return nil, corrupt("value header truncated (%d bytes)", len(head))
	}
	format := head[0]
	n := int(binary.BigEndian.Uint16(head[1:blobHeader]))
	if n < 1 {
		return nil, corrupt("value has zero chunks")
	}

	payload := append([]byte(nil), head[blobHeader:]...)
	for i := 1; i < n; i++ {
		chunk, ok := next(i)
		if !ok {
			return nil, corrupt("missing chunk %d of %d", i, n)
		}
		payload = append(payload, chunk...)
	}
	return decompress(format, payload)
}

// chunkKey is the key of continuation chunk i of key. The zero byte keeps
// chunks directly after their head in key order.
func chunkKey(key []byte, i int) []byte {
	out := make([]byte, len(key), len(key)+3)
	copy(out, key)
	out = append(out, 0)
	return binary.BigEndian.AppendUint16(out, uint16(i))
}

func isChunkOf(key, head []byte) bool {
	return len(key) == len(head)+3 && bytes.HasPrefix(key, head) && key[len(head)] == 0
}

func writeBlob(tx *storage.Tx, key, data []byte) error {
	if err := deleteBlob(tx, key); err != nil {
		return err
	}
	chunks, err := encodeBlob(data)
	if err != nil {
		return err
	}
	if err := tx.Set(key, chunks[0]); err != nil {
		return err
	}
	for i := 1; i < len(chunks); i++ {
		if err := tx.Set(chunkKey(key, i), chunks[i]); err != nil {
			return err
		}
	}
	return nil
}

func readBlob(tx *storage.Tx, key []byte) ([]byte, bool, error) {
	head, ok := tx.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, err := decodeBlob(head, func(i int) ([]byte, bool) {
		return tx.Get(chunkKey(key, i))
	})
	if err != nil {
		return nil, true, err
	}
	return data, true, nil
}

// deleteBlob removes key and every continuation chunk stored after it.
func deleteBlob(tx *storage.Tx, key []byte) error {
	if _, err := tx.Del(key); err != nil {
		return err
	}
	var chunks [][]byte
	tx.ScanPrefix(append(append([]byte(nil), key...), 0), func(k, _ []byte) bool {
		if isChunkOf(k, key) {
			chunks = append(chunks, append([]byte(nil), k...))
		}
		return true
	})
	for _, k := range chunks {
		if _, err := tx.Del(k); err != nil {
			return err
		}
	}
	return nil
}
