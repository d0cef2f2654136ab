// ABOUTME: Journal record format
// ABOUTME: Fixed header, key, value, trailing CRC32 over everything before it

package journal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

// Op is the kind of change a record describes.
type Op byte

const (
	// OpPut sets Key to Value.
	OpPut Op = 1
	// OpDelete removes Key.
	OpDelete Op = 2
)

// headerSize covers Seq(8) + Op(1) + Reserved(3) + KeyLen(4) + ValLen(4) + UnixNano(8).
const headerSize = 28

// Record is a single journal entry.
type Record struct {
	Seq   uint64
	Op    Op
	Key   []byte
	Value []byte
	Time  time.Time
}

// encode lays the record out as [header][key][value][crc32].
func (r *Record) encode() []byte {
	buf := make([]byte, r.size())
	binary.LittleEndian.PutUint64(buf[0:8], r.Seq)
	buf[8] = byte(r.Op)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(r.Key)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(r.Value)))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(r.Time.UnixNano()))

	off := headerSize
	off += copy(buf[off:], r.Key)
	off += copy(buf[off:], r.Value)
	binary.LittleEndian.PutUint32(buf[off:], crc32.ChecksumIEEE(buf[:off]))
	return buf
}

func (r *Record) size() int {
	return headerSize + len(r.Key) + len(r.Value) + 4
}

// bodyLen returns the number of bytes following a header.
func bodyLen(header []byte) int {
	keyLen := binary.LittleEndian.Uint32(header[12:16])
	valLen := binary.LittleEndian.Uint32(header[16:20])
	return int(keyLen) + int(valLen) + 4
}

func decodeRecord(data []byte) (*Record, error) {
	if len(data) < headerSize+4 {
		return nil, ErrTruncated
	}
	if len(data) < headerSize+bodyLen(data[:headerSize]) {
		return nil, ErrTruncated
	}
	n := len(data)
	if binary.LittleEndian.Uint32(data[n-4:]) != crc32.ChecksumIEEE(data[:n-4]) {
		return nil, ErrCorrupted
	}

	keyLen := int(binary.LittleEndian.Uint32(data[12:16]))
	valLen := int(binary.LittleEndian.Uint32(data[16:20]))
	rec := &Record{
		Seq:  binary.LittleEndian.Uint64(data[0:8]),
		Op:   Op(data[8]),
		Time: time.Unix(0, int64(binary.LittleEndian.Uint64(data[20:28]))),
	}
	if rec.Op != OpPut && rec.Op != OpDelete {
		return nil, fmt.Errorf("%w: unknown op %d", ErrCorrupted, rec.Op)
	}
	off := headerSize
	rec.Key = append([]byte(nil), data[off:off+keyLen]...)
	off += keyLen
	if valLen > 0 {
		rec.Value = append([]byte(nil), data[off:off+valLen]...)
	}
	return rec, nil
}

func (r *Record) String() string {
	op := "UNKNOWN"
	switch r.Op {
	case OpPut:
		op = "PUT"
	case OpDelete:
		op = "DELETE"
	}
	return fmt.Sprintf("journal[seq=%d op=%s key=%q vlen=%d]", r.Seq, op, r.Key, len(r.Value))
}
