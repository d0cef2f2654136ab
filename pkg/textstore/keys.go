// ABOUTME: Key layout of the text store partitions
// ABOUTME: Page keys are "{doc}_page_{NNNN}" so a prefix scan yields a document's pages in order

package textstore

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nainya/pagefinder/pkg/storage"
)

const (
	partDocs    storage.Partition = 1000 // doc id -> metadata blob
	partDigital storage.Partition = 2000 // page key -> digital text blob
	partOCR     storage.Partition = 3000 // page key -> OCR text blob
	partOrder   storage.Partition = 4000 // insertion seq -> doc id
	partSeq     storage.Partition = 4001 // doc id -> insertion seq
	partSys     storage.Partition = 9000 // counters
)

const (
	// MaxPages is the largest page number the key scheme can hold.
	MaxPages = 9999
	// MaxDocIDLen leaves room in a key for the partition, page suffix and
	// chunk suffix.
	MaxDocIDLen = storage.MaxKeySize - 32

	pageInfix = "_page_"
)

var sysNextSeq = partSys.StringKey("next_seq")

func variantPartition(v Variant) storage.Partition {
	if v == VariantOCR {
		return partOCR
	}
	return partDigital
}

func checkDocID(docID string) error {
	if docID == "" || len(docID) > MaxDocIDLen {
		return fmt.Errorf("%w: %q", ErrInvalidDocID, docID)
	}
	return nil
}

// PageKey formats the partition-local key of a page.
func PageKey(docID string, page int) string {
	return fmt.Sprintf("%s%s%04d", docID, pageInfix, page)
}

func pageKey(part storage.Partition, docID string, page int) []byte {
	return part.StringKey(PageKey(docID, page))
}

func pagePrefix(part storage.Partition, docID string) []byte {
	return part.StringKey(docID + pageInfix)
}

// parsePageKey recognizes a head or chunk key of one of docID's pages.
// Keys of other documents sharing the prefix do not parse.
func parsePageKey(key, prefix []byte) (page, chunk int, ok bool) {
	if !bytes.HasPrefix(key, prefix) {
		return 0, 0, false
	}
	rest := key[len(prefix):]
	if len(rest) != 4 && len(rest) != 7 {
		return 0, 0, false
	}
	for _, c := range rest[:4] {
		if c < '0' || c > '9' {
			return 0, 0, false
		}
		page = page*10 + int(c-'0')
	}
	if len(rest) == 7 {
		if rest[4] != 0 {
			return 0, 0, false
		}
		chunk = int(binary.BigEndian.Uint16(rest[5:]))
	}
	return page, chunk, true
}
