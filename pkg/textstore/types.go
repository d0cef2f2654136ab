// ABOUTME: Data model for stored documents and page text
// ABOUTME: Documents carry flattened metadata; pages carry digital and OCR variants

package textstore

import "time"

// Variant selects which extracted text of a page to read.
type Variant int

const (
	VariantDigital Variant = iota
	VariantOCR
)

func (v Variant) String() string {
	switch v {
	case VariantDigital:
		return "digital"
	case VariantOCR:
		return "ocr"
	default:
		return "unknown"
	}
}

// ParseVariant maps "digital" or "ocr" to a Variant.
func ParseVariant(s string) (Variant, bool) {
	switch s {
	case "digital":
		return VariantDigital, true
	case "ocr":
		return VariantOCR, true
	}
	return 0, false
}

// Fields is a flattened metadata record.
type Fields map[string]interface{}

// Document is the normalized metadata of one source file.
type Document struct {
	DocID          string
	FilePath       string
	FileName       string
	PageCount      int
	FileSize       int64
	ContentHash    string
	LastModified   time.Time
	ProcessingDate time.Time
	Extra          Fields // any other stored field
}

// PageText holds the extracted text of one page. A nil variant is not
// stored.
type PageText struct {
	Digital *string
	OCR     *string
}

// Text returns a pointer to s, for building PageText literals.
func Text(s string) *string {
	return &s
}

// Stats summarizes store contents.
type Stats struct {
	Documents    int
	DigitalPages int
	OCRPages     int
	KVPages      uint64
	KVFreePages  int
}
