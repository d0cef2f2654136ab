//go:build !ocr

// ABOUTME: Recognizer stub used when the ocr build tag is not set
// ABOUTME: Rebuild with -tags ocr to recognize text with Tesseract

package ingest

import "context"

// Tesseract is a stub that fails every call.
type Tesseract struct {
	Languages []string
}

// NewTesseract returns ErrOCRNotEnabled.
func NewTesseract(languages ...string) (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

// Recognize returns ErrOCRNotEnabled.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	return "", ErrOCRNotEnabled
}
