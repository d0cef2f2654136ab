//go:build ocr

// ABOUTME: Tesseract recognizer, compiled in with the ocr build tag
// ABOUTME: Requires the tesseract and leptonica libraries at build time

package ingest

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract recognizes text with a fresh gosseract client per image.
type Tesseract struct {
	Languages []string
}

// NewTesseract returns a recognizer for the given languages, English when
// none are given.
func NewTesseract(languages ...string) (*Tesseract, error) {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Tesseract{Languages: languages}, nil
}

// Recognize implements Recognizer.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := gosseract.NewClient()
	defer c.Close()

	if err := c.SetLanguage(t.Languages...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
