// ABOUTME: Per-page text extraction from PDF documents
// ABOUTME: The digital extractor reads the embedded text layer with ledongthuc/pdf

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned for data that cannot be parsed as a PDF.
var ErrNotPDF = errors.New("not a readable PDF")

// Source is one file handed to an extractor.
type Source struct {
	// URL is the afs location of the file.
	URL string
	// Name is the file's base name.
	Name string
	// Data is the whole file.
	Data []byte
	// PageCount is the number of pages in the PDF.
	PageCount int
}

// Extractor produces one text per page of a source. The result may be
// shorter than PageCount; missing pages count as empty.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, src Source) ([]string, error)
}

func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("%w: %v", ErrNotPDF, p)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	return r, nil
}

// CountPages returns the number of pages in a PDF.
func CountPages(data []byte) (n int, err error) {
	r, err := openPDF(data)
	if err != nil {
		return 0, err
	}
	defer func() {
		if p := recover(); p != nil {
			n, err = 0, fmt.Errorf("%w: %v", ErrNotPDF, p)
		}
	}()
	return r.NumPage(), nil
}

// DigitalExtractor reads the text layer of each page.
type DigitalExtractor struct{}

// Name implements Extractor.
func (DigitalExtractor) Name() string { return "digital" }

// Extract implements Extractor. A page whose content stream cannot be
// interpreted yields empty text rather than failing the document.
func (DigitalExtractor) Extract(ctx context.Context, src Source) (texts []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			texts, err = nil, fmt.Errorf("%w: %v", ErrNotPDF, p)
		}
	}()
	r, err := openPDF(src.Data)
	if err != nil {
		return nil, err
	}
	n := src.PageCount
	if n <= 0 {
		if n, err = CountPages(src.Data); err != nil {
			return nil, err
		}
	}

	texts = make([]string, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		texts[i-1] = strings.TrimSpace(text)
	}
	return texts, nil
}
