// ABOUTME: OCR extraction from page images
// ABOUTME: Recognition calls are rate limited and guarded by a circuit breaker

package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/viant/afs"
	"golang.org/x/time/rate"
)

var (
	// ErrNoPageImage is returned by a PageImager that has no image for a page.
	ErrNoPageImage = errors.New("no page image")

	// ErrOCRNotEnabled is returned when OCR was not compiled in.
	ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")
)

// Recognizer turns one page image into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// PageImager supplies the rendered image of a page, numbered from 1.
type PageImager interface {
	PageImage(ctx context.Context, src Source, page int) ([]byte, error)
}

// SidecarImager reads page images rendered ahead of time next to the PDF:
// report.pdf has its pages at report/page-0001.png and so on.
type SidecarImager struct {
	FS afs.Service
}

// PageImage implements PageImager.
func (s SidecarImager) PageImage(ctx context.Context, src Source, page int) ([]byte, error) {
	dir := strings.TrimSuffix(src.URL, path.Ext(src.URL))
	URL := fmt.Sprintf("%s/page-%04d.png", dir, page)
	ok, err := s.FS.Exists(ctx, URL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoPageImage
	}
	return s.FS.DownloadWithURL(ctx, URL)
}

// GuardedRecognizer rate limits calls to an underlying recognizer and stops
// calling it for a while once most recent calls have failed.
type GuardedRecognizer struct {
	next    Recognizer
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuardedRecognizer wraps next, allowing perSecond calls per second.
func NewGuardedRecognizer(next Recognizer, perSecond float64, log zerolog.Logger) *GuardedRecognizer {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "OCR",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return &GuardedRecognizer{
		next:    next,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Recognize implements Recognizer. It returns gobreaker.ErrOpenState while
// the breaker is open.
func (g *GuardedRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Recognize(ctx, image)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// OCRExtractor recognizes the image of every page.
type OCRExtractor struct {
	Images     PageImager
	Recognizer Recognizer
}

// Name implements Extractor.
func (OCRExtractor) Name() string { return "ocr" }

// Extract implements Extractor. Pages without an image yield empty text.
func (o OCRExtractor) Extract(ctx context.Context, src Source) ([]string, error) {
	texts := make([]string, src.PageCount)
	for i := 1; i <= src.PageCount; i++ {
		img, err := o.Images.PageImage(ctx, src, i)
		if errors.Is(err, ErrNoPageImage) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("page %d image: %w", i, err)
		}
		text, err := o.Recognizer.Recognize(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		texts[i-1] = strings.TrimSpace(text)
	}
	return texts, nil
}
