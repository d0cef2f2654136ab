// ABOUTME: Text store holding document metadata and per-page digital/OCR text
// ABOUTME: All partitions live in one KV file; each document's pages commit atomically

package textstore

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nainya/pagefinder/pkg/storage"
	"github.com/rs/zerolog"
)

// Observer receives the outcome of every store operation.
type Observer interface {
	RecordStoreOperation(operation string, err error, duration time.Duration)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for operation traces.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithObserver reports operations to o, typically a metrics sink.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.obs = o }
}

// Store maps document ids to metadata and page text. It is safe for
// concurrent use; readers never observe a partially written document.
type Store struct {
	kv    *storage.KV
	owned bool
	log   zerolog.Logger
	obs   Observer
}

// New wraps an open KV.
func New(kv *storage.KV, opts ...Option) *Store {
	s := &Store{kv: kv, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens (or creates) a store file at path.
func Open(path string, opts ...Option) (*Store, error) {
	kv := &storage.KV{Path: path}
	if err := kv.Open(); err != nil {
		return nil, storageErr("open", path, err)
	}
	s := New(kv, opts...)
	s.owned = true
	return s, nil
}

// Close closes the underlying KV when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.kv.Close()
}

func (s *Store) observe(op string, start time.Time, n int, err error) {
	d := time.Since(start)
	if s.obs != nil {
		s.obs.RecordStoreOperation(op, err, d)
	}
	event := s.log.Debug()
	if err != nil {
		event = s.log.Error().Err(err)
	}
	event.
		Str("operation", op).
		Dur("duration_ms", d).
		Int("record_count", n).
		Msg("Store operation completed")
}

// PutDocumentMetadata upserts the flattened metadata record of docID.
// A new document is appended to the listing order; an overwrite keeps its
// position.
func (s *Store) PutDocumentMetadata(docID, filePath, fileName string, fields Fields) (err error) {
	start := time.Now()
	defer func() { s.observe("put_metadata", start, 1, err) }()

	if err := checkDocID(docID); err != nil {
		return storageErr("put_metadata", docID, err)
	}
	record, err := encodeRecord(filePath, fileName, fields)
	if err != nil {
		return storageErr("put_metadata", docID, fmt.Errorf("encode metadata: %w", err))
	}

	err = s.kv.Update(func(tx *storage.Tx) error {
		if err := s.ensureOrder(tx, docID); err != nil {
			return err
		}
		return writeBlob(tx, partDocs.StringKey(docID), record)
	})
	return storageErr("put_metadata", docID, err)
}

// PutDocument writes doc's metadata in the flattened layout.
func (s *Store) PutDocument(doc Document) error {
	return s.PutDocumentMetadata(doc.DocID, doc.FilePath, doc.FileName, docFields(doc))
}

// ensureOrder gives docID the next insertion sequence if it has none.
func (s *Store) ensureOrder(tx *storage.Tx, docID string) error {
	seqKey := partSeq.StringKey(docID)
	if _, ok := tx.Get(seqKey); ok {
		return nil
	}
	var next uint64 = 1
	if raw, ok := tx.Get(sysNextSeq); ok {
		if len(raw) != 8 {
			return corrupt("sequence counter has %d bytes", len(raw))
		}
		next = binary.BigEndian.Uint64(raw)
	}
	if err := tx.Set(partOrder.Uint64Key(next), []byte(docID)); err != nil {
		return err
	}
	if err := tx.Set(seqKey, binary.BigEndian.AppendUint64(nil, next)); err != nil {
		return err
	}
	return tx.Set(sysNextSeq, binary.BigEndian.AppendUint64(nil, next+1))
}

// PutPagesBatch replaces every stored page of docID with pages, where
// pages[i] is page i+1. The old pages and the new ones are swapped in one
// transaction.
func (s *Store) PutPagesBatch(docID string, pages []PageText) (err error) {
	start := time.Now()
	defer func() { s.observe("put_pages", start, len(pages), err) }()

	if err := checkDocID(docID); err != nil {
		return storageErr("put_pages", docID, err)
	}
	if len(pages) > MaxPages {
		return storageErr("put_pages", docID, fmt.Errorf("%w: %d pages exceeds %d", ErrInvalidPage, len(pages), MaxPages))
	}

	err = s.kv.Update(func(tx *storage.Tx) error {
		for _, part := range []storage.Partition{partDigital, partOCR} {
			if err := deletePages(tx, part, docID); err != nil {
				return err
			}
		}
		for i, p := range pages {
			if p.Digital != nil {
				if err := writeBlob(tx, pageKey(partDigital, docID, i+1), []byte(*p.Digital)); err != nil {
					return fmt.Errorf("page %d digital: %w", i+1, err)
				}
			}
			if p.OCR != nil {
				if err := writeBlob(tx, pageKey(partOCR, docID, i+1), []byte(*p.OCR)); err != nil {
					return fmt.Errorf("page %d ocr: %w", i+1, err)
				}
			}
		}
		return nil
	})
	return storageErr("put_pages", docID, err)
}

func deletePages(tx *storage.Tx, part storage.Partition, docID string) error {
	prefix := pagePrefix(part, docID)
	var keys [][]byte
	tx.ScanPrefix(prefix, func(key, _ []byte) bool {
		if _, _, ok := parsePageKey(key, prefix); ok {
			keys = append(keys, append([]byte(nil), key...))
		}
		return true
	})
	for _, key := range keys {
		if _, err := tx.Del(key); err != nil {
			return err
		}
	}
	return nil
}

// GetDocumentMetadata returns the normalized record of docID, or nil when
// the document is unknown.
func (s *Store) GetDocumentMetadata(docID string) (doc *Document, err error) {
	start := time.Now()
	defer func() { s.observe("get_metadata", start, 1, err) }()

	var data []byte
	var found bool
	err = s.kv.View(func(tx *storage.Tx) error {
		var err error
		data, found, err = readBlob(tx, partDocs.StringKey(docID))
		return err
	})
	if err != nil {
		return nil, storageErr("get_metadata", docID, err)
	}
	if !found {
		return nil, nil
	}
	doc, err = decodeDocument(docID, data)
	if err != nil {
		return nil, storageErr("get_metadata", docID, err)
	}
	return doc, nil
}

// GetPageText returns one variant of one page. ok is false when that
// variant was never stored.
func (s *Store) GetPageText(docID string, page int, variant Variant) (text string, ok bool, err error) {
	if page < 1 || page > MaxPages {
		return "", false, nil
	}
	key := pageKey(variantPartition(variant), docID, page)
	var data []byte
	err = s.kv.View(func(tx *storage.Tx) error {
		var err error
		data, ok, err = readBlob(tx, key)
		return err
	})
	if err != nil {
		return "", false, storageErr("get_page", PageKey(docID, page), err)
	}
	return string(data), ok, nil
}

type pagesOptions struct {
	combine bool
	prefer  Variant
}

// PagesOption configures GetDocumentPages.
type PagesOption func(*pagesOptions)

// WithCombine controls whether both variants of a page are merged. When
// false the preferred variant wins.
func WithCombine(combine bool) PagesOption {
	return func(o *pagesOptions) { o.combine = combine }
}

// WithPrefer picks the variant kept when pages are not combined.
func WithPrefer(v Variant) PagesOption {
	return func(o *pagesOptions) { o.prefer = v }
}

// GetDocumentPages returns the text of every stored page of docID keyed by
// page number. A page with both variants gets digital text followed by OCR
// text, unless the OCR text already appears in the digital text.
func (s *Store) GetDocumentPages(docID string, opts ...PagesOption) (pages map[int]string, err error) {
	start := time.Now()
	defer func() { s.observe("get_pages", start, len(pages), err) }()

	o := pagesOptions{combine: true, prefer: VariantDigital}
	for _, opt := range opts {
		opt(&o)
	}

	digital, ocr, err := s.documentVariants("get_pages", docID)
	if err != nil {
		return nil, err
	}
	pages = o.mergeAll(digital, ocr)
	return pages, nil
}

// mergeAll builds the page view over both variants.
func (o pagesOptions) mergeAll(digital, ocr map[int]string) map[int]string {
	pages := make(map[int]string, max(len(digital), len(ocr)))
	for n, d := range digital {
		if text, ok := ocr[n]; ok {
			pages[n] = o.merge(d, text)
		} else {
			pages[n] = d
		}
	}
	for n, text := range ocr {
		if _, ok := digital[n]; !ok {
			pages[n] = text
		}
	}
	return pages
}

func (o pagesOptions) merge(digital, ocr string) string {
	if !o.combine {
		if o.prefer == VariantOCR {
			return ocr
		}
		return digital
	}
	if strings.Contains(digital, ocr) {
		return digital
	}
	return digital + "\n" + ocr
}

// scanPages decodes every page of docID in one partition.
func scanPages(tx *storage.Tx, part storage.Partition, docID string) (map[int]string, error) {
	prefix := pagePrefix(part, docID)
	heads := make(map[int][]byte)
	chunks := make(map[int]map[int][]byte)
	tx.ScanPrefix(prefix, func(key, val []byte) bool {
		page, chunk, ok := parsePageKey(key, prefix)
		if !ok {
			return true
		}
		val = append([]byte(nil), val...)
		if chunk == 0 {
			heads[page] = val
			return true
		}
		if chunks[page] == nil {
			chunks[page] = make(map[int][]byte)
		}
		chunks[page][chunk] = val
		return true
	})

	out := make(map[int]string, len(heads))
	for page, head := range heads {
		data, err := decodeBlob(head, func(i int) ([]byte, bool) {
			c, ok := chunks[page][i]
			return c, ok
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", PageKey(docID, page), err)
		}
		out[page] = string(data)
	}
	return out, nil
}

// ListDocumentIDs returns every document id in the order documents were
// first stored.
func (s *Store) ListDocumentIDs() (ids []string, err error) {
	start := time.Now()
	defer func() { s.observe("list_documents", start, len(ids), err) }()

	err = s.kv.View(func(tx *storage.Tx) error {
		tx.ScanPrefix(partOrder.Prefix(), func(_, val []byte) bool {
			ids = append(ids, string(val))
			return true
		})
		return nil
	})
	if err != nil {
		return nil, storageErr("list_documents", "", err)
	}
	return ids, nil
}

// DeleteDocument removes docID's metadata, listing entry and pages. It
// reports whether the document existed.
func (s *Store) DeleteDocument(docID string) (existed bool, err error) {
	start := time.Now()
	defer func() { s.observe("delete_document", start, 1, err) }()

	err = s.kv.Update(func(tx *storage.Tx) error {
		seqKey := partSeq.StringKey(docID)
		if raw, ok := tx.Get(seqKey); ok {
			existed = true
			seq, err := storage.DecodeUint64(raw)
			if err != nil {
				return corrupt("sequence of %q: %v", docID, err)
			}
			if _, err := tx.Del(partOrder.Uint64Key(seq)); err != nil {
				return err
			}
			if _, err := tx.Del(seqKey); err != nil {
				return err
			}
		}
		docKey := partDocs.StringKey(docID)
		if _, ok := tx.Get(docKey); ok {
			existed = true
		}
		if err := deleteBlob(tx, docKey); err != nil {
			return err
		}
		for _, part := range []storage.Partition{partDigital, partOCR} {
			if err := deletePages(tx, part, docID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, storageErr("delete_document", docID, err)
	}
	return existed, nil
}

// Stats counts documents and stored page variants.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.kv.View(func(tx *storage.Tx) error {
		tx.ScanPrefix(partSeq.Prefix(), func(_, _ []byte) bool {
			st.Documents++
			return true
		})
		st.DigitalPages = countHeads(tx, partDigital)
		st.OCRPages = countHeads(tx, partOCR)
		return nil
	})
	if err != nil {
		return Stats{}, storageErr("stats", "", err)
	}
	kv := s.kv.Stats()
	st.KVPages = kv.Pages
	st.KVFreePages = kv.FreePages
	return st, nil
}

// countHeads counts page heads, skipping continuation chunks.
func countHeads(tx *storage.Tx, part storage.Partition) int {
	n := 0
	tx.ScanPrefix(part.Prefix(), func(key, _ []byte) bool {
		if len(key) < 7 || key[len(key)-3] != 0 {
			n++
		}
		return true
	})
	return n
}

// SortedPages returns the page numbers of pages in ascending order.
func SortedPages(pages map[int]string) []int {
	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}
