package textstore

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nainya/pagefinder/pkg/storage"
)

func TestBlobChunking(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("hello")},
		{"compressible", bytes.Repeat([]byte("balance sheet "), 2000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks, err := encodeBlob(tc.data)
			if err != nil {
				t.Fatalf("encodeBlob failed: %v", err)
			}
			for i, c := range chunks {
				if len(c) > storage.MaxValueSize {
					t.Errorf("Chunk %d has %d bytes", i, len(c))
				}
			}
			got, err := decodeBlob(chunks[0], func(i int) ([]byte, bool) {
				if i >= len(chunks) {
					return nil, false
				}
				return chunks[i], true
			})
			if err != nil {
				t.Fatalf("decodeBlob failed: %v", err)
			}
			if !bytes.Equal(got, tc.data) {
				t.Errorf("Data mismatch: %d vs %d bytes", len(got), len(tc.data))
			}
		})
	}
}

func TestDecodeBlobCorrupt(t *testing.T) {
	none := func(int) ([]byte, bool) { return nil, false }

	if _, err := decodeBlob([]byte{1}, none); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt for short header, got %v", err)
	}
	if _, err := decodeBlob([]byte{9, 0, 1}, none); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt for unknown format, got %v", err)
	}
	if _, err := decodeBlob([]byte{formatRaw, 0, 2, 'x'}, none); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt for missing chunk, got %v", err)
	}

	format, payload, err := compress(bytes.Repeat([]byte("income statement "), 200))
	if err != nil || format != formatBrotli {
		t.Fatalf("Expected brotli payload, got format %d err %v", format, err)
	}
	truncated := append([]byte{formatBrotli, 0, 1}, payload[:len(payload)/2]...)
	if _, err := decodeBlob(truncated, none); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt for truncated brotli stream, got %v", err)
	}
}

func TestParsePageKey(t *testing.T) {
	prefix := pagePrefix(partDigital, "doc")
	cases := []struct {
		key   []byte
		page  int
		chunk int
		ok    bool
	}{
		{pageKey(partDigital, "doc", 7), 7, 0, true},
		{chunkKey(pageKey(partDigital, "doc", 12), 3), 12, 3, true},
		{partDigital.StringKey("doc_page_12"), 0, 0, false},
		{partDigital.StringKey("doc_page_0001_page_0001"), 0, 0, false},
		{partDigital.StringKey("doc_page_00x1"), 0, 0, false},
	}
	for _, tc := range cases {
		page, chunk, ok := parsePageKey(tc.key, prefix)
		if ok != tc.ok || page != tc.page || chunk != tc.chunk {
			t.Errorf("parsePageKey(%q) = %d,%d,%v; want %d,%d,%v", tc.key, page, chunk, ok, tc.page, tc.chunk, tc.ok)
		}
	}
	if PageKey("report", 3) != "report_page_0003" {
		t.Errorf("Unexpected key format %q", PageKey("report", 3))
	}
}
