// ABOUTME: Metadata layout normalization
// ABOUTME: Reads accept nested and flattened records; writes always flatten

package textstore

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	fieldFilePath       = "file_path"
	fieldFileName       = "file_name"
	fieldPageCount      = "page_count"
	fieldFileSize       = "file_size_bytes"
	fieldContentHash    = "content_hash"
	fieldLastModified   = "last_modified"
	fieldProcessingDate = "processing_date"

	legacyNested   = "metadata"
	legacyDateTime = "2006-01-02 15:04:05"
)

// aliases maps older field names to the current ones.
var aliases = map[string]string{
	"file_hash": fieldContentHash,
	"file_size": fieldFileSize,
	"num_pages": fieldPageCount,
}

// flatten merges a nested "metadata" object into the top level and renames
// aliased fields. Top-level values win over nested ones.
func flatten(raw Fields) Fields {
	out := make(Fields, len(raw))
	if nested, ok := raw[legacyNested].(map[string]interface{}); ok {
		for k, v := range nested {
			out[k] = v
		}
	}
	for k, v := range raw {
		if k == legacyNested {
			if _, ok := v.(map[string]interface{}); ok {
				continue
			}
		}
		out[k] = v
	}
	for old, cur := range aliases {
		v, ok := out[old]
		if !ok {
			continue
		}
		delete(out, old)
		if _, exists := out[cur]; !exists {
			out[cur] = v
		}
	}
	return out
}

// decodeDocument parses a stored record in either layout.
func decodeDocument(docID string, data []byte) (*Document, error) {
	var raw Fields
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, corrupt("metadata json: %v", err)
	}
	if raw == nil {
		return nil, corrupt("metadata is not an object")
	}
	flat := flatten(raw)

	doc := &Document{DocID: docID, Extra: Fields{}}
	var err error
	for k, v := range flat {
		switch k {
		case fieldFilePath:
			doc.FilePath, err = asString(k, v)
		case fieldFileName:
			doc.FileName, err = asString(k, v)
		case fieldContentHash:
			doc.ContentHash, err = asString(k, v)
		case fieldPageCount:
			var n int64
			n, err = asInt(k, v)
			doc.PageCount = int(n)
		case fieldFileSize:
			doc.FileSize, err = asInt(k, v)
		case fieldLastModified:
			doc.LastModified, err = asTime(k, v)
		case fieldProcessingDate:
			doc.ProcessingDate, err = asTime(k, v)
		default:
			doc.Extra[k] = v
		}
		if err != nil {
			return nil, err
		}
	}
	if doc.PageCount < 0 {
		return nil, corrupt("negative page_count %d", doc.PageCount)
	}
	return doc, nil
}

// Fields returns the flattened record as written to the store.
func (d *Document) Fields() Fields {
	out := make(Fields, len(d.Extra)+7)
	for k, v := range d.Extra {
		out[k] = v
	}
	out[fieldFilePath] = d.FilePath
	out[fieldFileName] = d.FileName
	out[fieldPageCount] = d.PageCount
	out[fieldFileSize] = d.FileSize
	out[fieldContentHash] = d.ContentHash
	if !d.LastModified.IsZero() {
		out[fieldLastModified] = d.LastModified.UTC().Format(time.RFC3339Nano)
	}
	if !d.ProcessingDate.IsZero() {
		out[fieldProcessingDate] = d.ProcessingDate.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// encodeRecord builds the flattened JSON written for a document.
func encodeRecord(filePath, fileName string, fields Fields) ([]byte, error) {
	flat := flatten(fields)
	for k, v := range flat {
		if t, ok := v.(time.Time); ok {
			flat[k] = t.UTC().Format(time.RFC3339Nano)
		}
	}
	flat[fieldFilePath] = filePath
	flat[fieldFileName] = fileName
	return json.Marshal(flat)
}

func asString(field string, v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case nil:
		return "", nil
	default:
		return "", corrupt("%s: expected string, got %T", field, v)
	}
}

func asInt(field string, v interface{}) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, corrupt("%s: expected integer, got %v", field, n)
		}
		return int64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, corrupt("%s: expected number, got %T", field, v)
	}
}

// asTime accepts unix seconds, RFC3339 or the older "YYYY-MM-DD HH:MM:SS".
func asTime(field string, v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed, nil
		}
		if parsed, err := time.Parse(legacyDateTime, t); err == nil {
			return parsed, nil
		}
		return time.Time{}, corrupt("%s: unrecognized time %q", field, t)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, corrupt("%s: expected time, got %T", field, v)
	}
}

func docFields(doc Document) Fields {
	f := doc.Fields()
	delete(f, fieldFilePath)
	delete(f, fieldFileName)
	return f
}

func (d *Document) String() string {
	return fmt.Sprintf("%s (%s, %d pages)", d.DocID, d.FileName, d.PageCount)
}
