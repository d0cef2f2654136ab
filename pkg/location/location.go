// Package location turns user-supplied paths into afs URLs.
package location

import (
	"fmt"
	"path/filepath"

	"github.com/viant/afs/url"
)

// Normalize resolves a relative OS path to an absolute one and converts a
// scheme-less absolute path to a file:// URL. URLs with a scheme pass
// through.
func Normalize(location string) (string, error) {
	norm := location
	if url.Scheme(norm, "") == "" && url.IsRelative(norm) {
		abs, err := filepath.Abs(norm)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path for %s: %w", location, err)
		}
		norm = abs
	}
	if url.Scheme(norm, "") == "" && !url.IsRelative(norm) {
		norm = url.ToFileURL(norm)
	}
	return norm, nil
}
