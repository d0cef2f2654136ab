// ABOUTME: Loading table definitions from JSON configuration
// ABOUTME: Reads through afs so definitions may live on any supported storage

package tables

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nainya/pagefinder/pkg/location"
	"github.com/viant/afs"
)

type definitionsFile struct {
	Tables []tableConfig `json:"tables"`
}

type tableConfig struct {
	Name          string          `json:"name"`
	MatchStrategy string          `json:"match_strategy"`
	MinElements   *int            `json:"min_elements"`
	MinPercentage *float64        `json:"min_percentage"`
	MinScore      *float64        `json:"min_score"`
	Description   string          `json:"description"`
	TextElements  []elementConfig `json:"text_elements"`
}

type elementConfig struct {
	SearchText   string   `json:"search_text"`
	MatchCase    bool     `json:"match_case"`
	MaxErrors    *int     `json:"max_errors"`
	MaxErrorRate *float64 `json:"max_error_rate"`
	Weight       *float64 `json:"weight"`
	Description  string   `json:"description"`
}

// ParseDefinitions builds definitions from a {"tables": [...]} document.
// Unset thresholds take the package defaults; an element that gives
// neither error bound gets DefaultMaxErrors and DefaultMaxErrorRate.
func ParseDefinitions(data []byte) ([]*TableDefinition, error) {
	var file definitionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{Field: "tables", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	defs := make([]*TableDefinition, 0, len(file.Tables))
	seen := make(map[string]bool, len(file.Tables))
	for i, tc := range file.Tables {
		if seen[tc.Name] {
			return nil, &ConfigError{Table: tc.Name, Field: fmt.Sprintf("tables[%d].name", i), Reason: "duplicate table name"}
		}
		seen[tc.Name] = true

		def, err := tc.build()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (tc tableConfig) build() (*TableDefinition, error) {
	strategy := DefaultStrategy
	if tc.MatchStrategy != "" {
		st, ok := ParseStrategy(tc.MatchStrategy)
		if !ok {
			return nil, &ConfigError{Table: tc.Name, Field: "match_strategy", Reason: fmt.Sprintf("unknown strategy %q", tc.MatchStrategy)}
		}
		strategy = st
	}

	elements := make([]TextElement, len(tc.TextElements))
	for i, ec := range tc.TextElements {
		e := TextElement{
			SearchText:   ec.SearchText,
			MatchCase:    ec.MatchCase,
			MaxErrors:    ec.MaxErrors,
			MaxErrorRate: ec.MaxErrorRate,
			Weight:       DefaultWeight,
			Description:  ec.Description,
		}
		if ec.Weight != nil {
			if *ec.Weight <= 0 {
				return nil, &ConfigError{Table: tc.Name, Field: fmt.Sprintf("text_elements[%d].weight", i), Reason: fmt.Sprintf("must be > 0, got %v", *ec.Weight)}
			}
			e.Weight = *ec.Weight
		}
		if e.MaxErrors == nil && e.MaxErrorRate == nil {
			maxErrors, maxRate := DefaultMaxErrors, DefaultMaxErrorRate
			e.MaxErrors, e.MaxErrorRate = &maxErrors, &maxRate
		}
		elements[i] = e
	}

	opts := []DefinitionOption{WithDescription(tc.Description)}
	if tc.MinElements != nil {
		opts = append(opts, WithMinElements(*tc.MinElements))
	}
	if tc.MinPercentage != nil {
		opts = append(opts, WithMinPercentage(*tc.MinPercentage))
	}
	if tc.MinScore != nil {
		opts = append(opts, WithMinScore(*tc.MinScore))
	}
	return NewTableDefinition(tc.Name, elements, strategy, opts...)
}

// LoadDefinitions reads and parses the definitions file at location, a
// local path or any afs URL.
func LoadDefinitions(ctx context.Context, fs afs.Service, loc string) ([]*TableDefinition, error) {
	URL, err := location.Normalize(loc)
	if err != nil {
		return nil, err
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("read table definitions %s: %w", loc, err)
	}
	return ParseDefinitions(data)
}
