// ABOUTME: Table definitions: weighted text elements plus a match strategy
// ABOUTME: Definitions are validated once at construction and immutable afterwards

package tables

import (
	"fmt"
	"math"
	"strings"

	"github.com/nainya/pagefinder/pkg/fuzzy"
)

// Strategy decides whether a page's element results amount to a table.
type Strategy string

const (
	AllElements   Strategy = "all_elements"
	MinCount      Strategy = "min_count"
	MinPercentage Strategy = "min_percentage"
	WeightedScore Strategy = "weighted_score"
)

// Defaults applied when a definition leaves a threshold unset.
const (
	DefaultStrategy      = MinCount
	DefaultMinElements   = 3
	DefaultMinPercentage = 0.6
	DefaultMinScore      = 0.7
	DefaultWeight        = 1.0

	// used by config loading when an element gives neither bound
	DefaultMaxErrors    = 2
	DefaultMaxErrorRate = 0.3
)

// ParseStrategy accepts the lower-case strategy names.
func ParseStrategy(s string) (Strategy, bool) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case AllElements, MinCount, MinPercentage, WeightedScore:
		return st, true
	}
	return "", false
}

// ConfigError reports an invalid table definition.
type ConfigError struct {
	Table  string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("tables: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("tables: table %q: %s: %s", e.Table, e.Field, e.Reason)
}

// TextElement is one pattern searched for on every page. At least one of
// MaxErrors and MaxErrorRate must be set; a zero Weight means DefaultWeight.
type TextElement struct {
	SearchText   string
	MatchCase    bool
	MaxErrors    *int
	MaxErrorRate *float64
	Weight       float64
	Description  string
}

func (e TextElement) matcher() fuzzy.Element {
	return fuzzy.Element{
		Text:         e.SearchText,
		MatchCase:    e.MatchCase,
		MaxErrors:    e.MaxErrors,
		MaxErrorRate: e.MaxErrorRate,
	}
}

func (e TextElement) clone() TextElement {
	if e.MaxErrors != nil {
		n := *e.MaxErrors
		e.MaxErrors = &n
	}
	if e.MaxErrorRate != nil {
		r := *e.MaxErrorRate
		e.MaxErrorRate = &r
	}
	return e
}

func (e *TextElement) validate(table string, idx int) error {
	field := func(name string) string { return fmt.Sprintf("text_elements[%d].%s", idx, name) }
	if strings.TrimSpace(e.SearchText) == "" {
		return &ConfigError{table, field("search_text"), "must not be empty"}
	}
	if e.MaxErrors == nil && e.MaxErrorRate == nil {
		return &ConfigError{table, field("max_errors"), "one of max_errors or max_error_rate is required"}
	}
	if e.MaxErrors != nil && *e.MaxErrors < 0 {
		return &ConfigError{table, field("max_errors"), fmt.Sprintf("must be >= 0, got %d", *e.MaxErrors)}
	}
	if e.MaxErrorRate != nil && !inUnitRange(*e.MaxErrorRate) {
		return &ConfigError{table, field("max_error_rate"), fmt.Sprintf("must be in [0, 1], got %v", *e.MaxErrorRate)}
	}
	if e.Weight == 0 {
		e.Weight = DefaultWeight
	}
	if !(e.Weight > 0) || math.IsInf(e.Weight, 1) {
		return &ConfigError{table, field("weight"), fmt.Sprintf("must be > 0, got %v", e.Weight)}
	}
	return nil
}

// TableDefinition names a table and how to recognize it.
type TableDefinition struct {
	name          string
	description   string
	elements      []TextElement
	strategy      Strategy
	minElements   int
	minPercentage float64
	minScore      float64
}

// DefinitionOption sets an optional threshold of a definition.
type DefinitionOption func(*TableDefinition)

// WithMinElements sets the element count MinCount requires.
func WithMinElements(n int) DefinitionOption {
	return func(d *TableDefinition) { d.minElements = n }
}

// WithMinPercentage sets the found fraction MinPercentage requires.
func WithMinPercentage(p float64) DefinitionOption {
	return func(d *TableDefinition) { d.minPercentage = p }
}

// WithMinScore sets the weighted score WeightedScore requires.
func WithMinScore(s float64) DefinitionOption {
	return func(d *TableDefinition) { d.minScore = s }
}

// WithDescription attaches a description.
func WithDescription(s string) DefinitionOption {
	return func(d *TableDefinition) { d.description = s }
}

// NewTableDefinition validates and builds a definition. An empty strategy
// means DefaultStrategy. Elements are copied.
func NewTableDefinition(name string, elements []TextElement, strategy Strategy, opts ...DefinitionOption) (*TableDefinition, error) {
	d := &TableDefinition{
		name:          name,
		strategy:      strategy,
		minElements:   DefaultMinElements,
		minPercentage: DefaultMinPercentage,
		minScore:      DefaultMinScore,
	}
	if d.strategy == "" {
		d.strategy = DefaultStrategy
	}
	for _, opt := range opts {
		opt(d)
	}

	if strings.TrimSpace(name) == "" {
		return nil, &ConfigError{name, "name", "must not be empty"}
	}
	if _, ok := ParseStrategy(string(d.strategy)); !ok {
		return nil, &ConfigError{name, "match_strategy", fmt.Sprintf("unknown strategy %q", d.strategy)}
	}
	if len(elements) == 0 {
		return nil, &ConfigError{name, "text_elements", "table must have at least one text element"}
	}
	d.elements = make([]TextElement, len(elements))
	for i, e := range elements {
		e = e.clone()
		if err := e.validate(name, i); err != nil {
			return nil, err
		}
		d.elements[i] = e
	}

	if d.minElements < 1 {
		return nil, &ConfigError{name, "min_elements", fmt.Sprintf("must be >= 1, got %d", d.minElements)}
	}
	if d.strategy == MinCount && d.minElements > len(d.elements) {
		return nil, &ConfigError{name, "min_elements",
			fmt.Sprintf("min_elements (%d) cannot exceed total elements (%d)", d.minElements, len(d.elements))}
	}
	if !inUnitRange(d.minPercentage) {
		return nil, &ConfigError{name, "min_percentage", fmt.Sprintf("must be in [0, 1], got %v", d.minPercentage)}
	}
	if !inUnitRange(d.minScore) {
		return nil, &ConfigError{name, "min_score", fmt.Sprintf("must be in [0, 1], got %v", d.minScore)}
	}
	return d, nil
}

// inUnitRange reports whether v is in [0, 1]. NaN is not.
func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// Name is the table name reported in results.
func (d *TableDefinition) Name() string { return d.name }

// Description is free text from the definition file.
func (d *TableDefinition) Description() string { return d.description }

// Strategy is the rule deciding whether a page holds the table.
func (d *TableDefinition) Strategy() Strategy { return d.strategy }

// MinElements is the element count MinCount requires.
func (d *TableDefinition) MinElements() int { return d.minElements }

// MinPercentage is the found fraction MinPercentage requires.
func (d *TableDefinition) MinPercentage() float64 { return d.minPercentage }

// MinScore is the weighted score WeightedScore requires.
func (d *TableDefinition) MinScore() float64 { return d.minScore }

// Elements returns a copy of the text elements.
func (d *TableDefinition) Elements() []TextElement {
	out := make([]TextElement, len(d.elements))
	for i, e := range d.elements {
		out[i] = e.clone()
	}
	return out
}

// NumElements is len(Elements()) without the copy.
func (d *TableDefinition) NumElements() int {
	return len(d.elements)
}
