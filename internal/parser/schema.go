package parser

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Layout selects how a line is cut into raw fields.
type Layout string

const (
	LayoutDelimited  Layout = "delimited"
	LayoutQuoted     Layout = "quoted"
	LayoutWhitespace Layout = "whitespace"
	LayoutColumns    Layout = "columns"
	LayoutBlocks     Layout = "blocks"
)

// FailureCodes holds the numeric codes a format reports for resource failures.
type FailureCodes struct {
	NotFound int `yaml:"not_found"`
	Other    int `yaml:"other"`
}

// Schema describes one record format: how lines are split, how fields are
// coerced and how accepted rows are accumulated. A schema is not modified
// after Validate.
type Schema struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Match is a filepath.Match glob used to pick the schema for a file.
	Match string `yaml:"match"`

	Layout     Layout `yaml:"layout"`
	Separator  string `yaml:"separator"`
	MaxSplit   int    `yaml:"max_split"`
	SkipHeader bool   `yaml:"skip_header"`
	Prefix     string `yaml:"prefix"`
	Comment    string `yaml:"comment"`
	Marker     string `yaml:"marker"`

	Fields    []FieldSpec `yaml:"fields"`
	Tail      *FieldSpec  `yaml:"tail"`
	MinTail   int         `yaml:"min_tail"`
	TailPad   int         `yaml:"tail_pad"`
	SkipEmpty bool        `yaml:"skip_empty"`

	Accumulate   []AccumulatorSpec `yaml:"accumulate"`
	FailureCodes FailureCodes      `yaml:"failure_codes"`

	columns []Column
	names   []string
}

// ParseSchema decodes and validates a YAML schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSchema reads a YAML schema from disk.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	s, err := ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

// Validate fills defaults and checks the schema is usable.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.New("schema name is required")
	}
	if s.Layout == "" {
		s.Layout = LayoutDelimited
	}
	// zero is the success code
	if s.FailureCodes.NotFound == 0 {
		s.FailureCodes.NotFound = -1
	}
	if s.FailureCodes.Other == 0 {
		s.FailureCodes.Other = -1
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q: at least one field is required", s.Name)
	}

	switch s.Layout {
	case LayoutDelimited:
		if s.Separator == "" {
			return fmt.Errorf("schema %q: delimited layout needs a separator", s.Name)
		}
	case LayoutQuoted:
		if utf8.RuneCountInString(s.Separator) != 1 {
			return fmt.Errorf("schema %q: quoted layout needs a single character separator", s.Name)
		}
	case LayoutWhitespace:
	case LayoutColumns:
		if s.Tail != nil {
			return fmt.Errorf("schema %q: columns layout cannot have a tail", s.Name)
		}
		s.columns = make([]Column, len(s.Fields))
		for i, f := range s.Fields {
			if f.Start < 0 || f.End <= f.Start {
				return fmt.Errorf("schema %q: field %q has an invalid column range [%d,%d)", s.Name, f.Name, f.Start, f.End)
			}
			s.columns[i] = Column{Start: f.Start, End: f.End}
		}
	case LayoutBlocks:
		if s.Marker == "" {
			s.Marker = ">"
		}
		if len(s.Fields) != 2 || s.Tail != nil {
			return fmt.Errorf("schema %q: blocks layout needs exactly a header and a body field", s.Name)
		}
	default:
		return fmt.Errorf("schema %q: unknown layout %q", s.Name, s.Layout)
	}

	if s.MaxSplit > 0 && s.MaxSplit < len(s.Fields) {
		return fmt.Errorf("schema %q: max_split %d is lower than the %d declared fields", s.Name, s.MaxSplit, len(s.Fields))
	}

	seen := make(map[string]bool, len(s.Fields))
	s.names = make([]string, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("schema %q: field %d has no name", s.Name, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %q: duplicated field %q", s.Name, f.Name)
		}
		seen[f.Name] = true
		if err := f.compile(); err != nil {
			return fmt.Errorf("schema %q: %w", s.Name, err)
		}
		s.names[i] = f.Name
	}
	if s.Tail != nil {
		if s.Tail.Name == "" {
			s.Tail.Name = "tail"
		}
		if err := s.Tail.compile(); err != nil {
			return fmt.Errorf("schema %q: %w", s.Name, err)
		}
	}

	accNames := make(map[string]bool, len(s.Accumulate))
	for i := range s.Accumulate {
		spec := &s.Accumulate[i]
		if err := spec.validate(s); err != nil {
			return fmt.Errorf("schema %q: %w", s.Name, err)
		}
		if accNames[spec.Name] {
			return fmt.Errorf("schema %q: duplicated accumulator %q", s.Name, spec.Name)
		}
		accNames[spec.Name] = true
	}
	return nil
}

// HasField reports whether name is one of the fixed fields.
func (s *Schema) HasField(name string) bool {
	return s.field(name) != nil
}

func (s *Schema) field(name string) *FieldSpec {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

func isNumericKind(k Kind) bool {
	return k == KindFloat || k == KindInt
}

// NewAccumulators builds empty accumulators for one scan.
func (s *Schema) NewAccumulators() []Accumulator {
	accs := make([]Accumulator, 0, len(s.Accumulate))
	for _, spec := range s.Accumulate {
		accs = append(accs, spec.build())
	}
	return accs
}

// Filtered reports whether a line carries no record at all and must be
// ignored without being counted as a rejection.
func (s *Schema) Filtered(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	if s.Comment != "" && strings.HasPrefix(trimmed, s.Comment) {
		return true
	}
	if s.Prefix != "" && !strings.HasPrefix(line, s.Prefix) {
		return true
	}
	return false
}

// Split cuts a line into raw fields according to the layout. Only column
// layouts see the line untrimmed.
func (s *Schema) Split(line string) ([]string, error) {
	switch s.Layout {
	case LayoutColumns:
		return Columns(line, s.columns), nil
	case LayoutWhitespace:
		return SplitFields(line, s.MaxSplit), nil
	case LayoutQuoted:
		return SplitQuoted(strings.TrimSpace(line), s.Separator)
	default:
		return SplitN(strings.TrimSpace(line), s.Separator, s.MaxSplit), nil
	}
}

// Parse splits and coerces one line. Any failure wraps ErrRejected.
func (s *Schema) Parse(lineNo int, line string) (Row, error) {
	pieces, err := s.Split(line)
	if err != nil {
		return Row{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return s.ParseFields(lineNo, line, pieces)
}

// ParseFields coerces already split raw fields into a Row.
func (s *Schema) ParseFields(lineNo int, line string, pieces []string) (Row, error) {
	if s.Layout != LayoutColumns {
		if s.Tail == nil && len(pieces) != len(s.Fields) {
			return Row{}, fmt.Errorf("%w: expected %d fields, got %d", ErrRejected, len(s.Fields), len(pieces))
		}
		if s.Tail != nil && len(pieces) < len(s.Fields)+s.MinTail {
			return Row{}, fmt.Errorf("%w: expected at least %d fields, got %d", ErrRejected, len(s.Fields)+s.MinTail, len(pieces))
		}
	}

	row := Row{Line: lineNo, Raw: line, Names: s.names, Values: make([]Value, len(s.Fields))}
	for i := range s.Fields {
		v, err := s.Fields[i].Coerce(pieces[i])
		if err != nil {
			return Row{}, err
		}
		row.Values[i] = v
	}

	if s.Tail == nil {
		return row, nil
	}
	for _, raw := range pieces[len(s.Fields):] {
		if s.SkipEmpty && strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := s.Tail.Coerce(raw)
		if err != nil {
			return Row{}, err
		}
		row.Tail = append(row.Tail, v)
	}
	for len(row.Tail) < s.TailPad {
		v, err := s.Tail.Coerce("")
		if err != nil {
			return Row{}, fmt.Errorf("%w: tail padding: %v", ErrRejected, err)
		}
		row.Tail = append(row.Tail, v)
	}
	return row, nil
}
