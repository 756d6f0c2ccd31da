package parser

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrRejected marks a record that failed its schema and must be skipped.
	ErrRejected = errors.New("record rejected")
	// ErrNotFound marks an input resource that does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrDecode marks an input resource that could not be read as text.
	ErrDecode = errors.New("resource could not be decoded")
)

// Mode decides what a coercion failure does to the record.
type Mode string

const (
	// Strict rejects the whole record.
	Strict Mode = "strict"
	// Tolerant replaces the field with its default and keeps the record.
	Tolerant Mode = "tolerant"
)

// FieldSpec describes one position of a record.
type FieldSpec struct {
	Name         string   `yaml:"name"`
	Kind         Kind     `yaml:"kind"`
	Default      string   `yaml:"default"`
	Mode         Mode     `yaml:"mode"`
	Values       []string `yaml:"values"`
	Pattern      string   `yaml:"pattern"`
	ListSep      string   `yaml:"list_sep"`
	DecimalComma bool     `yaml:"decimal_comma"`
	Required     bool     `yaml:"required"`
	Start        int      `yaml:"start"`
	End          int      `yaml:"end"`

	re *regexp.Regexp
}

func (f *FieldSpec) compile() error {
	if f.Kind == "" {
		f.Kind = KindString
	}
	if f.Mode == "" {
		f.Mode = Strict
	}
	switch f.Kind {
	case KindString, KindFloat, KindInt, KindList:
	case KindEnum:
		if len(f.Values) == 0 {
			return fmt.Errorf("field %q: enum without values", f.Name)
		}
	case KindPattern:
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			return fmt.Errorf("field %q: invalid pattern: %w", f.Name, err)
		}
		f.re = re
	default:
		return fmt.Errorf("field %q: unknown kind %q", f.Name, f.Kind)
	}
	if f.Mode != Strict && f.Mode != Tolerant {
		return fmt.Errorf("field %q: unknown mode %q", f.Name, f.Mode)
	}
	if f.Kind == KindList && f.ListSep == "" {
		f.ListSep = ","
	}
	return nil
}

// Coerce converts a raw field into a typed value. An empty raw value takes the
// default. A failing value is rejected in strict mode and replaced by the
// default in tolerant mode. A required field without a usable default is
// rejected in both modes.
func (f *FieldSpec) Coerce(raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" && f.Default != "" {
		raw = f.Default
	}

	v, err := f.convert(raw)
	if err == nil {
		return v, nil
	}
	if f.Mode == Tolerant {
		if fallback, ferr := f.convert(f.Default); ferr == nil {
			return fallback, nil
		}
		if f.Default == "" && !f.Required {
			return Value{Kind: f.Kind}, nil
		}
	}
	return Value{}, fmt.Errorf("%w: field %q: %v", ErrRejected, f.Name, err)
}

func (f *FieldSpec) convert(raw string) (Value, error) {
	if raw == "" && f.Required {
		return Value{}, errors.New("value is required")
	}
	switch f.Kind {
	case KindFloat:
		if f.DecimalComma {
			raw = strings.Replace(raw, ",", ".", 1)
		}
		n, err := strconv.ParseFloat(raw, 64)
		// ParseFloat also takes inf, NaN and hex floats; none of them is a
		// decimal reading and NaN cannot be encoded as JSON
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || strings.ContainsAny(raw, "xX") {
			return Value{}, fmt.Errorf("not a number: %q", raw)
		}
		return Value{Kind: KindFloat, Num: n}, nil
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Value{}, fmt.Errorf("not an integer: %q", raw)
		}
		return Value{Kind: KindInt, Num: float64(n)}, nil
	case KindEnum:
		if !slices.Contains(f.Values, raw) {
			return Value{}, fmt.Errorf("%q is not one of %v", raw, f.Values)
		}
		return Value{Kind: KindEnum, Str: raw}, nil
	case KindPattern:
		m := f.re.FindStringSubmatch(raw)
		if m == nil {
			return Value{}, fmt.Errorf("%q does not match %s", raw, f.Pattern)
		}
		if len(m) > 1 {
			return Value{Kind: KindPattern, Str: m[1]}, nil
		}
		return Value{Kind: KindPattern, Str: m[0]}, nil
	case KindList:
		items := []string{}
		if raw != "" {
			for _, item := range strings.Split(raw, f.ListSep) {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
		}
		return Value{Kind: KindList, List: items}, nil
	default:
		return Value{Kind: KindString, Str: raw}, nil
	}
}
