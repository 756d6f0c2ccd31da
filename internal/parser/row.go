package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind names the coercion applied to a raw field.
type Kind string

const (
	KindString  Kind = "string"
	KindFloat   Kind = "float"
	KindInt     Kind = "int"
	KindEnum    Kind = "enum"
	KindPattern Kind = "pattern"
	KindList    Kind = "list"
)

// Value is one coerced field. Str holds string, enum and pattern values, Num
// holds float and int values and List holds list values.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	List []string
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

func FloatValue(f float64) Value { return Value{Kind: KindFloat, Num: f} }

func ListValue(items []string) Value { return Value{Kind: KindList, List: items} }

func (v Value) IsNumeric() bool {
	return v.Kind == KindFloat || v.Kind == KindInt
}

func (v Value) String() string {
	switch v.Kind {
	case KindFloat:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(int64(v.Num), 10)
	case KindList:
		return strings.Join(v.List, ",")
	default:
		return v.Str
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindFloat:
		return json.Marshal(v.Num)
	case KindInt:
		return json.Marshal(int64(v.Num))
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Str)
	}
}

// Tuple is an ordered group of values taken from one record.
type Tuple []Value

// Row is a validated record: the coerced fixed fields plus the optional
// variable-length tail.
type Row struct {
	Line   int
	Raw    string
	Names  []string
	Values []Value
	Tail   []Value
}

// Get returns the value of the named field.
func (r Row) Get(name string) (Value, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return Value{}, false
}

// Select builds a tuple from the named fields in order.
func (r Row) Select(names []string) (Tuple, error) {
	tuple := make(Tuple, 0, len(names))
	for _, name := range names {
		v, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("line %d: unknown field %q", r.Line, name)
		}
		tuple = append(tuple, v)
	}
	return tuple, nil
}

// TailFloats returns the numeric tail values.
func (r Row) TailFloats() []float64 {
	nums := make([]float64, 0, len(r.Tail))
	for _, v := range r.Tail {
		nums = append(nums, v.Num)
	}
	return nums
}
