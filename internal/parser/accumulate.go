package parser

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// Strategy names how accepted rows are folded into an aggregate.
type Strategy string

const (
	StrategyCount     Strategy = "count"
	StrategyCollect   Strategy = "collect"
	StrategyIndex     Strategy = "index"
	StrategyMax       Strategy = "max"
	StrategyTopKMean  Strategy = "topk_mean"
	StrategyFirstLast Strategy = "first_last"
)

// Condition restricts an accumulator to rows whose field is one of In.
type Condition struct {
	Field string   `yaml:"field"`
	In    []string `yaml:"in"`
}

func (c *Condition) matches(row Row) bool {
	if c == nil {
		return true
	}
	v, ok := row.Get(c.Field)
	return ok && slices.Contains(c.In, v.String())
}

// AccumulatorSpec is the declarative form of one accumulator inside a schema.
type AccumulatorSpec struct {
	Name     string   `yaml:"name"`
	Strategy Strategy `yaml:"strategy"`
	// Key is the field the aggregate is keyed by.
	Key string `yaml:"key"`
	// Fields selects the tuple stored by collect and index.
	Fields []string `yaml:"fields"`
	// Weight makes count sum a numeric field instead of adding one.
	Weight   string     `yaml:"weight"`
	Init     []string   `yaml:"init"`
	OnlyInit bool       `yaml:"only_init"`
	K        int        `yaml:"k"`
	Field    string     `yaml:"field"`
	Where    *Condition `yaml:"where"`
}

func (a *AccumulatorSpec) validate(s *Schema) error {
	if a.Name == "" {
		a.Name = string(a.Strategy)
	}
	checkField := func(name string) error {
		if !s.HasField(name) {
			return fmt.Errorf("accumulator %q: unknown field %q", a.Name, name)
		}
		return nil
	}

	switch a.Strategy {
	case StrategyCount, StrategyCollect, StrategyIndex, StrategyMax, StrategyTopKMean:
		if err := checkField(a.Key); err != nil {
			return err
		}
	case StrategyFirstLast:
		if err := checkField(a.Field); err != nil {
			return err
		}
	default:
		return fmt.Errorf("accumulator %q: unknown strategy %q", a.Name, a.Strategy)
	}

	for _, f := range a.Fields {
		if err := checkField(f); err != nil {
			return err
		}
	}
	if a.Weight != "" {
		if err := checkField(a.Weight); err != nil {
			return err
		}
	}
	if a.Where != nil {
		if err := checkField(a.Where.Field); err != nil {
			return err
		}
	}
	if a.Weight != "" && !isNumericKind(s.field(a.Weight).Kind) {
		return fmt.Errorf("accumulator %q: weight field %q is not numeric", a.Name, a.Weight)
	}
	if a.Strategy == StrategyMax || a.Strategy == StrategyTopKMean {
		switch {
		case a.Field != "":
			if err := checkField(a.Field); err != nil {
				return err
			}
			if !isNumericKind(s.field(a.Field).Kind) {
				return fmt.Errorf("accumulator %q: field %q is not numeric", a.Name, a.Field)
			}
		case s.Tail == nil || !isNumericKind(s.Tail.Kind):
			return fmt.Errorf("accumulator %q: needs a numeric tail or a numeric field", a.Name)
		}
	}
	if a.Strategy == StrategyTopKMean && a.K <= 0 {
		return fmt.Errorf("accumulator %q: k must be positive", a.Name)
	}
	if a.OnlyInit && len(a.Init) == 0 {
		return fmt.Errorf("accumulator %q: only_init without init keys", a.Name)
	}
	return nil
}

func (a AccumulatorSpec) build() Accumulator {
	switch a.Strategy {
	case StrategyCount:
		return NewCounter(a)
	case StrategyCollect:
		return &Collector{spec: a, agg: NewAggregate[[]Tuple]()}
	case StrategyIndex:
		return &Indexer{spec: a, agg: NewAggregate[Tuple]()}
	case StrategyMax:
		return &Maximum{spec: a, agg: NewAggregate[float64]()}
	case StrategyTopKMean:
		return &TopKMean{spec: a, agg: NewAggregate[[]float64]()}
	default:
		return &FirstLast{spec: a}
	}
}

// Accumulator folds rows into an aggregate. Add only reads the row it is given.
// Check reports the error Add would return without touching the aggregate, so
// a row can be checked against every accumulator before any of them takes it.
type Accumulator interface {
	Name() string
	Strategy() Strategy
	Check(row Row) error
	Add(row Row) error
	Entries() []Entry
	Len() int
}

func keyOf(row Row, field string) (string, error) {
	v, ok := row.Get(field)
	if !ok {
		return "", fmt.Errorf("line %d: missing key field %q", row.Line, field)
	}
	return v.String(), nil
}

func numbersOf(row Row, field string) ([]float64, error) {
	if field == "" {
		return row.TailFloats(), nil
	}
	v, ok := row.Get(field)
	if !ok || !v.IsNumeric() {
		return nil, fmt.Errorf("line %d: field %q is not numeric", row.Line, field)
	}
	return []float64{v.Num}, nil
}

func checkKeyed(row Row, spec AccumulatorSpec) error {
	if !spec.Where.matches(row) {
		return nil
	}
	if _, err := keyOf(row, spec.Key); err != nil {
		return err
	}
	_, err := row.Select(spec.Fields)
	return err
}

func checkNumeric(row Row, spec AccumulatorSpec) error {
	if !spec.Where.matches(row) {
		return nil
	}
	if _, err := keyOf(row, spec.Key); err != nil {
		return err
	}
	_, err := numbersOf(row, spec.Field)
	return err
}

// Counter counts occurrences of a key, or sums a weight field per key.
type Counter struct {
	spec AccumulatorSpec
	agg  *Aggregate[float64]
}

func NewCounter(spec AccumulatorSpec) *Counter {
	c := &Counter{spec: spec, agg: NewAggregate[float64]()}
	for _, k := range spec.Init {
		c.agg.Set(k, 0)
	}
	return c
}

func (c *Counter) Name() string       { return c.spec.Name }
func (c *Counter) Strategy() Strategy { return StrategyCount }
func (c *Counter) Len() int           { return c.agg.Len() }
func (c *Counter) Entries() []Entry   { return c.agg.Entries() }

// Aggregate exposes the counts.
func (c *Counter) Aggregate() *Aggregate[float64] { return c.agg }

func (c *Counter) Check(row Row) error {
	if !c.spec.Where.matches(row) {
		return nil
	}
	_, _, err := c.keyAndWeight(row)
	return err
}

func (c *Counter) keyAndWeight(row Row) (Value, float64, error) {
	v, ok := row.Get(c.spec.Key)
	if !ok {
		return Value{}, 0, fmt.Errorf("line %d: missing key field %q", row.Line, c.spec.Key)
	}
	if c.spec.Weight == "" {
		return v, 1, nil
	}
	w, ok := row.Get(c.spec.Weight)
	if !ok || !w.IsNumeric() {
		return Value{}, 0, fmt.Errorf("line %d: weight field %q is not numeric", row.Line, c.spec.Weight)
	}
	return v, w.Num, nil
}

func (c *Counter) Add(row Row) error {
	if !c.spec.Where.matches(row) {
		return nil
	}
	v, weight, err := c.keyAndWeight(row)
	if err != nil {
		return err
	}

	keys := []string{v.String()}
	if v.Kind == KindList {
		keys = v.List
	}
	for _, k := range keys {
		c.add(k, weight)
	}
	return nil
}

func (c *Counter) add(key string, n float64) {
	if c.spec.OnlyInit && !slices.Contains(c.spec.Init, key) {
		return
	}
	c.agg.Update(key, func(cur float64, _ bool) float64 { return cur + n })
}

// Merge adds the counts of other into c. Keys new to c keep the order in
// which other saw them.
func (c *Counter) Merge(other *Counter) {
	for _, k := range other.agg.Keys() {
		n, _ := other.agg.Get(k)
		c.add(k, n)
	}
}

// Collector appends the selected fields of every row to a list per key.
type Collector struct {
	spec AccumulatorSpec
	agg  *Aggregate[[]Tuple]
}

func (c *Collector) Name() string       { return c.spec.Name }
func (c *Collector) Strategy() Strategy { return StrategyCollect }
func (c *Collector) Len() int           { return c.agg.Len() }
func (c *Collector) Entries() []Entry   { return c.agg.Entries() }

func (c *Collector) Aggregate() *Aggregate[[]Tuple] { return c.agg }

func (c *Collector) Check(row Row) error {
	return checkKeyed(row, c.spec)
}

func (c *Collector) Add(row Row) error {
	if !c.spec.Where.matches(row) {
		return nil
	}
	key, err := keyOf(row, c.spec.Key)
	if err != nil {
		return err
	}
	tuple, err := row.Select(c.spec.Fields)
	if err != nil {
		return err
	}
	c.agg.Update(key, func(cur []Tuple, _ bool) []Tuple { return append(cur, tuple) })
	return nil
}

// Indexer keeps the selected fields of the last row seen for each key.
type Indexer struct {
	spec AccumulatorSpec
	agg  *Aggregate[Tuple]
}

func (x *Indexer) Name() string       { return x.spec.Name }
func (x *Indexer) Strategy() Strategy { return StrategyIndex }
func (x *Indexer) Len() int           { return x.agg.Len() }
func (x *Indexer) Entries() []Entry   { return x.agg.Entries() }

func (x *Indexer) Aggregate() *Aggregate[Tuple] { return x.agg }

func (x *Indexer) Check(row Row) error {
	return checkKeyed(row, x.spec)
}

func (x *Indexer) Add(row Row) error {
	if !x.spec.Where.matches(row) {
		return nil
	}
	key, err := keyOf(row, x.spec.Key)
	if err != nil {
		return err
	}
	tuple, err := row.Select(x.spec.Fields)
	if err != nil {
		return err
	}
	x.agg.Set(key, tuple)
	return nil
}

// Maximum keeps the largest numeric value seen per key.
type Maximum struct {
	spec AccumulatorSpec
	agg  *Aggregate[float64]
}

func (m *Maximum) Name() string       { return m.spec.Name }
func (m *Maximum) Strategy() Strategy { return StrategyMax }
func (m *Maximum) Len() int           { return m.agg.Len() }
func (m *Maximum) Entries() []Entry   { return m.agg.Entries() }

func (m *Maximum) Aggregate() *Aggregate[float64] { return m.agg }

func (m *Maximum) Check(row Row) error {
	return checkNumeric(row, m.spec)
}

func (m *Maximum) Add(row Row) error {
	if !m.spec.Where.matches(row) {
		return nil
	}
	key, err := keyOf(row, m.spec.Key)
	if err != nil {
		return err
	}
	nums, err := numbersOf(row, m.spec.Field)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return nil
	}
	best := slices.Max(nums)
	m.agg.Update(key, func(cur float64, ok bool) float64 {
		if ok && cur > best {
			return cur
		}
		return best
	})
	return nil
}

// TopKMean averages the K best values seen per key. Keys with fewer than K
// values are padded with zeros.
type TopKMean struct {
	spec AccumulatorSpec
	agg  *Aggregate[[]float64]
}

func (t *TopKMean) Name() string       { return t.spec.Name }
func (t *TopKMean) Strategy() Strategy { return StrategyTopKMean }
func (t *TopKMean) Len() int           { return t.agg.Len() }

func (t *TopKMean) Check(row Row) error {
	return checkNumeric(row, t.spec)
}

func (t *TopKMean) Add(row Row) error {
	if !t.spec.Where.matches(row) {
		return nil
	}
	key, err := keyOf(row, t.spec.Key)
	if err != nil {
		return err
	}
	nums, err := numbersOf(row, t.spec.Field)
	if err != nil {
		return err
	}
	t.agg.Update(key, func(cur []float64, _ bool) []float64 { return append(cur, nums...) })
	return nil
}

// Mean returns the top-K mean of key.
func (t *TopKMean) Mean(key string) (float64, bool) {
	values, ok := t.agg.Get(key)
	if !ok {
		return 0, false
	}
	return topKMean(values, t.spec.K), true
}

func (t *TopKMean) Entries() []Entry {
	entries := make([]Entry, 0, t.agg.Len())
	for _, k := range t.agg.Keys() {
		mean, _ := t.Mean(k)
		entries = append(entries, Entry{Key: k, Value: mean})
	}
	return entries
}

func topKMean(values []float64, k int) float64 {
	sorted := slices.Clone(values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(k)
}

// FirstLast remembers the first and the last value of a field in input order.
type FirstLast struct {
	spec        AccumulatorSpec
	first, last Value
	seen        bool
}

func (f *FirstLast) Name() string       { return f.spec.Name }
func (f *FirstLast) Strategy() Strategy { return StrategyFirstLast }

func (f *FirstLast) Len() int {
	if !f.seen {
		return 0
	}
	return 2
}

func (f *FirstLast) Check(row Row) error {
	if !f.spec.Where.matches(row) {
		return nil
	}
	if _, ok := row.Get(f.spec.Field); !ok {
		return fmt.Errorf("line %d: missing field %q", row.Line, f.spec.Field)
	}
	return nil
}

func (f *FirstLast) Add(row Row) error {
	if !f.spec.Where.matches(row) {
		return nil
	}
	v, ok := row.Get(f.spec.Field)
	if !ok {
		return fmt.Errorf("line %d: missing field %q", row.Line, f.spec.Field)
	}
	if !f.seen {
		f.first = v
		f.seen = true
	}
	f.last = v
	return nil
}

// Bounds returns the first and last values, or false when no row was added.
func (f *FirstLast) Bounds() (first, last Value, ok bool) {
	return f.first, f.last, f.seen
}

func (f *FirstLast) Entries() []Entry {
	if !f.seen {
		return []Entry{}
	}
	return []Entry{{Key: "first", Value: f.first}, {Key: "last", Value: f.last}}
}

// MergeStrategy resolves a key present in both sides of MergeEntries.
type MergeStrategy string

const (
	MergeFirst  MergeStrategy = "first"
	MergeSecond MergeStrategy = "second"
	MergeSum    MergeStrategy = "sum"
	MergeList   MergeStrategy = "list"
)

var ErrUnknownMergeStrategy = errors.New("unknown merge strategy")

// MergeEntries combines two aggregates. Keys of a come first, then the keys
// only b has. On conflicts, sum only adds numeric values and otherwise keeps
// the value of a, and list pairs both values.
func MergeEntries(a, b []Entry, strategy MergeStrategy) ([]Entry, error) {
	switch strategy {
	case MergeFirst, MergeSecond, MergeSum, MergeList:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMergeStrategy, strategy)
	}

	merged := NewAggregate[any]()
	for _, e := range a {
		merged.Set(e.Key, e.Value)
	}
	for _, e := range b {
		merged.Update(e.Key, func(cur any, exists bool) any {
			if !exists {
				return e.Value
			}
			switch strategy {
			case MergeSecond:
				return e.Value
			case MergeSum:
				x, okx := asFloat(cur)
				y, oky := asFloat(e.Value)
				if okx && oky {
					return x + y
				}
				return cur
			case MergeList:
				return []any{cur, e.Value}
			default:
				return cur
			}
		})
	}
	return merged.Entries(), nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case Value:
		return n.Num, n.IsNumeric()
	default:
		return 0, false
	}
}
