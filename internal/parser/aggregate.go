package parser

import "sort"

// Entry is one key of an aggregate, ready to be encoded.
type Entry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Aggregate is a map that remembers the order in which keys were first set.
type Aggregate[V any] struct {
	keys   []string
	values map[string]V
}

func NewAggregate[V any]() *Aggregate[V] {
	return &Aggregate[V]{values: make(map[string]V)}
}

func (a *Aggregate[V]) Get(key string) (V, bool) {
	v, ok := a.values[key]
	return v, ok
}

func (a *Aggregate[V]) Set(key string, v V) {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = v
}

// Update replaces the value of key with fn(current, exists).
func (a *Aggregate[V]) Update(key string, fn func(V, bool) V) {
	v, ok := a.values[key]
	a.Set(key, fn(v, ok))
}

// Keys returns the keys in insertion order, or in the order left by SortKeys.
func (a *Aggregate[V]) Keys() []string {
	keys := make([]string, len(a.keys))
	copy(keys, a.keys)
	return keys
}

func (a *Aggregate[V]) Len() int {
	return len(a.keys)
}

// SortKeys reorders the keys. The comparison receives both keys and values.
func (a *Aggregate[V]) SortKeys(less func(ka string, va V, kb string, vb V) bool) {
	sort.SliceStable(a.keys, func(i, j int) bool {
		ki, kj := a.keys[i], a.keys[j]
		return less(ki, a.values[ki], kj, a.values[kj])
	})
}

func (a *Aggregate[V]) Entries() []Entry {
	entries := make([]Entry, 0, len(a.keys))
	for _, k := range a.keys {
		entries = append(entries, Entry{Key: k, Value: a.values[k]})
	}
	return entries
}

// Map copies the aggregate into a plain map.
func (a *Aggregate[V]) Map() map[string]V {
	m := make(map[string]V, len(a.values))
	for k, v := range a.values {
		m[k] = v
	}
	return m
}
