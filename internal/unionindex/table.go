// Package unionindex provides the hashed lookup table behind union string-
// alias dispatch: decoding a union value reads the alias as raw UTF-8 bytes,
// and the table resolves those bytes to the registered case without
// allocating a string key per lookup.
package unionindex

import "github.com/cespare/xxhash/v2"

type entry[T any] struct {
	alias string
	value T
}

// Table maps UTF-8 alias bytes to a value of type T, bucketed by xxHash64
// with byte-equality resolution inside a bucket, so two aliases that collide
// on hash still dispatch correctly.
type Table[T any] struct {
	buckets map[uint64][]entry[T]
	size    int
}

// New returns an empty Table.
func New[T any]() *Table[T] {
	return &Table[T]{buckets: make(map[uint64][]entry[T])}
}

// Len returns the number of registered aliases.
func (t *Table[T]) Len() int { return t.size }

// Add registers value under alias, reporting false if the alias is already
// present.
func (t *Table[T]) Add(alias string, value T) bool {
	h := xxhash.Sum64String(alias)
	for _, e := range t.buckets[h] {
		if e.alias == alias {
			return false
		}
	}
	t.buckets[h] = append(t.buckets[h], entry[T]{alias: alias, value: value})
	t.size++
	return true
}

// Lookup resolves the value registered for the given alias bytes.
func (t *Table[T]) Lookup(alias []byte) (T, bool) {
	for _, e := range t.buckets[xxhash.Sum64(alias)] {
		if e.alias == string(alias) {
			return e.value, true
		}
	}
	var zero T
	return zero, false
}
