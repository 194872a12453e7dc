package pool

import (
	"reflect"
	"sync"
)

// Slice pools for efficient reuse of typed slices.
//
// These pools help reduce allocations on two hot paths: bulk-encoding a
// homogeneous numeric enumerable shape straight through wire.WriteIntSlice/
// WriteFloat64Slice without boxing each element, and collecting decoded
// elements of an EnumerableShape before calling its
// ConstructParameterizedSequence Build.
var (
	int64SlicePool = sync.Pool{
		New: func() any { return &[]int64{} },
	}
	float64SlicePool = sync.Pool{
		New: func() any { return &[]float64{} },
	}
	reflectValueSlicePool = sync.Pool{
		New: func() any { return &[]reflect.Value{} },
	}
)

// GetInt64Slice retrieves and resizes an int64 slice from the pool.
//
// The returned slice will have the exact length specified by the size parameter.
// If the pooled slice has insufficient capacity, a new slice will be allocated.
// The caller must call the returned cleanup function to return the slice to the pool.
func GetInt64Slice(size int) ([]int64, func()) {
	ptr, _ := int64SlicePool.Get().(*[]int64)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]int64, size)
		*ptr = slice
	} else {
		slice = slice[:size]
		*ptr = slice
	}

	return slice, func() { int64SlicePool.Put(ptr) }
}

// GetFloat64Slice retrieves and resizes a float64 slice from the pool.
func GetFloat64Slice(size int) ([]float64, func()) {
	ptr, _ := float64SlicePool.Get().(*[]float64)
	slice := (*ptr)[:0]

	if cap(slice) < size {
		slice = make([]float64, size)
		*ptr = slice
	} else {
		slice = slice[:size]
		*ptr = slice
	}

	return slice, func() { float64SlicePool.Put(ptr) }
}

// GetReflectValueSlice retrieves a zero-length []reflect.Value with at least
// the given capacity, for accumulating decoded elements before a
// ConstructParameterizedSequence Build call. Unlike GetInt64Slice/
// GetFloat64Slice, the returned slice starts at length 0 since callers
// append (the decoded count isn't always known in advance when reading
// through a streaming source one element at a time).
func GetReflectValueSlice(capHint int) ([]reflect.Value, func()) {
	ptr, _ := reflectValueSlicePool.Get().(*[]reflect.Value)
	slice := (*ptr)[:0]

	if cap(slice) < capHint {
		slice = make([]reflect.Value, 0, capHint)
	}
	*ptr = slice

	return slice, func() {
		// The caller appended into the shared backing array; clear the full
		// capacity so pooled reflect.Values don't pin decoded objects.
		full := (*ptr)[:cap(*ptr)]
		clear(full)
		*ptr = full[:0]
		reflectValueSlicePool.Put(ptr)
	}
}
