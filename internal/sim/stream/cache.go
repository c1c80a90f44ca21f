package stream

import "sync"

type key2 struct{ x, z float64 }

type key3 struct{ x, y, z float64 }

type cached[T any] struct {
	wrap[T]
	m2 *sync.Map
	m3 *sync.Map
}

// Cached memoizes src by exact coordinate for the lifetime of the returned
// stream. Concurrent first calls for one coordinate may both evaluate src;
// streams are pure so either result is the same value.
func Cached[T any](src Stream[T]) Stream[T] {
	return cached[T]{wrap: wrap[T]{src: src}, m2: &sync.Map{}, m3: &sync.Map{}}
}

func (c cached[T]) Get2(x, z float64) T {
	k := key2{x, z}
	if v, ok := c.m2.Load(k); ok {
		return v.(T)
	}
	v := c.src.Get2(x, z)
	actual, _ := c.m2.LoadOrStore(k, v)
	return actual.(T)
}

func (c cached[T]) Get3(x, y, z float64) T {
	k := key3{x, y, z}
	if v, ok := c.m3.Load(k); ok {
		return v.(T)
	}
	v := c.src.Get3(x, y, z)
	actual, _ := c.m3.LoadOrStore(k, v)
	return actual.(T)
}
