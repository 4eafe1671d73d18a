// Package observable provides a minimal "last value plus future values"
// broadcast primitive. A new subscriber immediately receives the current
// value, then every subsequent change.
package observable

import "sync"

type Value[T any] struct {
	mu      sync.Mutex
	current T
	subs    map[int]chan T
	nextID  int
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[int]chan T),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set publishes a new value to all subscribers. Slow subscribers are
// conflated to the latest value rather than blocking the publisher.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current = val
	for _, ch := range v.subs {
		send(ch, val)
	}
}

// Update applies fn to the current value and publishes the result.
func (v *Value[T]) Update(fn func(T) T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current = fn(v.current)
	for _, ch := range v.subs {
		send(ch, v.current)
	}
}

// Subscribe registers a new observer. The returned channel carries the
// current value immediately, then every change until cancel is called.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++

	ch := make(chan T, 1)
	ch <- v.current
	v.subs[id] = ch

	cancel := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if sub, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// send delivers val without blocking: if the subscriber has not consumed
// the previous value, it is replaced by the latest one.
func send[T any](ch chan T, val T) {
	for {
		select {
		case ch <- val:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
