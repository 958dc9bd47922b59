package stream

import (
	"sync/atomic"
)

// owned is a value that background work may observe through weak references.
// Expiring it makes every weak reference fail to pin, while holders that
// already pinned keep their pointer until they are done.
type owned[T any] struct {
	ptr atomic.Pointer[T]
}

func newOwned[T any](v *T) *owned[T] {
	o := &owned[T]{}
	o.ptr.Store(v)
	return o
}

func (o *owned[T]) weak() weakRef[T] {
	return weakRef[T]{owner: o}
}

func (o *owned[T]) expire() {
	o.ptr.Store(nil)
}

// weakRef observes an owned value without keeping it alive.
type weakRef[T any] struct {
	owner *owned[T]
}

// pin returns a strong pointer, or false once the owner expired the value.
func (w weakRef[T]) pin() (*T, bool) {
	if w.owner == nil {
		return nil, false
	}
	v := w.owner.ptr.Load()
	return v, v != nil
}

func (w weakRef[T]) valid() bool {
	_, ok := w.pin()
	return ok
}
