package stream

import "testing"

func TestWeakRef_PinUntilExpired(t *testing.T) {
	v := 42
	o := newOwned(&v)
	w := o.weak()

	p, ok := w.pin()
	if !ok || *p != 42 {
		t.Fatalf("pin() = %v, %v", p, ok)
	}

	o.expire()
	if w.valid() {
		t.Fatalf("weak ref still valid after expire")
	}
	// A pointer pinned before expiry stays usable.
	if *p != 42 {
		t.Fatalf("pinned value changed")
	}
}

func TestWeakRef_Zero(t *testing.T) {
	var w weakRef[int]
	if _, ok := w.pin(); ok {
		t.Fatalf("zero weakRef pinned")
	}
}
