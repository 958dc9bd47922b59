package viewport

import (
	"image"
	"testing"
)

func TestEvent_FireInOrder(t *testing.T) {
	var e Event[int]
	var got []int
	e.Add(func(v int) { got = append(got, v*10) })
	e.Add(func(v int) { got = append(got, v*100) })

	e.Fire(2)

	if len(got) != 2 || got[0] != 20 || got[1] != 200 {
		t.Fatalf("Fire order = %v", got)
	}
}

func TestSubscription_RemoveIdempotent(t *testing.T) {
	var e Event[image.Point]
	calls := 0
	sub := e.Add(func(image.Point) { calls++ })

	sub.Remove()
	sub.Remove()
	e.Fire(image.Pt(1, 1))

	if calls != 0 {
		t.Fatalf("removed handler was called %d times", calls)
	}
	if e.Len() != 0 {
		t.Fatalf("Len() = %d after remove", e.Len())
	}

	var nilSub *Subscription
	nilSub.Remove()
}

func TestSubscription_RemoveFromHandler(t *testing.T) {
	var e Event[struct{}]
	calls := 0
	var sub *Subscription
	sub = e.Add(func(struct{}) {
		calls++
		sub.Remove()
	})

	e.Fire(struct{}{})
	e.Fire(struct{}{})

	if calls != 1 {
		t.Fatalf("self-removing handler ran %d times", calls)
	}
}

func TestEvent_Clear(t *testing.T) {
	var e Event[int]
	e.Add(func(int) { t.Fatal("cleared handler ran") })
	e.Clear()
	e.Fire(1)
}
