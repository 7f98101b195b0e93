package store

import (
	"testing"
)

type counter struct {
	N    int
	Tags []string
}

func TestUpdateNotifiesInRegistrationOrder(t *testing.T) {
	t.Parallel()

	s := New(counter{})
	var order []string
	s.Subscribe(func(next, prev counter) { order = append(order, "first") })
	s.Subscribe(func(next, prev counter) { order = append(order, "second") })

	s.Update(func(c counter) counter { c.N++; return c })

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestUpdatePassesNextAndPrev(t *testing.T) {
	t.Parallel()

	s := New(counter{N: 1})
	var gotNext, gotPrev int
	s.Subscribe(func(next, prev counter) {
		gotNext, gotPrev = next.N, prev.N
	})

	got := s.Update(func(c counter) counter { c.N = 5; return c })

	if got.N != 5 || s.Get().N != 5 {
		t.Fatalf("state N = %d, want 5", s.Get().N)
	}
	if gotNext != 5 || gotPrev != 1 {
		t.Fatalf("listener saw next=%d prev=%d, want 5 and 1", gotNext, gotPrev)
	}
}

func TestListenerSeesCommittedStateViaGet(t *testing.T) {
	t.Parallel()

	s := New(counter{})
	var seen int
	s.Subscribe(func(counter, counter) { seen = s.Get().N })

	s.Set(counter{N: 9})

	if seen != 9 {
		t.Fatalf("Get() inside listener = %d, want 9", seen)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	t.Parallel()

	s := New(counter{})
	calls := 0
	unsubscribe := s.Subscribe(func(counter, counter) { calls++ })

	s.Set(counter{N: 1})
	unsubscribe()
	unsubscribe()
	s.Set(counter{N: 2})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if s.Listeners() != 0 {
		t.Fatalf("Listeners() = %d, want 0", s.Listeners())
	}
}

func TestSubscribeNilIsNoop(t *testing.T) {
	t.Parallel()

	s := New(counter{})
	s.Subscribe(nil)()
	if s.Listeners() != 0 {
		t.Fatalf("Listeners() = %d, want 0", s.Listeners())
	}
}
