package heapq

import (
	"math/rand"
	"sort"
	"testing"
)

type entry struct {
	key float64
	id  uint64
}

func lessEntry(a, b entry) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.id < b.id
}

func TestHeapPopOrder(t *testing.T) {
	t.Parallel()
	h := New(lessEntry)
	in := []entry{{3, 1}, {1, 2}, {2, 3}, {1, 4}, {0.5, 5}}
	for _, e := range in {
		h.Add(e)
	}

	want := append([]entry(nil), in...)
	sort.Slice(want, func(i, j int) bool { return lessEntry(want[i], want[j]) })

	for i, w := range want {
		got, ok := h.Pop()
		if !ok {
			t.Fatalf("Pop() at %d: heap empty", i)
		}
		if got != w {
			t.Fatalf("Pop() at %d = %v, want %v", i, got, w)
		}
	}
	if _, ok := h.Pop(); ok {
		t.Fatal("Pop() on empty heap reported an item")
	}
}

func TestHeapPeekDoesNotRemove(t *testing.T) {
	t.Parallel()
	h := New(lessEntry)
	if _, ok := h.Peek(); ok {
		t.Fatal("Peek() on empty heap reported an item")
	}
	h.Add(entry{2, 1})
	h.Add(entry{1, 2})
	for i := 0; i < 3; i++ {
		got, ok := h.Peek()
		if !ok || got != (entry{1, 2}) {
			t.Fatalf("Peek() = %v, %v, want {1 2}, true", got, ok)
		}
	}
	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}
}

func TestHeapRemove(t *testing.T) {
	t.Parallel()
	h := New(lessEntry)
	for _, e := range []entry{{1, 1}, {2, 2}, {3, 3}, {4, 4}} {
		h.Add(e)
	}

	got, ok := h.Remove(func(e entry) bool { return e.id == 2 })
	if !ok || got != (entry{2, 2}) {
		t.Fatalf("Remove(id=2) = %v, %v", got, ok)
	}
	if _, ok := h.Remove(func(e entry) bool { return e.id == 99 }); ok {
		t.Fatal("Remove(id=99) reported a match")
	}

	var order []uint64
	for {
		e, ok := h.Pop()
		if !ok {
			break
		}
		order = append(order, e.id)
	}
	want := []uint64{1, 3, 4}
	if len(order) != len(want) {
		t.Fatalf("drained %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("drained %v, want %v", order, want)
		}
	}
}

func TestHeapRandomizedAgainstSort(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	h := New(lessEntry)
	var live []entry

	for i := 0; i < 500; i++ {
		switch {
		case len(live) > 0 && rng.Intn(4) == 0:
			victim := live[rng.Intn(len(live))]
			h.Remove(func(e entry) bool { return e.id == victim.id })
			for j, e := range live {
				if e.id == victim.id {
					live = append(live[:j], live[j+1:]...)
					break
				}
			}
		default:
			e := entry{key: float64(rng.Intn(50)), id: uint64(i)}
			h.Add(e)
			live = append(live, e)
		}
	}

	sort.Slice(live, func(i, j int) bool { return lessEntry(live[i], live[j]) })
	for i, w := range live {
		got, ok := h.Pop()
		if !ok || got != w {
			t.Fatalf("Pop() at %d = %v, %v, want %v", i, got, ok, w)
		}
	}
}
