package buffer

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int](4)

	for i := 0; i < 3; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}

	for i := 0; i < 3; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() returned false for item %d", i)
		}
		if v != i {
			t.Errorf("popped %d, want %d", v, i)
		}
	}

	stats := q.Stats()
	if stats.Pushed != 3 || stats.Popped != 3 || stats.Len != 0 {
		t.Errorf("Stats() = %+v, want 3 pushed, 3 popped, 0 queued", stats)
	}
}

func TestQueue_GrowsWhenFull(t *testing.T) {
	q := NewQueue[int](2)

	// Wrap the ring before growing
	q.Push(0)
	q.Push(1)
	q.Pop()
	q.Push(2)
	for i := 3; i < 10; i++ {
		q.Push(i)
	}

	stats := q.Stats()
	if stats.Capacity < 9 {
		t.Errorf("Capacity = %d, want >= 9", stats.Capacity)
	}
	if stats.Resizes == 0 {
		t.Error("expected at least one resize")
	}

	for want := 1; want < 10; want++ {
		v, ok := q.Pop()
		if !ok || v != want {
			t.Fatalf("Pop() = %d, %v; want %d, true", v, ok, want)
		}
	}
}

func TestQueue_Drain(t *testing.T) {
	q := NewQueue[string](8)
	for _, s := range []string{"a", "b", "c", "d"} {
		q.Push(s)
	}

	got := q.Drain(3)
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("Drain(3) = %v, want [a b c]", got)
	}

	got = q.Drain(0)
	if len(got) != 1 || got[0] != "d" {
		t.Errorf("Drain(0) = %v, want [d]", got)
	}

	if got := q.Drain(0); got != nil {
		t.Errorf("Drain on empty = %v, want nil", got)
	}
}

func TestQueue_CloseWakesConsumer(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue[int](1)
	q.Push(42)

	var wg sync.WaitGroup
	results := make(chan int, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			v, ok := q.Pop()
			if !ok {
				return
			}
			results <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()

	if q.Push(1) {
		t.Error("Push after Close returned true")
	}
	close(results)

	var got []int
	for v := range results {
		got = append(got, v)
	}
	if len(got) != 1 || got[0] != 42 {
		t.Errorf("consumer received %v, want [42]", got)
	}

	stats := q.Stats()
	if stats.Pushed != 1 || stats.Popped != 1 {
		t.Errorf("Stats = %+v, want Pushed=1 Popped=1", stats)
	}
}
