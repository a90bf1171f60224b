package window

import "testing"

func TestBoundedEvictsOldestFirst(t *testing.T) {
	b := NewBounded[int](5)
	for i := 0; i < 6; i++ {
		b.Push(i)
	}
	if b.Len() != 5 {
		t.Fatalf("len = %d, want 5", b.Len())
	}
	got := b.Values()
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("values = %v, want [1 2 3 4 5]", got)
		}
	}
}

func TestBoundedAllIsRestartable(t *testing.T) {
	b := NewBounded[int](3)
	b.Push(7)
	b.Push(8)
	for pass := 0; pass < 2; pass++ {
		count := 0
		for range b.All() {
			count++
		}
		if count != 2 {
			t.Fatalf("pass %d iterated %d items, want 2", pass, count)
		}
	}
}

func TestBoundedClear(t *testing.T) {
	b := NewBounded[string](2)
	b.Push("a")
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("len after clear = %d", b.Len())
	}
}

func TestRateWindowEviction(t *testing.T) {
	r := NewRate(120_000)
	r.Add(0)
	r.Add(1_000)
	r.Add(100_000)
	if got := r.Count(110_000); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
	// 0 and 1000 fall out of the 2-minute horizon at t=125s.
	if got := r.Count(125_000); got != 1 {
		t.Fatalf("count after eviction = %d, want 1", got)
	}
	if got := r.PerMinute(125_000); got != 0.5 {
		t.Fatalf("per-minute rate = %v, want 0.5", got)
	}
}

func TestRateWindowCompaction(t *testing.T) {
	r := NewRate(10)
	for i := int64(0); i < 100; i++ {
		r.Add(i)
		r.Evict(i)
	}
	if got := r.Count(99); got != 11 {
		t.Fatalf("count = %d, want 11", got)
	}
}
