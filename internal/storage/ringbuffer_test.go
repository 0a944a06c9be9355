package storage

import (
	"slices"
	"testing"
)

func TestRingBufferAddAndEvict(t *testing.T) {
	rb := NewRingBuffer[string](2)

	if _, evicted := rb.Add("first"); evicted {
		t.Fatal("nothing should be evicted below capacity")
	}
	rb.Add("second")

	old, evicted := rb.Add("third")
	if !evicted || old != "first" {
		t.Fatalf("expected 'first' evicted, got %q (evicted=%v)", old, evicted)
	}
	old, _ = rb.Add("fourth")
	if old != "second" {
		t.Fatalf("expected 'second' evicted, got %q", old)
	}

	if got := rb.All(); !slices.Equal(got, []string{"third", "fourth"}) {
		t.Errorf("expected [third fourth], got %v", got)
	}
	if rb.Len() != 2 || rb.Cap() != 2 || rb.Next() != 4 {
		t.Errorf("unexpected len/cap/next: %d/%d/%d", rb.Len(), rb.Cap(), rb.Next())
	}
}

func TestRingBufferNewest(t *testing.T) {
	rb := NewRingBuffer[int](3)
	if _, ok := rb.Newest(); ok {
		t.Fatal("empty buffer has no newest item")
	}
	for i := 1; i <= 5; i++ {
		rb.Add(i)
		if got, ok := rb.Newest(); !ok || got != i {
			t.Fatalf("after adding %d, newest is %d (ok=%v)", i, got, ok)
		}
	}
}

func TestRingBufferSince(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 0; i < 7; i++ {
		rb.Add(i * 10)
	}
	// Positions 4, 5, 6 hold 40, 50, 60.

	tests := []struct {
		pos  int
		want []int
	}{
		{0, []int{40, 50, 60}},
		{4, []int{40, 50, 60}},
		{5, []int{50, 60}},
		{6, []int{60}},
		{7, nil},
		{100, nil},
	}
	for _, tt := range tests {
		if got := rb.Since(tt.pos); !slices.Equal(got, tt.want) {
			t.Errorf("Since(%d) = %v, want %v", tt.pos, got, tt.want)
		}
	}
}

func TestRingBufferResetKeepsPositions(t *testing.T) {
	rb := NewRingBuffer[int](3)
	rb.Add(1)
	rb.Add(2)

	rb.Reset()
	if rb.Len() != 0 || rb.All() != nil {
		t.Fatalf("expected empty buffer after reset, got %v", rb.All())
	}
	if rb.Next() != 2 {
		t.Fatalf("expected next position 2 after reset, got %d", rb.Next())
	}

	rb.Add(3)
	rb.Add(4)
	rb.Add(5)
	if got := rb.All(); !slices.Equal(got, []int{3, 4, 5}) {
		t.Errorf("expected [3 4 5], got %v", got)
	}
	if got := rb.Since(3); !slices.Equal(got, []int{4, 5}) {
		t.Errorf("expected [4 5] since position 3, got %v", got)
	}
	if got := rb.Since(0); !slices.Equal(got, []int{3, 4, 5}) {
		t.Errorf("positions from before the reset should clamp, got %v", got)
	}
}

func TestRingBufferAllIsCopy(t *testing.T) {
	rb := NewRingBuffer[int](2)
	rb.Add(1)
	all := rb.All()
	all[0] = 99
	if got := rb.All(); got[0] != 1 {
		t.Errorf("mutating All() result changed the buffer: %v", got)
	}
}

func TestRingBufferZeroCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero capacity")
		}
	}()
	NewRingBuffer[int](0)
}
