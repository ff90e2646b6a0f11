package scheduler

import (
	"container/heap"
	"testing"
	"time"
)

func TestFireQueue_OrdersByTimeThenJobID(t *testing.T) {
	now := time.Now()
	q := &fireQueue{}
	heap.Init(q)

	heap.Push(q, &fireEntry{key: "b", jobID: "b", next: now.Add(time.Second)})
	heap.Push(q, &fireEntry{key: "a", jobID: "a", next: now.Add(time.Second)})
	heap.Push(q, &fireEntry{key: "c", jobID: "c", next: now})

	first := heap.Pop(q).(*fireEntry)
	if first.jobID != "c" {
		t.Errorf("expected earliest time to pop first, got %q", first.jobID)
	}
	second := heap.Pop(q).(*fireEntry)
	if second.jobID != "a" {
		t.Errorf("expected tie broken lexicographically, got %q", second.jobID)
	}
	third := heap.Pop(q).(*fireEntry)
	if third.jobID != "b" {
		t.Errorf("expected %q last, got %q", "b", third.jobID)
	}
}

func TestFireQueue_RemoveMaintainsHeapInvariant(t *testing.T) {
	now := time.Now()
	q := &fireQueue{}
	heap.Init(q)

	entries := []*fireEntry{
		{key: "a", jobID: "a", next: now.Add(1 * time.Second)},
		{key: "b", jobID: "b", next: now.Add(2 * time.Second)},
		{key: "c", jobID: "c", next: now.Add(3 * time.Second)},
	}
	for _, e := range entries {
		heap.Push(q, e)
	}

	heap.Remove(q, entries[1].index)

	if q.Len() != 2 {
		t.Fatalf("expected 2 entries remaining, got %d", q.Len())
	}
	first := heap.Pop(q).(*fireEntry)
	if first.jobID != "a" {
		t.Errorf("expected 'a' first after removal, got %q", first.jobID)
	}
}
