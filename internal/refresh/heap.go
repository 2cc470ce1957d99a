package refresh

import (
	"context"
	"time"
)

// job is one resource's recurring refresh.
type job struct {
	resourceID string
	next       time.Time
	interval   time.Duration
	run        func(ctx context.Context)
	index      int // index in the heap (for heap.Interface)
}

// jobHeap is a min-heap of jobs ordered by next run time
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	return h[i].next.Before(h[j].next)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}
