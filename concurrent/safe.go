// Package concurrent provides a lock-wrapped variant of
// malloc.SegFitAllocator for callers that share one arena across
// goroutines. spec.md §5 documents the core allocator's single exclusive
// lock discipline as the expected concurrency model rather than making
// the core type itself thread-safe; SafeAllocator is that documented
// wrapper.
package concurrent

import (
	"sync"

	"github.com/segfit/segalloc/unsafex/malloc"
)

// SafeAllocator wraps a *malloc.SegFitAllocator with a single exclusive
// mutex, serializing every mutating and read-only call. It trades away
// the core allocator's single-threaded throughput for safe concurrent use.
type SafeAllocator struct {
	mu sync.Mutex
	a  *malloc.SegFitAllocator
}

// NewSafeAllocator wraps an existing allocator. The caller must not use a
// concurrently from anywhere other than the returned SafeAllocator.
func NewSafeAllocator(a *malloc.SegFitAllocator) *SafeAllocator {
	return &SafeAllocator{a: a}
}

// New constructs a fresh SegFitAllocator and wraps it, per
// malloc.NewSegFitAllocator's maxHeapBytes contract.
func New(maxHeapBytes int) (*SafeAllocator, error) {
	a, err := malloc.NewSegFitAllocator(maxHeapBytes)
	if err != nil {
		return nil, err
	}
	return NewSafeAllocator(a), nil
}

func (s *SafeAllocator) Allocate(size int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Allocate(size)
}

func (s *SafeAllocator) Free(block []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.a.Free(block)
}

func (s *SafeAllocator) Reallocate(block []byte, size int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.Reallocate(block, size)
}

// CheckHeap takes the same lock as every mutating call, so it observes a
// heap no concurrent Allocate/Free/Reallocate can be mutating mid-check.
func (s *SafeAllocator) CheckHeap(verbose bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.a.CheckHeap(verbose)
}
