//go:build !segalloc_debug

package malloc

const debugCheckHeapEnabled = false

// debugCheckHeap is a no-op in normal builds; see malloc_debug.go.
func (a *SegFitAllocator) debugCheckHeap() {}
