//go:build segalloc_debug

package malloc

// When built with -tags segalloc_debug, every mutating call runs
// MustCheckHeap(true) afterward. This mirrors the original implementation's
// debug-build convention (full heap walk after every mutation) without
// paying for it in normal builds — see SPEC_FULL.md §4.
const debugCheckHeapEnabled = true

func (a *SegFitAllocator) debugCheckHeap() {
	a.MustCheckHeap(true)
}
