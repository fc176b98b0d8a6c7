// Package malloc implements dynamic-memory allocators over a fixed-size
// []byte arena: supplied by the caller for BuddyAllocator and
// BitmapAllocator, allocated by NewSegFitAllocator for SegFitAllocator.
//
// SegFitAllocator is the package's primary allocator: a segregated-fit,
// boundary-tag explicit-free-list allocator in the classic mold (prologue
// and epilogue sentinels, in-band free-list links, first-fit placement with
// splitting, immediate boundary-tag coalescing on free). BuddyAllocator and
// BitmapAllocator are alternate strategies kept for comparison — see
// bench_test.go.
package malloc
