package malloc

import "sync"

// DefaultHeapBytes is the arena capacity used by the package-level
// Init/Allocate/Free/Reallocate functions when no explicit instance is
// constructed — the "default process-wide instance" spec.md §9 calls for
// callers that want the classic single-process C contract, as opposed to
// an allocator instantiated per test via NewSegFitAllocator.
const DefaultHeapBytes = 64 << 20 // 64MB

var (
	defaultOnce  sync.Once
	defaultAlloc *SegFitAllocator
	defaultErr   error
)

// Init constructs the package-wide default allocator. It is idempotent per
// process lifetime: the first call does the work, every later call returns
// the same result.
func Init() error {
	defaultOnce.Do(func() {
		defaultAlloc, defaultErr = NewSegFitAllocator(DefaultHeapBytes)
	})
	return defaultErr
}

// Allocate calls Init if needed and delegates to the default allocator.
func Allocate(size int) []byte {
	if err := Init(); err != nil {
		return nil
	}
	return defaultAlloc.Allocate(size)
}

// Free delegates to the default allocator. Init must have succeeded.
func Free(block []byte) {
	if err := Init(); err != nil {
		return
	}
	defaultAlloc.Free(block)
}

// Reallocate delegates to the default allocator. Init must have succeeded.
func Reallocate(block []byte, size int) []byte {
	if err := Init(); err != nil {
		return nil
	}
	return defaultAlloc.Reallocate(block, size)
}

// CheckHeap delegates to the default allocator's CheckHeap.
func CheckHeap(verbose bool) error {
	if err := Init(); err != nil {
		return err
	}
	return defaultAlloc.CheckHeap(verbose)
}
