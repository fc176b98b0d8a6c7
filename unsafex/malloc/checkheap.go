package malloc

import (
	"fmt"
	"log"
)

// CheckHeap walks the heap forward from the prologue and validates every
// block's invariants, then walks each size-class free list validating
// that every member is free and reciprocally linked. It returns the first
// violation found, or nil if none. Intended for development use only —
// see MustCheckHeap for the process-fatal wrapper spec.md §7 describes.
//
// All trace output is gated on verbose; CheckHeap(false) is silent even
// when it finds a violation (resolving the "unconditional output" quirk
// flagged in DESIGN.md).
func (a *SegFitAllocator) CheckHeap(verbose bool) error {
	logf := func(format string, args ...interface{}) {
		if verbose {
			log.Printf(format, args...)
		}
	}

	inFreeList := make(map[int]bool)
	for k := 0; k < binCount; k++ {
		seen := make(map[int]bool)
		for bp := a.binHead(k); bp != 0; bp = a.linkNext(bp) {
			if seen[bp] {
				return a.fail(logf, "class %d: cycle detected at bp=%d", k, bp)
			}
			seen[bp] = true

			if a.allocAt(headerOffset(bp)) {
				return a.fail(logf, "class %d: bp=%d is marked allocated but present in free list", k, bp)
			}
			size := a.sizeAt(headerOffset(bp))
			if got := classOf(size); got != k {
				return a.fail(logf, "bp=%d: size %d belongs in class %d, found in class %d", bp, size, got, k)
			}
			if next := a.linkNext(bp); next != 0 {
				if a.linkPrev(next) != bp {
					return a.fail(logf, "class %d: bp=%d.next=%d but next.prev=%d", k, bp, next, a.linkPrev(next))
				}
			}
			if prev := a.linkPrev(bp); prev != 0 {
				if a.linkNext(prev) != bp {
					return a.fail(logf, "class %d: bp=%d.prev=%d but prev.next=%d", k, bp, prev, a.linkNext(prev))
				}
			}
			inFreeList[bp] = true
		}
	}

	prevAlloc := true // the prologue is permanently allocated
	count := 0
	for bp := a.nextBP(a.heapStart); ; {
		size := a.sizeAt(headerOffset(bp))
		if size == 0 {
			// Epilogue: zero-sized, must be marked allocated.
			if !a.allocAt(headerOffset(bp)) {
				return a.fail(logf, "epilogue at bp=%d is not marked allocated", bp)
			}
			break
		}

		if size%dwordSize != 0 || size < minBlockSize {
			return a.fail(logf, "bp=%d: illegal size %d", bp, size)
		}
		if bp%dwordSize != 0 {
			return a.fail(logf, "bp=%d: payload is not %d-byte aligned", bp, dwordSize)
		}
		header := a.readWord(headerOffset(bp))
		footer := a.readWord(a.footerOffset(bp))
		if header != footer {
			return a.fail(logf, "bp=%d: header(%#x) != footer(%#x)", bp, header, footer)
		}

		alloc := a.allocAt(headerOffset(bp))
		if !alloc {
			if !prevAlloc {
				return a.fail(logf, "bp=%d: adjacent free block to a free predecessor (missed coalesce)", bp)
			}
			if !inFreeList[bp] {
				return a.fail(logf, "bp=%d: free but absent from its size-class free list", bp)
			}
		}
		prevAlloc = alloc
		count++

		logf("block bp=%d size=%d alloc=%v", bp, size, alloc)
		bp = a.nextBP(bp)
	}

	logf("checkheap ok: %d ordinary blocks walked", count)
	return nil
}

func (a *SegFitAllocator) fail(logf func(string, ...interface{}), format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	logf("invariant violation: %s", msg)
	if trail := a.trail.lines(); len(trail) > 0 {
		logf("recent operations (oldest first): %v", trail)
	}
	return fmt.Errorf("malloc: invariant violation: %s", msg)
}

// MustCheckHeap runs CheckHeap and terminates the process if it reports a
// violation, per spec.md §7: invariant violations are not recoverable
// in-place and are reported to a diagnostic sink before being fatal.
func (a *SegFitAllocator) MustCheckHeap(verbose bool) {
	if err := a.CheckHeap(verbose); err != nil {
		log.Fatalf("malloc: %v", err)
	}
}
