package malloc

import (
	"fmt"
	"unsafe"
)

// SegFitAllocator is a segregated-fit, boundary-tag explicit-free-list
// allocator over a fixed-capacity arena. It grows a single logical heap
// monotonically within that arena via an internal sbrk-like watermark —
// there is no syscall-backed heap growth in this port, so the arena's
// capacity (chosen at construction) is the allocator's only memory ceiling.
//
// SegFitAllocator is not safe for concurrent use; see package concurrent
// for a lock-wrapped variant.
type SegFitAllocator struct {
	arena []byte
	base  unsafe.Pointer

	brk       int // current heap break, in bytes from arena[0]
	heapStart int // payload pointer of the permanent prologue block

	trail *opTrail // recent-operations ring, consulted by CheckHeap on failure
}

// NewSegFitAllocator creates an allocator whose heap may grow up to
// maxHeapBytes before Allocate/Reallocate start reporting out-of-memory.
func NewSegFitAllocator(maxHeapBytes int) (*SegFitAllocator, error) {
	minRequired := (binCount+4)*wordSize + chunkSize
	if maxHeapBytes < minRequired {
		return nil, fmt.Errorf("malloc: maxHeapBytes must be >= %d (bin heads + sentinels + one chunk), got %d",
			minRequired, maxHeapBytes)
	}

	a := &SegFitAllocator{
		arena: make([]byte, maxHeapBytes),
		trail: newOpTrail(32),
	}
	a.base = unsafe.Pointer(&a.arena[0])

	// The padding between the bin heads and the prologue header is whatever
	// puts the prologue payload (and so every block payload after it) on a
	// dwordSize boundary: none for an odd binCount such as 15, one word for
	// an even one.
	prologueHeaderOff := roundUpTo((binCount+1)*wordSize, dwordSize) - wordSize
	prologueFooterOff := prologueHeaderOff + wordSize
	epilogueOff := prologueFooterOff + wordSize

	a.writeWord(prologueHeaderOff, packSizeAlloc(dwordSize, true))
	a.writeWord(prologueFooterOff, packSizeAlloc(dwordSize, true))
	a.writeWord(epilogueOff, packSizeAlloc(0, true))

	a.brk = epilogueOff + wordSize
	a.heapStart = prologueFooterOff

	if _, ok := a.extendHeap(chunkSize); !ok {
		return nil, fmt.Errorf("malloc: arena too small to extend heap during init")
	}
	return a, nil
}

// heapGrow is the sbrk-like one-way heap growth primitive (spec §6,
// "out of scope" for the core, modeled here as a watermark bump within the
// pre-reserved arena). It returns the start offset of the newly committed
// region, or ok=false if the arena's capacity is exhausted.
func (a *SegFitAllocator) heapGrow(n int) (int, bool) {
	if n <= 0 || a.brk+n > len(a.arena) {
		return 0, false
	}
	old := a.brk
	a.brk += n
	return old, true
}

// extendHeap grows the heap by at least minBytes (rounded up to a whole
// number of word-pairs), installs a new epilogue, and coalesces the new
// free block with whatever free block preceded the old epilogue. It
// returns the (possibly coalesced) free block's payload pointer.
func (a *SegFitAllocator) extendHeap(minBytes int) (int, bool) {
	size := roundUpTo(minBytes, dwordSize)
	oldBrk, ok := a.heapGrow(size)
	if !ok {
		return 0, false
	}

	bp := oldBrk // the old epilogue header occupied [oldBrk-wordSize, oldBrk)
	a.writeBlock(bp, size, false)
	a.insert(bp, size)

	epilogueOff := bp + size - wordSize
	a.writeWord(epilogueOff, packSizeAlloc(0, true))

	return a.coalesce(bp), true
}

// adjustedSize computes the internal block size (asize) for a requested
// payload of size bytes, including the two trace-tuned policy exceptions
// from spec.md §4.4. These are kept bit-for-bit; see DESIGN.md.
func adjustedSize(size int) int {
	var asize int
	if size <= dwordSize {
		asize = minBlockSize
	} else {
		asize = roundUpTo(size, dwordSize) + dwordSize
	}

	if size != 0 && size%128 == 0 && size != 128 {
		asize = dwordSize + size + 128
	}
	if size == 4092 {
		asize = wordSize + chunkSize
	}
	return asize
}

// Allocate returns a payload slice of at least size bytes, or nil if size
// is zero or no memory is available.
func (a *SegFitAllocator) Allocate(size int) []byte {
	defer a.debugCheckHeap()
	if size <= 0 {
		return nil
	}
	a.trail.record(opAllocate, 0, size)

	asize := adjustedSize(size)

	if bp, ok := a.findFit(asize); ok {
		a.place(bp, asize)
		return a.payload(bp, size)
	}

	grow := asize
	if chunkSize > grow {
		grow = chunkSize
	}
	bp, ok := a.extendHeap(grow)
	if !ok {
		return nil
	}
	a.place(bp, asize)
	return a.payload(bp, size)
}

// Free releases block, a slice previously returned by Allocate or
// Reallocate. Free(nil) is a no-op. Freeing anything else is undefined
// behavior.
func (a *SegFitAllocator) Free(block []byte) {
	defer a.debugCheckHeap()
	if block == nil {
		return
	}
	bp := a.offsetOf(block)
	a.trail.record(opFree, bp, 0)

	size := a.sizeAt(headerOffset(bp))
	a.writeBlock(bp, size, false)
	a.insert(bp, size)
	a.coalesce(bp)
}

// Reallocate resizes block to size bytes, per spec.md §4.4: shrink/grow
// in place when the arithmetic allows it, falling back to a fresh
// allocate+copy+free otherwise. See DESIGN.md for the two flagged quirks
// this preserves on purpose (the fallback's copy length, and these
// exceptions' exact constants).
func (a *SegFitAllocator) Reallocate(block []byte, size int) []byte {
	defer a.debugCheckHeap()
	if size == 0 {
		a.Free(block)
		return nil
	}
	if block == nil {
		return a.Allocate(size)
	}

	bp := a.offsetOf(block)
	a.trail.record(opReallocate, bp, size)

	newAsize := roundUpTo(size, dwordSize) + dwordSize
	oldSize := a.sizeAt(headerOffset(bp))
	diff := oldSize - newAsize

	if diff == 0 {
		return a.payload(bp, size)
	}

	if diff > 0 {
		if diff >= minBlockSize {
			a.writeBlock(bp, newAsize, true)
			remBP := bp + newAsize
			a.writeBlock(remBP, diff, false)
			a.insert(remBP, diff)
			a.coalesce(remBP)
		}
		// else: remainder would be smaller than a legal block; leave bp
		// exactly as it was, per spec.md §4.4.
		return a.payload(bp, size)
	}

	// Grow. Try the immediate right neighbor if it is free and big enough.
	need := -diff
	rightBP := a.nextBP(bp)
	if !a.allocAt(headerOffset(rightBP)) {
		nsize := a.sizeAt(headerOffset(rightBP))
		switch {
		case nsize >= need+minBlockSize:
			a.remove(rightBP)
			a.writeBlock(bp, newAsize, true)
			leftover := nsize - need
			leftoverBP := bp + newAsize
			a.writeBlock(leftoverBP, leftover, false)
			a.insert(leftoverBP, leftover)
			return a.payload(bp, size)
		case nsize >= need:
			a.remove(rightBP)
			a.writeBlock(bp, oldSize+nsize, true)
			return a.payload(bp, size)
		}
	}

	// Fallback: allocate fresh, copy, free the old block. The copy length
	// is min(size, oldSize) using the full old block size (including its
	// header/footer overhead), not the old payload size — a deliberately
	// preserved quirk, see DESIGN.md Open Question #2.
	newBlock := a.Allocate(size)
	if newBlock == nil {
		return nil
	}
	copyLen := size
	if oldSize < copyLen {
		copyLen = oldSize
	}
	copy(newBlock, a.arena[bp:bp+copyLen])
	a.Free(block)
	return newBlock
}

// coalesce merges bp with any free immediate neighbor (boundary-tag, the
// four cases of spec.md §4.3) and returns the resulting block's payload
// pointer. Precondition: bp names a block just marked free and already
// inserted into its free list.
func (a *SegFitAllocator) coalesce(bp int) int {
	leftFooterOff := bp - dwordSize
	leftFree := !a.allocAt(leftFooterOff)
	rightBP := a.nextBP(bp)
	rightFree := !a.allocAt(headerOffset(rightBP))
	size := a.sizeAt(headerOffset(bp))

	switch {
	case !leftFree && !rightFree:
		return bp

	case !leftFree && rightFree:
		rightSize := a.sizeAt(headerOffset(rightBP))
		a.remove(bp)
		a.remove(rightBP)
		size += rightSize
		a.writeBlock(bp, size, false)
		a.insert(bp, size)
		return bp

	case leftFree && !rightFree:
		leftSize := a.sizeAt(leftFooterOff)
		leftBP := bp - leftSize
		a.remove(bp)
		a.remove(leftBP)
		size += leftSize
		a.writeBlock(leftBP, size, false)
		a.insert(leftBP, size)
		return leftBP

	default: // both free
		leftSize := a.sizeAt(leftFooterOff)
		leftBP := bp - leftSize
		rightSize := a.sizeAt(headerOffset(rightBP))
		a.remove(bp)
		a.remove(leftBP)
		a.remove(rightBP)
		size += leftSize + rightSize
		a.writeBlock(leftBP, size, false)
		a.insert(leftBP, size)
		return leftBP
	}
}

// place consumes a free block of size >= asize, splitting off and
// reinserting the remainder if it would still be a legal block.
// Precondition: bp is free and its size is >= asize.
func (a *SegFitAllocator) place(bp, asize int) {
	size := a.sizeAt(headerOffset(bp))
	rem := size - asize
	a.remove(bp)
	if rem >= minBlockSize {
		a.writeBlock(bp, asize, true)
		remBP := bp + asize
		a.writeBlock(remBP, rem, false)
		a.insert(remBP, rem)
		return
	}
	a.writeBlock(bp, size, true)
}

// payload returns a slice viewing bp's block, length size, capacity equal
// to the block's full payload span so callers may observe any internal
// growth padding via cap().
func (a *SegFitAllocator) payload(bp, size int) []byte {
	full := a.sizeAt(headerOffset(bp)) - dwordSize
	return a.arena[bp : bp+full : bp+full][:size]
}

// Utilization returns the fraction of the committed heap currently
// allocated, in [0,1], by summing every size-class free list against the
// committed region. Comparable to the same metric on BuddyAllocator and
// BitmapAllocator, so bench_test.go can report placement efficiency
// alongside raw latency for all three allocators.
func (a *SegFitAllocator) Utilization() float64 {
	committed := a.brk - a.heapStart - 2*wordSize // exclude the prologue footer and the epilogue word
	if committed <= 0 {
		return 0
	}
	free := 0
	for k := 0; k < binCount; k++ {
		for bp := a.binHead(k); bp != 0; bp = a.linkNext(bp) {
			free += a.sizeAt(headerOffset(bp))
		}
	}
	used := committed - free
	if used < 0 {
		used = 0
	}
	return float64(used) / float64(committed)
}

// offsetOf recovers the payload pointer (byte offset from the arena base)
// of a slice previously returned by Allocate/Reallocate, using the raw
// slice header rather than indexing block[0] so it also works for
// zero-length allocations.
func (a *SegFitAllocator) offsetOf(block []byte) int {
	dataPtr := *(*uintptr)(unsafe.Pointer(&block))
	return int(dataPtr - uintptr(a.base))
}
