package malloc

import "math/bits"

// classOf returns the segregated-fit size class for a block of size bytes:
// the smallest k such that size <= sizeClassBound<<k, or binCount-1 if no
// such k exists. Runs in time proportional to log2(binCount), via
// math/bits.Len rather than a linear scan.
func classOf(size int) int {
	if size <= sizeClassBound {
		return 0
	}
	ratio := (size + sizeClassBound - 1) / sizeClassBound
	class := bits.Len(uint(ratio - 1))
	if class >= binCount {
		return binCount - 1
	}
	return class
}

// Free-list links are stored in the first two words of a free block's
// payload: next at offset 0, prev at offset wordSize. An offset of 0 is the
// null sentinel — no ordinary block ever starts at offset 0, since the bin
// heads and the prologue always precede it.

func (a *SegFitAllocator) linkNext(bp int) int {
	return int(a.readWord(bp))
}

func (a *SegFitAllocator) linkPrev(bp int) int {
	return int(a.readWord(bp + wordSize))
}

func (a *SegFitAllocator) setLinkNext(bp, v int) {
	a.writeWord(bp, uint64(v))
}

func (a *SegFitAllocator) setLinkPrev(bp, v int) {
	a.writeWord(bp+wordSize, uint64(v))
}

// binHead returns the first free block of class k, or 0 if the class is
// empty. Bin heads live in the first binCount words of the heap itself.
func (a *SegFitAllocator) binHead(k int) int {
	return int(a.readWord(k * wordSize))
}

func (a *SegFitAllocator) setBinHead(k, bp int) {
	a.writeWord(k*wordSize, uint64(bp))
}

// insert pushes bp to the front (LIFO) of the free list for its size class.
// Precondition: bp's header already marks it free and it is not currently
// linked into any list.
func (a *SegFitAllocator) insert(bp, size int) {
	k := classOf(size)
	head := a.binHead(k)
	a.setLinkNext(bp, head)
	a.setLinkPrev(bp, 0)
	if head != 0 {
		a.setLinkPrev(head, bp)
	}
	a.setBinHead(k, bp)
}

// remove unlinks bp from whatever free list it currently belongs to. The
// class is recomputed from the block's current header size rather than
// cached, per the component's contract.
func (a *SegFitAllocator) remove(bp int) {
	size := a.sizeAt(headerOffset(bp))
	k := classOf(size)
	prev := a.linkPrev(bp)
	next := a.linkNext(bp)
	if prev != 0 {
		a.setLinkNext(prev, next)
	} else {
		a.setBinHead(k, next)
	}
	if next != 0 {
		a.setLinkPrev(next, prev)
	}
}

// findFit scans the free list for classOf(asize), then each larger class in
// ascending order, returning the first block whose size is >= asize.
// First-fit within a class; classes are only ascended once the current one
// is exhausted.
func (a *SegFitAllocator) findFit(asize int) (int, bool) {
	for k := classOf(asize); k < binCount; k++ {
		for bp := a.binHead(k); bp != 0; bp = a.linkNext(bp) {
			if a.sizeAt(headerOffset(bp)) >= asize {
				return bp, true
			}
		}
	}
	return 0, false
}
