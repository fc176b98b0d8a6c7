package malloc

import (
	"fmt"

	"github.com/segfit/segalloc/container/ring"
)

// opKind identifies which public entry point produced an opRecord.
type opKind uint8

const (
	opAllocate opKind = iota
	opFree
	opReallocate
)

func (k opKind) String() string {
	switch k {
	case opAllocate:
		return "Allocate"
	case opFree:
		return "Free"
	case opReallocate:
		return "Reallocate"
	default:
		return "?"
	}
}

// opRecord is one entry in an allocator's recent-operations trail.
type opRecord struct {
	kind opKind
	bp   int // payload offset passed to Free/Reallocate; 0 for Allocate
	size int // requested size; 0 for Free
	set  bool
}

// opTrail is a fixed-capacity, overwrite-oldest log of recent allocator
// operations, consulted by CheckHeap when it reports an invariant
// violation so the diagnostic sink can show what led to it. Built on
// container/ring's GC-friendly fixed ring: the log itself is allocated
// once and never grows, just like the arena it describes.
type opTrail struct {
	r      *ring.Ring[opRecord]
	cursor int
}

func newOpTrail(capacity int) *opTrail {
	if capacity <= 0 {
		capacity = 1
	}
	return &opTrail{r: ring.NewFromSlice(make([]opRecord, capacity))}
}

func (t *opTrail) record(kind opKind, bp, size int) {
	if t == nil || t.r.Len() == 0 {
		return
	}
	item, _ := t.r.Get(t.cursor)
	*item.Pointer() = opRecord{kind: kind, bp: bp, size: size, set: true}
	t.cursor++
	if t.cursor >= t.r.Len() {
		t.cursor = 0
	}
}

// lines renders the trail in the order operations occurred, oldest first.
// t.cursor names the oldest live slot (the one the next record() will
// overwrite), so walking the ring forward from there via ForEachFrom visits
// every entry in chronological order.
func (t *opTrail) lines() []string {
	if t == nil || t.r.Len() == 0 {
		return nil
	}
	out := make([]string, 0, t.r.Len())
	t.r.ForEachFrom(t.cursor, func(_ int, rec *opRecord) bool {
		if rec.set {
			switch rec.kind {
			case opFree:
				out = append(out, fmt.Sprintf("Free(bp=%d)", rec.bp))
			case opReallocate:
				out = append(out, fmt.Sprintf("Reallocate(bp=%d, size=%d)", rec.bp, rec.size))
			default:
				out = append(out, fmt.Sprintf("Allocate(size=%d)", rec.size))
			}
		}
		return true
	})
	return out
}
