/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package allocpool pools *malloc.SegFitAllocator instances keyed by arena
// capacity, so a benchmark or stress test that repeatedly needs a
// multi-megabyte arena doesn't pay for a fresh one (and its mandatory
// extendHeap chunk) every iteration. It reuses the power-of-two
// size-classed sync.Pool indexing idiom cache/mempool uses for raw
// byte buffers, applied here to whole allocator instances instead.
package allocpool

import (
	"math/bits"
	"sync"

	"github.com/segfit/segalloc/unsafex/malloc"
)

type allocatorPool struct {
	sync.Pool

	Capacity int
}

const (
	minPoolCapacity = 64 << 10  // 64KB, the smallest arena Get ever hands back
	maxPoolCapacity = 1 << 30   // 1GB, Get panics above this
)

var pools []*allocatorPool

// bits2idx maps bits.Len(capacity) to the index of `pools`, mirroring
// cache/mempool's bits2idx.
var bits2idx [64]int

func init() {
	i := 0
	for sz := minPoolCapacity; sz <= maxPoolCapacity; sz <<= 1 {
		p := &allocatorPool{Capacity: sz}
		cap := sz
		p.New = func() interface{} {
			a, err := malloc.NewSegFitAllocator(cap)
			if err != nil {
				panic(err) // cap is always >= minPoolCapacity, construction cannot fail
			}
			return a
		}
		pools = append(pools, p)
		bits2idx[bits.Len(uint(p.Capacity))] = i
		i++
	}
}

func poolIndex(capacity int) int {
	if capacity <= minPoolCapacity {
		return 0
	}
	if capacity > maxPoolCapacity {
		return len(pools)
	}
	i := bits2idx[bits.Len(uint(capacity))]
	if uint(capacity)&(uint(capacity)-1) == 0 {
		return i
	}
	return i + 1
}

// Get returns a *malloc.SegFitAllocator whose arena capacity is at least
// minCapacity. The allocator may carry allocations left over from a prior
// borrower's incomplete cleanup; callers that need a pristine allocator
// must Free everything they allocated before calling Put.
func Get(minCapacity int) *malloc.SegFitAllocator {
	if minCapacity <= 0 {
		minCapacity = minPoolCapacity
	}
	i := poolIndex(minCapacity)
	if i >= len(pools) {
		panic("allocpool: requested capacity exceeds maxPoolCapacity")
	}
	return pools[i].Get().(*malloc.SegFitAllocator)
}

// Put returns a into the pool sized for its construction capacity. Passing
// an allocator not obtained from Get is undefined behavior.
func Put(a *malloc.SegFitAllocator, capacity int) {
	i := poolIndex(capacity)
	if i < len(pools) && pools[i].Capacity == capacity {
		pools[i].Put(a)
	}
}
