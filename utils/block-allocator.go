// elThread: a high-performance library for ancestral haplotype inference.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elthread/blob/master/LICENSE.txt>.

// Package utils provides common utility data structures for the
// elThread library.
package utils

import "log"

// A BlockAllocator serves many small byte-slice allocations from large
// chunks, with a single bulk release. Slices handed out by Get are never
// individually reclaimed; they stay valid until Free is called on the
// allocator that produced them.
//
// The ancestor builder allocates one canonical genotype vector per
// distinct site pattern from a BlockAllocator. These allocations are
// tiny and extremely numerous, and all share the lifetime of the builder.
type BlockAllocator struct {
	chunkSize int
	current   []byte
	allocated int
}

// NewBlockAllocator returns a block allocator that requests memory from
// the runtime in chunks of the given size.
func NewBlockAllocator(chunkSize int) *BlockAllocator {
	if chunkSize <= 0 {
		log.Panicf("invalid block allocator chunk size %v", chunkSize)
	}
	return &BlockAllocator{chunkSize: chunkSize}
}

// Get returns a zeroed byte slice of length n carved out of the current
// chunk. Requests larger than the chunk size get a dedicated chunk.
func (a *BlockAllocator) Get(n int) []byte {
	if n < 0 {
		log.Panicf("invalid block allocator request size %v", n)
	}
	a.allocated += n
	if n > a.chunkSize {
		return make([]byte, n)
	}
	if n > len(a.current) {
		a.current = make([]byte, a.chunkSize)
	}
	result := a.current[:n:n]
	a.current = a.current[n:]
	return result
}

// Allocated returns the total number of bytes handed out by Get since the
// allocator was created or last freed.
func (a *BlockAllocator) Allocated() int {
	return a.allocated
}

// Free drops the allocator's reference to its current chunk and resets
// the accounting. Slices previously returned by Get remain alive for as
// long as the caller holds on to them.
func (a *BlockAllocator) Free() {
	a.current = nil
	a.allocated = 0
}
