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

package utils

import "testing"

func TestBlockAllocatorGet(t *testing.T) {
	a := NewBlockAllocator(64)
	s1 := a.Get(10)
	s2 := a.Get(20)
	if len(s1) != 10 || len(s2) != 20 {
		t.Error("Get returned wrong lengths")
	}
	for i := range s1 {
		s1[i] = 1
	}
	for i := range s2 {
		s2[i] = 2
	}
	if s1[9] != 1 || s2[0] != 2 {
		t.Error("allocations overlap")
	}
	s3 := a.Get(64)
	for _, b := range s3 {
		if b != 0 {
			t.Error("Get returned non-zero memory")
		}
	}
	if s1[9] != 1 || s2[19] != 2 {
		t.Error("new chunk clobbered earlier allocations")
	}
}

func TestBlockAllocatorAppendSafety(t *testing.T) {
	a := NewBlockAllocator(64)
	s1 := a.Get(8)
	s2 := a.Get(8)
	s1 = append(s1, 9)
	if s2[0] != 0 {
		t.Error("append to one allocation clobbered the next")
	}
}

func TestBlockAllocatorOversized(t *testing.T) {
	a := NewBlockAllocator(64)
	small := a.Get(10)
	big := a.Get(1000)
	if len(big) != 1000 {
		t.Error("oversized Get returned wrong length")
	}
	next := a.Get(10)
	for i := range small {
		small[i] = 1
	}
	for i := range next {
		next[i] = 2
	}
	for _, b := range big {
		if b != 0 {
			t.Error("oversized allocation overlaps chunk allocations")
		}
	}
}

func TestBlockAllocatorAccounting(t *testing.T) {
	a := NewBlockAllocator(64)
	a.Get(10)
	a.Get(20)
	a.Get(1000)
	if a.Allocated() != 1030 {
		t.Error("Allocated accounting wrong")
	}
	a.Free()
	if a.Allocated() != 0 {
		t.Error("Free did not reset accounting")
	}
	if len(a.Get(5)) != 5 {
		t.Error("Get after Free failed")
	}
}
