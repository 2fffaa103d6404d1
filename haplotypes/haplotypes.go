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

// Package haplotypes defines the shared data model for binary
// haplotypes sampled at variant sites along a linear genome, and the
// immutable reference panels that the threading algorithms copy from.
//
// Alleles are strictly binary: 0 for the ancestral state, 1 for the
// derived state. The marker value Unknown (0xff) stands for sites where
// an ancestral haplotype has no defined state.
package haplotypes

// An Allele is the state of a haplotype at a single variant site.
type Allele = byte

const (
	// Ancestral is the ancestral (reference) state.
	Ancestral Allele = 0

	// Derived is the derived (alternative) state.
	Derived Allele = 1

	// Unknown marks sites at which a haplotype has no defined state.
	Unknown Allele = 0xff
)

// An alleleMatrix is a dense row-major matrix of alleles. Rows are
// haplotypes, columns are sites.
type alleleMatrix struct {
	cols  int
	array []Allele
}

func makeAlleleMatrix(rows, cols int) alleleMatrix {
	return alleleMatrix{
		cols:  cols,
		array: make([]Allele, rows*cols),
	}
}

// note: it's important to get the row views for performance
func (m *alleleMatrix) rowView(row int) []Allele {
	offset := row * m.cols
	return m.array[offset : offset+m.cols]
}
