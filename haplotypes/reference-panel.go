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

package haplotypes

import (
	"fmt"

	"github.com/exascience/pargo/parallel"
)

// A ReferencePanel holds the haplotypes that queries are threaded
// through, together with the genomic positions of its sites. It is
// immutable after construction and can therefore be shared by any number
// of concurrent threaders.
//
// The panel contains two more haplotypes than the observed samples: row
// NumSamples is a synthetic all-ancestral haplotype and row NumSamples+1
// a synthetic all-derived haplotype. They anchor the copying model at
// the extremes. The position axis is likewise padded with virtual
// boundary entries at 0 and at the sequence length, so Positions has
// NumSites+2 entries with the observed positions at indices 1..NumSites.
type ReferencePanel struct {
	numSamples     int
	numSites       int
	numHaplotypes  int
	sequenceLength float64
	haplotypes     alleleMatrix
	positions      []float64
}

// NewReferencePanel creates a reference panel from the given row-major
// (numSamples x numSites) haplotype matrix, the genomic positions of the
// sites, and the total length of the modeled segment.
func NewReferencePanel(haps []Allele, numSamples, numSites int, positions []float64, sequenceLength float64) (*ReferencePanel, error) {
	if numSamples < 1 {
		return nil, fmt.Errorf("reference panel needs at least one haplotype, got %v", numSamples)
	}
	if numSites < 1 {
		return nil, fmt.Errorf("reference panel needs at least one site, got %v", numSites)
	}
	if len(haps) != numSamples*numSites {
		return nil, fmt.Errorf("haplotype matrix has %v entries, expected %v x %v", len(haps), numSamples, numSites)
	}
	if len(positions) != numSites {
		return nil, fmt.Errorf("positions has %v entries, expected %v", len(positions), numSites)
	}
	if sequenceLength <= 0 {
		return nil, fmt.Errorf("invalid sequence length %v", sequenceLength)
	}
	previous := 0.0
	for l, pos := range positions {
		if pos <= previous || pos >= sequenceLength {
			return nil, fmt.Errorf("site %v at position %v outside the strictly increasing range (%v, %v)", l, pos, previous, sequenceLength)
		}
		previous = pos
	}
	for _, a := range haps {
		if a != Ancestral && a != Derived && a != Unknown {
			return nil, fmt.Errorf("invalid allele value %v in the haplotype matrix", a)
		}
	}
	panel := &ReferencePanel{
		numSamples:     numSamples,
		numSites:       numSites,
		numHaplotypes:  numSamples + 2,
		sequenceLength: sequenceLength,
		haplotypes:     makeAlleleMatrix(numSamples+2, numSites),
		positions:      make([]float64, numSites+2),
	}
	parallel.Range(0, numSamples, 0, func(low, high int) {
		for j := low; j < high; j++ {
			copy(panel.haplotypes.rowView(j), haps[j*numSites:(j+1)*numSites])
		}
	})
	allDerived := panel.haplotypes.rowView(numSamples + 1)
	for l := range allDerived {
		allDerived[l] = Derived
	}
	copy(panel.positions[1:], positions)
	panel.positions[numSites+1] = sequenceLength
	return panel, nil
}

// NumSamples returns the number of observed haplotypes in the panel.
func (p *ReferencePanel) NumSamples() int {
	return p.numSamples
}

// NumSites returns the number of variant sites in the panel.
func (p *ReferencePanel) NumSites() int {
	return p.numSites
}

// NumHaplotypes returns the number of haplotype rows, including the two
// synthetic anchors.
func (p *ReferencePanel) NumHaplotypes() int {
	return p.numHaplotypes
}

// SequenceLength returns the length of the modeled segment.
func (p *ReferencePanel) SequenceLength() float64 {
	return p.sequenceLength
}

// Haplotype returns the allele row of the given haplotype. The returned
// slice is a view into the panel and must not be modified.
func (p *ReferencePanel) Haplotype(index int) []Allele {
	return p.haplotypes.rowView(index)
}

// Haplotypes returns row views of the full (NumHaplotypes x NumSites)
// matrix. The rows must not be modified.
func (p *ReferencePanel) Haplotypes() [][]Allele {
	rows := make([][]Allele, p.numHaplotypes)
	for j := range rows {
		rows[j] = p.haplotypes.rowView(j)
	}
	return rows
}

// Positions returns the padded position axis of length NumSites+2. The
// returned slice must not be modified.
func (p *ReferencePanel) Positions() []float64 {
	return p.positions
}
