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

// Package threading computes copying paths for query haplotypes under
// the Li-Stephens model.
//
// The hidden states of the model are the rows of a reference panel; a
// transition between different rows is a recombination whose probability
// depends on the genomic distance between adjacent sites, and a mismatch
// between the copied row and the query is a mutation. Viterbi decoding
// yields, per query, the most likely piecewise-constant copying path and
// the residual mutation sites.
package threading

import (
	"errors"
	"fmt"
	"math"

	"github.com/exascience/elthread/haplotypes"
	"github.com/willf/bitset"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidArgument is wrapped by all errors that report a violated
// precondition.
var ErrInvalidArgument = errors.New("invalid argument")

// Traceback variants selectable per run. Both produce identical paths,
// mutations and traceback matrices.
const (
	// AlgorithmDense writes the traceback matrix cell by cell during
	// the forward pass.
	AlgorithmDense = 0

	// AlgorithmCompressed records one switch target and one switched-row
	// bit set per site, and expands them into the traceback matrix after
	// the forward pass. This keeps the working set of the forward pass
	// small when the panel is large.
	AlgorithmCompressed = 1
)

type int32Matrix struct {
	cols  int
	array []int32
}

func makeInt32Matrix(rows, cols int) int32Matrix {
	return int32Matrix{
		cols:  cols,
		array: make([]int32, rows*cols),
	}
}

func (m *int32Matrix) rowView(row int) []int32 {
	offset := row * m.cols
	return m.array[offset : offset+m.cols]
}

// A Threader runs Viterbi decoding for one query at a time against a
// prefix of a reference panel.
//
// A Threader owns a traceback matrix that every Run overwrites, so a
// single Threader must not run concurrently with itself. Any number of
// Threaders may share one panel; see RunBatch.
type Threader struct {
	panel     *haplotypes.ReferencePanel
	traceback int32Matrix
	v, vNext  []float64
}

// NewThreader creates a threader over the given panel.
func NewThreader(panel *haplotypes.ReferencePanel) *Threader {
	numHaplotypes := panel.NumHaplotypes()
	return &Threader{
		panel:     panel,
		traceback: makeInt32Matrix(numHaplotypes, panel.NumSites()),
		v:         make([]float64, numHaplotypes),
		vNext:     make([]float64, numHaplotypes),
	}
}

// Traceback returns row views of the (NumHaplotypes x NumSites)
// traceback matrix populated by the last Run. Entry (h, l) is the row
// copied at site l-1 on the optimal path that copies row h at site l;
// an entry equal to its own row index means no switch. The views must
// not be modified.
func (t *Threader) Traceback() [][]int32 {
	rows := make([][]int32, t.panel.NumHaplotypes())
	for j := range rows {
		rows[j] = t.traceback.rowView(j)
	}
	return rows
}

// emission returns the log-likelihood contribution of observing the
// query allele while copying the given panel allele. Unknown panel
// alleles never match.
func emission(panelAllele, queryAllele haplotypes.Allele, logError float64) float64 {
	if panelAllele == queryAllele && panelAllele != haplotypes.Unknown {
		return 0
	}
	return logError
}

// Run threads the query haplotype at haplotypeIndex through the first
// panelSize rows of the panel, under the given per-unit-distance
// recombination rate and per-site error probability. It fills path with
// the copied row per site and returns the sites at which the copied row
// disagrees with the query, in ascending order.
//
// When several predecessors are equally likely, the lowest panel index
// wins; the result is fully deterministic for fixed inputs.
func (t *Threader) Run(haplotypeIndex, panelSize int, recombinationRate, errorProbability float64, path []int32, algorithm int) ([]int32, error) {
	panel := t.panel
	numSites := panel.NumSites()
	if haplotypeIndex < 0 || haplotypeIndex >= panel.NumHaplotypes() {
		return nil, fmt.Errorf("%w: haplotype index %v out of range [0, %v)", ErrInvalidArgument, haplotypeIndex, panel.NumHaplotypes())
	}
	if panelSize < 1 || panelSize > panel.NumHaplotypes() {
		return nil, fmt.Errorf("%w: panel size %v out of range [1, %v]", ErrInvalidArgument, panelSize, panel.NumHaplotypes())
	}
	if len(path) != numSites {
		return nil, fmt.Errorf("%w: path buffer has %v entries, expected %v", ErrInvalidArgument, len(path), numSites)
	}
	if !(recombinationRate > 0) {
		return nil, fmt.Errorf("%w: recombination rate %v must be positive", ErrInvalidArgument, recombinationRate)
	}
	if !(errorProbability > 0 && errorProbability < 0.5) {
		return nil, fmt.Errorf("%w: error probability %v out of range (0, 0.5)", ErrInvalidArgument, errorProbability)
	}
	if algorithm != AlgorithmDense && algorithm != AlgorithmCompressed {
		return nil, fmt.Errorf("%w: unknown algorithm %v", ErrInvalidArgument, algorithm)
	}

	rows := panel.Haplotypes()
	positions := panel.Positions()
	query := rows[haplotypeIndex]
	logError := math.Log(errorProbability)
	k := panelSize

	for i := range t.traceback.array {
		t.traceback.array[i] = 0
	}
	var switchTargets []int32
	var switchedRows []*bitset.BitSet
	if algorithm == AlgorithmCompressed {
		switchTargets = make([]int32, numSites)
		switchedRows = make([]*bitset.BitSet, numSites)
	}

	v := t.v[:k]
	vNext := t.vNext[:k]
	for j := 0; j < k; j++ {
		v[j] = emission(rows[j][0], query[0], logError)
		if algorithm == AlgorithmDense {
			t.traceback.rowView(j)[0] = int32(j)
		}
	}
	floats.AddConst(-floats.Max(v), v)

	for l := 1; l < numSites; l++ {
		// positions is padded with the virtual boundary entries, so
		// site l sits at positions[l+1].
		gap := positions[l+1] - positions[l]
		recombination := -math.Expm1(-recombinationRate * gap)
		logNoSwitch := math.Log1p(recombination/float64(k) - recombination)
		logSwitch := math.Log(recombination / float64(k))

		// MaxIdx returns the first maximal index, so ties among switch
		// targets already resolve to the lowest row.
		bestRow := floats.MaxIdx(v)
		switchScore := v[bestRow] + logSwitch

		var switched *bitset.BitSet
		if algorithm == AlgorithmCompressed {
			switched = bitset.New(uint(k))
			switchTargets[l] = int32(bestRow)
			switchedRows[l] = switched
		}
		for j := 0; j < k; j++ {
			stay := v[j] + logNoSwitch
			score := stay
			predecessor := j
			if switchScore > stay || (switchScore == stay && bestRow < j) {
				score = switchScore
				predecessor = bestRow
			}
			vNext[j] = score + emission(rows[j][l], query[l], logError)
			if algorithm == AlgorithmDense {
				t.traceback.rowView(j)[l] = int32(predecessor)
			} else if predecessor != j {
				switched.Set(uint(j))
			}
		}
		floats.AddConst(-floats.Max(vNext), vNext)
		v, vNext = vNext, v
	}

	if algorithm == AlgorithmCompressed {
		for j := 0; j < k; j++ {
			row := t.traceback.rowView(j)
			row[0] = int32(j)
			for l := 1; l < numSites; l++ {
				if switchedRows[l].Test(uint(j)) {
					row[l] = switchTargets[l]
				} else {
					row[l] = int32(j)
				}
			}
		}
	}

	p := floats.MaxIdx(v)
	path[numSites-1] = int32(p)
	for l := numSites - 1; l > 0; l-- {
		p = int(t.traceback.rowView(p)[l])
		path[l-1] = int32(p)
	}

	mutations := make([]int32, 0, numSites)
	for l := 0; l < numSites; l++ {
		if rows[path[l]][l] != query[l] {
			mutations = append(mutations, int32(l))
		}
	}
	return mutations, nil
}
