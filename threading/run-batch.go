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

package threading

import (
	"github.com/exascience/elthread/haplotypes"
	"github.com/exascience/pargo/parallel"
)

// A Request asks for one query haplotype to be threaded through a panel
// prefix of the given size.
type Request struct {
	HaplotypeIndex int
	PanelSize      int
}

// A Result holds the copying path and the residual mutation sites for
// one request.
type Result struct {
	Path      []int32
	Mutations []int32
}

// RunBatch threads many queries through the same panel concurrently.
// Each worker uses a private Threader, since a Threader must not run
// concurrently with itself. Results are returned in request order.
func RunBatch(panel *haplotypes.ReferencePanel, requests []Request, recombinationRate, errorProbability float64, algorithm int) ([]Result, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	results := make([]Result, len(requests))
	errs := make([]error, len(requests))
	parallel.Range(0, len(requests), 0, func(low, high int) {
		threader := NewThreader(panel)
		for i := low; i < high; i++ {
			request := requests[i]
			path := make([]int32, panel.NumSites())
			mutations, err := threader.Run(request.HaplotypeIndex, request.PanelSize, recombinationRate, errorProbability, path, algorithm)
			if err != nil {
				errs[i] = err
				continue
			}
			results[i] = Result{Path: path, Mutations: mutations}
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
