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

package ancestors

import (
	"log"

	"github.com/exascience/elthread/haplotypes"
)

// checkState walks the full builder state and panics on any internal
// inconsistency. It runs only in pedantic builds.
func (b *AncestorBuilder) checkState() {
	for frequency := range b.frequencyMap {
		b.frequencyMap[frequency].Range(func(_ []byte, value interface{}) bool {
			entry := value.(*patternMapEntry)
			count := 0
			for _, g := range entry.genotypes {
				if g == haplotypes.Derived {
					count++
				}
			}
			if count != frequency {
				log.Panicf("pattern with %v derived alleles filed under frequency %v", count, frequency)
			}
			count = 0
			for s := entry.sites; s != nil; s = s.next {
				if b.sites[s.site].frequency != frequency {
					log.Panicf("site %v with frequency %v filed under frequency %v", s.site, b.sites[s.site].frequency, frequency)
				}
				if &b.sites[s.site].genotypes[0] != &entry.genotypes[0] {
					log.Panicf("site %v does not share the canonical genotype vector of its pattern", s.site)
				}
				count++
			}
			if count != entry.numSites {
				log.Panicf("pattern lists %v sites but counts %v", count, entry.numSites)
			}
			return true
		})
	}
}
