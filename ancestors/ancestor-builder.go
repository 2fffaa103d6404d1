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

// Package ancestors synthesizes putative ancestral haplotypes from a
// panel of observed genotypes.
//
// Sites are grouped by derived-allele frequency and deduplicated by
// genotype pattern. Each distinct pattern anchors ancestors at its focal
// sites; the states of an ancestor at older sites are filled in by a
// consensus-propagation procedure over the samples that carry the focal
// mutation.
package ancestors

import (
	"errors"
	"fmt"

	"github.com/exascience/elthread/haplotypes"
	"github.com/exascience/elthread/internal"
	"github.com/exascience/elthread/utils"
	"github.com/exascience/pargo/parallel"
	"github.com/willf/bitset"
)

// ErrInvalidArgument is wrapped by all errors that report a violated
// precondition.
var ErrInvalidArgument = errors.New("invalid argument")

const allocatorChunkSize = 1024 * 1024

// A site is one column of the genotype matrix. Sites with identical
// genotype patterns share the same canonical genotypes slice.
type site struct {
	frequency int
	genotypes []haplotypes.Allele
}

// siteListNode links the sites that share a genotype pattern, in reverse
// order of addition.
type siteListNode struct {
	site int
	next *siteListNode
}

// A patternMapEntry is the canonical record for one distinct genotype
// pattern within a frequency bucket.
type patternMapEntry struct {
	genotypes []haplotypes.Allele
	numSites  int
	sites     *siteListNode
}

// An AncestorDescriptor identifies one ancestor to be generated: the
// derived-allele frequency of its focal sites, and the focal sites
// themselves in ascending order. The current policy emits exactly one
// focal site per descriptor.
type AncestorDescriptor struct {
	Frequency  int
	FocalSites []int
}

// An Ancestor is a fully materialized ancestral haplotype. Entries
// outside [Start, End) are Unknown.
type Ancestor struct {
	Frequency  int
	FocalSites []int
	Start, End int
	Haplotype  []haplotypes.Allele
}

// An AncestorBuilder ingests per-site genotype columns and produces
// ancestral haplotypes ordered by age.
//
// The builder is filled site by site with AddSite, finalised once with
// Finalise, and then queried with MakeAncestor or MakeAllAncestors. It
// must not be mutated after Finalise.
type AncestorBuilder struct {
	numSamples   int
	numSites     int
	flags        int
	sites        []site
	frequencyMap []utils.ByteMap
	descriptors  []AncestorDescriptor
	allocator    *utils.BlockAllocator
	finalised    bool
}

// NewAncestorBuilder creates a builder for the given panel dimensions.
// At least two samples are required. The flags argument is reserved.
func NewAncestorBuilder(numSamples, numSites, flags int) (*AncestorBuilder, error) {
	if numSamples < 2 {
		return nil, fmt.Errorf("%w: ancestor builder needs at least two samples, got %v", ErrInvalidArgument, numSamples)
	}
	if numSites < 0 {
		return nil, fmt.Errorf("%w: negative number of sites %v", ErrInvalidArgument, numSites)
	}
	return &AncestorBuilder{
		numSamples:   numSamples,
		numSites:     numSites,
		flags:        flags,
		sites:        make([]site, numSites),
		frequencyMap: make([]utils.ByteMap, numSamples+1),
		descriptors:  make([]AncestorDescriptor, 0, numSites),
		allocator:    utils.NewBlockAllocator(allocatorChunkSize),
	}, nil
}

// NumSamples returns the number of samples in the genotype panel.
func (b *AncestorBuilder) NumSamples() int {
	return b.numSamples
}

// NumSites returns the number of sites in the genotype panel.
func (b *AncestorBuilder) NumSites() int {
	return b.numSites
}

// AddSite records the genotype column for the given site. The frequency
// is the number of samples carrying the derived allele, and genotypes
// must hold one binary allele per sample.
//
// Sites with frequency 0 or 1 are recorded but contribute no pattern:
// they cannot anchor useful ancestors and are filled in as ancestral
// during ancestor generation. All other sites are deduplicated by
// pattern; the first occurrence of a pattern owns the canonical genotype
// vector, which later occurrences share.
func (b *AncestorBuilder) AddSite(siteID, frequency int, genotypes []haplotypes.Allele) error {
	if siteID < 0 || siteID >= b.numSites {
		return fmt.Errorf("%w: site %v out of range [0, %v)", ErrInvalidArgument, siteID, b.numSites)
	}
	if frequency < 0 || frequency > b.numSamples {
		return fmt.Errorf("%w: frequency %v out of range [0, %v] at site %v", ErrInvalidArgument, frequency, b.numSamples, siteID)
	}
	if len(genotypes) != b.numSamples {
		return fmt.Errorf("%w: genotype column has %v entries, expected %v", ErrInvalidArgument, len(genotypes), b.numSamples)
	}
	for u, g := range genotypes {
		if g != haplotypes.Ancestral && g != haplotypes.Derived {
			return fmt.Errorf("%w: invalid allele %v for sample %v at site %v", ErrInvalidArgument, g, u, siteID)
		}
	}
	s := &b.sites[siteID]
	s.frequency = frequency
	if frequency <= 1 {
		return nil
	}
	patternMap := &b.frequencyMap[frequency]
	var entry *patternMapEntry
	if found := patternMap.Search(genotypes); found != nil {
		entry = found.(*patternMapEntry)
	} else {
		canonical := b.allocator.Get(b.numSamples)
		copy(canonical, genotypes)
		entry = &patternMapEntry{genotypes: canonical}
		patternMap.Insert(canonical, entry)
	}
	s.genotypes = entry.genotypes
	entry.numSites++
	entry.sites = &siteListNode{site: siteID, next: entry.sites}
	return nil
}

// Finalise computes the ancestor descriptors. Descriptors are emitted in
// decreasing order of frequency; within a frequency, patterns follow the
// lexicographic order of their genotype bytes, and the sites of a
// pattern appear in ascending order.
func (b *AncestorBuilder) Finalise() {
	for frequency := b.numSamples; frequency > 1; frequency-- {
		b.frequencyMap[frequency].Range(func(_ []byte, value interface{}) bool {
			entry := value.(*patternMapEntry)
			focalSites := make([]int, entry.numSites)
			k := entry.numSites - 1
			for s := entry.sites; s != nil; s = s.next {
				focalSites[k] = s.site
				k--
			}
			for k := range focalSites {
				b.descriptors = append(b.descriptors, AncestorDescriptor{
					Frequency:  frequency,
					FocalSites: focalSites[k : k+1 : k+1],
				})
			}
			return true
		})
	}
	b.finalised = true
	if internal.PedanticMode {
		b.checkState()
	}
}

// Descriptors returns the ancestor descriptors computed by Finalise, in
// generation order. The returned slice is a view and must not be
// modified.
func (b *AncestorBuilder) Descriptors() []AncestorDescriptor {
	return b.descriptors
}

// consistentSamples returns the samples carrying the derived allele at
// the given site.
func (b *AncestorBuilder) consistentSamples(siteID int) []int {
	genotypes := b.sites[siteID].genotypes
	samples := make([]int, 0, b.sites[siteID].frequency)
	for u, g := range genotypes {
		if g == haplotypes.Derived {
			samples = append(samples, u)
		}
	}
	return samples
}

// computeOlderSites walks the given older sites in order, assigning each
// the consensus allele of the current sample set and pruning samples
// that disagree with the consensus at two consecutive sites. The walk
// stops when the sample set shrinks to half its initial size or less;
// the last site that received an allele is returned.
//
// A single disagreement is tolerated: it may be a recurrent mutation on
// an otherwise consistent lineage. Two in a row mark a sample as
// belonging to a different ancestral background.
func (b *AncestorBuilder) computeOlderSites(focalSite int, olderSites, sampleSet []int, ancestor []haplotypes.Allele) int {
	minSampleSetSize := len(sampleSet) / 2
	disagree := bitset.New(uint(b.numSamples))
	lastSite := focalSite
	for _, l := range olderSites {
		genotypes := b.sites[l].genotypes
		ones := 0
		for _, u := range sampleSet {
			ones += int(genotypes[u])
		}
		zeros := len(sampleSet) - ones
		consensus := haplotypes.Ancestral
		if ones >= zeros {
			consensus = haplotypes.Derived
		}
		k := 0
		for _, u := range sampleSet {
			if disagree.Test(uint(u)) && genotypes[u] != consensus {
				// second strike, drop the sample
				continue
			}
			sampleSet[k] = u
			k++
		}
		sampleSet = sampleSet[:k]
		if len(sampleSet) <= minSampleSetSize {
			break
		}
		ancestor[l] = consensus
		lastSite = l
		for _, u := range sampleSet {
			disagree.SetTo(uint(u), genotypes[u] != consensus)
		}
	}
	return lastSite
}

// MakeAncestor materializes the ancestral haplotype anchored at the
// given focal sites into the ancestor buffer, which must have one entry
// per site. It returns the interval [start, end) of defined entries;
// everything outside is left Unknown. The current policy accepts exactly
// one focal site.
func (b *AncestorBuilder) MakeAncestor(focalSites []int, ancestor []haplotypes.Allele) (start, end int, err error) {
	if len(focalSites) != 1 {
		return 0, 0, fmt.Errorf("%w: expected exactly one focal site, got %v", ErrInvalidArgument, len(focalSites))
	}
	focalSite := focalSites[0]
	if focalSite < 0 || focalSite >= b.numSites {
		return 0, 0, fmt.Errorf("%w: focal site %v out of range [0, %v)", ErrInvalidArgument, focalSite, b.numSites)
	}
	if len(ancestor) != b.numSites {
		return 0, 0, fmt.Errorf("%w: ancestor buffer has %v entries, expected %v", ErrInvalidArgument, len(ancestor), b.numSites)
	}
	focalFrequency := b.sites[focalSite].frequency
	if b.sites[focalSite].genotypes == nil {
		return 0, 0, fmt.Errorf("%w: site %v with frequency %v has no genotype pattern", ErrInvalidArgument, focalSite, focalFrequency)
	}
	for l := range ancestor {
		ancestor[l] = haplotypes.Unknown
	}
	ancestor[focalSite] = haplotypes.Derived

	olderSites := make([]int, 0, b.numSites)

	// Work rightwards from the focal site.
	for l := focalSite + 1; l < b.numSites; l++ {
		if b.sites[l].frequency > focalFrequency {
			olderSites = append(olderSites, l)
		}
	}
	lastSite := b.computeOlderSites(focalSite, olderSites, b.consistentSamples(focalSite), ancestor)
	// Fill in the ancestral states at younger sites.
	for l := focalSite + 1; l < lastSite; l++ {
		if b.sites[l].frequency <= focalFrequency {
			ancestor[l] = haplotypes.Ancestral
		}
	}
	end = lastSite + 1

	// Work leftwards from the focal site.
	olderSites = olderSites[:0]
	for l := focalSite - 1; l >= 0; l-- {
		if b.sites[l].frequency > focalFrequency {
			olderSites = append(olderSites, l)
		}
	}
	lastSite = b.computeOlderSites(focalSite, olderSites, b.consistentSamples(focalSite), ancestor)
	for l := lastSite + 1; l < focalSite; l++ {
		if b.sites[l].frequency <= focalFrequency {
			ancestor[l] = haplotypes.Ancestral
		}
	}
	start = lastSite

	return start, end, nil
}

// MakeAllAncestors materializes every descriptor computed by Finalise,
// in descriptor order. The descriptors are independent, so they are
// generated concurrently, each into its own buffer.
func (b *AncestorBuilder) MakeAllAncestors() ([]Ancestor, error) {
	if !b.finalised {
		return nil, fmt.Errorf("%w: ancestor builder has not been finalised", ErrInvalidArgument)
	}
	if len(b.descriptors) == 0 {
		return nil, nil
	}
	results := make([]Ancestor, len(b.descriptors))
	errs := make([]error, len(b.descriptors))
	parallel.Range(0, len(b.descriptors), 0, func(low, high int) {
		for i := low; i < high; i++ {
			descriptor := b.descriptors[i]
			hap := make([]haplotypes.Allele, b.numSites)
			start, end, err := b.MakeAncestor(descriptor.FocalSites, hap)
			if err != nil {
				errs[i] = err
				continue
			}
			results[i] = Ancestor{
				Frequency:  descriptor.Frequency,
				FocalSites: descriptor.FocalSites,
				Start:      start,
				End:        end,
				Haplotype:  hap,
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
