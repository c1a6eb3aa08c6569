// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package genome

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Bin is a 0-based half-open interval [Start, End) on chromosome Chrom.
type Bin struct {
	Chrom      string
	Start, End int
}

// String implements fmt.Stringer.
func (b Bin) String() string {
	return fmt.Sprintf("%s:%d-%d", b.Chrom, b.Start, b.End)
}

type chromSpan struct {
	// first is the index of the chromosome's first bin in Layout.Bins.
	first int
	n     int
}

// Layout is the ordered tiling of a set of chromosomes into bins of width
// BinSize, starting every StepSize bases.  BinSize == StepSize yields a
// non-overlapping tiling.  The trailing partial bin of each chromosome is
// dropped.
//
// A Layout is a pure function of its chromosomes, bin size and step size.
type Layout struct {
	Chromosomes []Chromosome
	BinSize     int
	StepSize    int
	Bins        []Bin

	spans map[string]chromSpan
}

// NewLayout tiles chroms.
func NewLayout(chroms []Chromosome, binSize, stepSize int) (*Layout, error) {
	if binSize <= 0 || stepSize <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("genome.NewLayout: bin size (%d) and step size (%d) must be positive", binSize, stepSize))
	}
	l := &Layout{
		Chromosomes: chroms,
		BinSize:     binSize,
		StepSize:    stepSize,
		spans:       make(map[string]chromSpan, len(chroms)),
	}
	for _, c := range chroms {
		if _, ok := l.spans[c.Name]; ok {
			return nil, errors.E(errors.Invalid, "genome.NewLayout: duplicate chromosome", c.Name)
		}
		span := chromSpan{first: len(l.Bins)}
		for start := 0; start <= c.Len-binSize; start += stepSize {
			l.Bins = append(l.Bins, Bin{Chrom: c.Name, Start: start, End: start + binSize})
			span.n++
		}
		l.spans[c.Name] = span
	}
	return l, nil
}

// Len returns the number of bins.
func (l *Layout) Len() int { return len(l.Bins) }

// Index returns the index of the bin on chrom that starts at start.
func (l *Layout) Index(chrom string, start int) (int, bool) {
	span, ok := l.spans[chrom]
	if !ok || start < 0 || start%l.StepSize != 0 {
		return 0, false
	}
	k := start / l.StepSize
	if k >= span.n {
		return 0, false
	}
	return span.first + k, true
}

// ChromRange returns the half-open range of bin indices on chrom.
func (l *Layout) ChromRange(chrom string) (first, limit int) {
	span := l.spans[chrom]
	return span.first, span.first + span.n
}

// Overlapping returns the half-open range of indices of the bins on chrom
// that contain the 0-based position pos.  The range is empty when no bin
// does.
func (l *Layout) Overlapping(chrom string, pos int) (first, limit int) {
	span, ok := l.spans[chrom]
	if !ok || pos < 0 || span.n == 0 {
		return 0, 0
	}
	kmax := pos / l.StepSize
	if kmax >= span.n {
		kmax = span.n - 1
	}
	kmin := 0
	if pos >= l.BinSize {
		kmin = (pos-l.BinSize)/l.StepSize + 1
	}
	if kmin > kmax {
		return 0, 0
	}
	return span.first + kmin, span.first + kmax + 1
}
