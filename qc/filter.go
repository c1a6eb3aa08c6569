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

package qc

import (
	"context"
	"math"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/cnvpipe/results"
	"github.com/grailbio/cnvpipe/samplesheet"
)

// Opts configures the filter.
type Opts struct {
	// Method is the segmentation method whose models are read.
	Method string
	// MinReadCount is the read count a cell must exceed.
	MinReadCount float64
	// BhattacharyyaThreshold is the Bhattacharyya distance a cell must
	// exceed.  If NaN, it is derived from the donor's cells by
	// BhattacharyyaThreshold.
	BhattacharyyaThreshold float64
	// SpikinessThreshold is the spikiness a cell must stay below.  If NaN,
	// it is derived from the donor's cells by SpikinessThreshold.
	SpikinessThreshold float64
}

// DefaultOpts are the default options.
var DefaultOpts = Opts{
	Method:                 results.DefaultMethod,
	MinReadCount:           200000,
	BhattacharyyaThreshold: math.NaN(),
	SpikinessThreshold:     math.NaN(),
}

// tailRank returns the 1-based rank that bounds the 10% tail of n values.
func tailRank(n int) int {
	k := int(math.Floor(float64(n)/10 + 0.5))
	if k < 1 {
		k = 1
	}
	return k
}

func sortedValues(values []float64) []float64 {
	var s []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			s = append(s, v)
		}
	}
	sort.Float64s(s)
	return s
}

// BhattacharyyaThreshold returns the k-th smallest non-missing value, where
// k is a tenth of their count, rounded, and at least 1.  It returns NaN if
// no value is present.
func BhattacharyyaThreshold(values []float64) float64 {
	s := sortedValues(values)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[tailRank(len(s))-1]
}

// SpikinessThreshold returns the k-th largest non-missing value, with k as
// in BhattacharyyaThreshold.
func SpikinessThreshold(values []float64) float64 {
	s := sortedValues(values)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-tailRank(len(s))]
}

// Decision is the outcome of the filter for one donor.
type Decision struct {
	// BhattacharyyaThreshold and SpikinessThreshold are the thresholds in
	// effect.
	BhattacharyyaThreshold float64
	SpikinessThreshold     float64

	// PassDepth, PassBhattacharyya and PassSpikiness hold the cells that
	// pass each criterion.
	PassDepth         samplesheet.NameSet
	PassBhattacharyya samplesheet.NameSet
	PassSpikiness     samplesheet.NameSet

	// Included holds the cells that pass all criteria; Excluded holds the
	// rest.
	Included samplesheet.NameSet
	Excluded samplesheet.NameSet
}

// Filter applies the depth, Bhattacharyya and spikiness criteria to t.  All
// comparisons are strict, so a missing value fails its criterion.
func Filter(t Table, opts Opts) Decision {
	bhat := make([]float64, len(t))
	spik := make([]float64, len(t))
	for i, m := range t {
		bhat[i] = m.Bhattacharyya
		spik[i] = m.Spikiness
	}
	d := Decision{
		BhattacharyyaThreshold: opts.BhattacharyyaThreshold,
		SpikinessThreshold:     opts.SpikinessThreshold,
		PassDepth:              samplesheet.NewNameSet(),
		PassBhattacharyya:      samplesheet.NewNameSet(),
		PassSpikiness:          samplesheet.NewNameSet(),
	}
	if math.IsNaN(d.BhattacharyyaThreshold) {
		d.BhattacharyyaThreshold = BhattacharyyaThreshold(bhat)
	}
	if math.IsNaN(d.SpikinessThreshold) {
		d.SpikinessThreshold = SpikinessThreshold(spik)
	}
	for _, m := range t {
		if m.ReadCount > opts.MinReadCount {
			d.PassDepth.Add(m.Sample)
		}
		if m.Bhattacharyya > d.BhattacharyyaThreshold {
			d.PassBhattacharyya.Add(m.Sample)
		}
		if m.Spikiness < d.SpikinessThreshold {
			d.PassSpikiness.Add(m.Sample)
		}
	}
	d.Included = d.PassDepth.Intersect(d.PassBhattacharyya).Intersect(d.PassSpikiness)
	d.Excluded = t.Names().Difference(d.Included)
	return d
}

// ExcludedCells returns the cells of donor that fail any QC criterion.
func ExcludedCells(ctx context.Context, baseDir string, sheet *samplesheet.Samplesheet, donor string, opts Opts) (samplesheet.NameSet, error) {
	t, err := Gather(ctx, baseDir, sheet, donor, opts.Method)
	if err != nil {
		return nil, err
	}
	d := Filter(t, opts)
	log.Printf("qc: donor %s: %d/%d cells excluded (bhattacharyya > %v, spikiness < %v, read count > %v)",
		donor, len(d.Excluded), len(t), d.BhattacharyyaThreshold, d.SpikinessThreshold, opts.MinReadCount)
	return d.Excluded, nil
}
