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

package blacklist

import (
	"sort"

	"github.com/grailbio/cnvpipe/coverage"
	"github.com/grailbio/cnvpipe/genome"
	"gonum.org/v1/gonum/stat"
)

// cutoffs are the coverage cut lines of one chromosome group.
type cutoffs struct {
	Low, High float64
}

// Detect returns the bins of totals whose count lies strictly below the low
// percentile or strictly above the high percentile of the counts of their
// chromosome group.  Autosomes and allosomes are separate groups; bins on
// chromosomes in neither group are never flagged.  The bins are returned in
// layout order.
func Detect(totals *coverage.Table, autosomes, allosomes genome.Chromosomes, low, high float64) []genome.Bin {
	layout := totals.Layout
	isFlagged := make([]bool, layout.Len())
	for _, group := range []genome.Chromosomes{autosomes, allosomes} {
		var idx []int
		for _, c := range layout.Chromosomes {
			if !group.Contains(c.Name) {
				continue
			}
			first, limit := layout.ChromRange(c.Name)
			for i := first; i < limit; i++ {
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			continue
		}
		cut := groupCutoffs(totals.Counts, idx, low, high)
		for _, i := range idx {
			if c := float64(totals.Counts[i]); c < cut.Low || c > cut.High {
				isFlagged[i] = true
			}
		}
	}
	var bins []genome.Bin
	for i, f := range isFlagged {
		if f {
			bins = append(bins, layout.Bins[i])
		}
	}
	return bins
}

// groupCutoffs computes the empirical low and high quantiles of
// counts[idx].
func groupCutoffs(counts []int64, idx []int, low, high float64) cutoffs {
	x := make([]float64, len(idx))
	for j, i := range idx {
		x[j] = float64(counts[i])
	}
	sort.Float64s(x)
	return cutoffs{
		Low:  stat.Quantile(low, stat.Empirical, x, nil),
		High: stat.Quantile(high, stat.Empirical, x, nil),
	}
}
