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

package sequenceability

import (
	"context"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cnvpipe/encoding/fasta"
	"github.com/grailbio/cnvpipe/genome"
)

// gcStrata is the number of GC strata; stratum k holds bins with GC
// fraction in [k/gcStrata, (k+1)/gcStrata).
const gcStrata = 100

// binGC returns the GC fraction of every bin of layout, or NaN for bins
// without an unambiguous base.  A bin that runs past the end of its
// reference sequence is clipped to it.
func binGC(ctx context.Context, reference string, layout *genome.Layout) ([]float64, error) {
	fa, err := fasta.Load(ctx, reference)
	if err != nil {
		return nil, err
	}
	seqNames := make(map[string]string)
	for _, name := range fa.SeqNames() {
		seqNames[genome.Normalize(name)] = name
	}
	gc := make([]float64, layout.Len())
	for i, b := range layout.Bins {
		name, ok := seqNames[genome.Normalize(b.Chrom)]
		if !ok {
			return nil, errors.E(errors.NotExist, "sequenceability: chromosome missing from reference", b.Chrom)
		}
		n, err := fa.Len(name)
		if err != nil {
			return nil, errors.E(err, "sequenceability: reference", b.Chrom)
		}
		start, end := uint64(b.Start), uint64(b.End)
		if end > n {
			end = n
		}
		if start >= end {
			gc[i] = math.NaN()
			continue
		}
		seq, err := fa.Get(name, start, end)
		if err != nil {
			return nil, errors.E(err, "sequenceability: reference", b.String())
		}
		if frac, ok := fasta.GCFraction(seq); ok {
			gc[i] = frac
		} else {
			gc[i] = math.NaN()
		}
	}
	return gc, nil
}

// gcCorrect rescales each count by the ratio of the overall mean count to
// the mean count of its GC stratum.  Bins without GC content, or in a
// stratum with zero mean, are left unchanged.
func gcCorrect(counts, gc []float64) []float64 {
	var (
		sum   [gcStrata]float64
		n     [gcStrata]int
		total float64
		nall  int
	)
	stratum := func(i int) int {
		if math.IsNaN(gc[i]) {
			return -1
		}
		k := int(gc[i] * gcStrata)
		if k >= gcStrata {
			k = gcStrata - 1
		}
		return k
	}
	for i, c := range counts {
		if k := stratum(i); k >= 0 {
			sum[k] += c
			n[k]++
			total += c
			nall++
		}
	}
	out := make([]float64, len(counts))
	copy(out, counts)
	if nall == 0 {
		return out
	}
	mean := total / float64(nall)
	for i := range out {
		k := stratum(i)
		if k < 0 || sum[k] == 0 {
			continue
		}
		out[i] *= mean / (sum[k] / float64(n[k]))
	}
	return out
}
