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

// Package coverage counts reads per genomic bin.
package coverage

import (
	"fmt"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/cnvpipe/encoding/bamprovider"
	"github.com/grailbio/cnvpipe/genome"
	"github.com/grailbio/hts/sam"
)

// Opts controls which reads are counted.
type Opts struct {
	// MinMapQ is the minimum mapping quality of a counted read.
	MinMapQ int
	// Parallelism bounds the number of BAM files read at once by
	// CountSamples. If <= 0, runtime.NumCPU() is used.
	Parallelism int
}

// DefaultOpts are the default options.
var DefaultOpts = Opts{
	MinMapQ: 10,
}

const skipFlags = sam.Unmapped | sam.Secondary | sam.Supplementary | sam.QCFail | sam.Duplicate

// Table holds one read count per bin of Layout.
type Table struct {
	Layout *genome.Layout
	Counts []int64
}

// NewTable returns a zero-filled table over layout.
func NewTable(layout *genome.Layout) *Table {
	return &Table{Layout: layout, Counts: make([]int64, layout.Len())}
}

// Add adds the counts of other to t, bin by bin.  Both tables must have the
// same shape.
func (t *Table) Add(other *Table) error {
	if len(other.Counts) != len(t.Counts) {
		return errors.E(errors.Invalid, fmt.Sprintf("coverage.Table.Add: shape mismatch (%d vs %d bins)", len(t.Counts), len(other.Counts)))
	}
	for i, c := range other.Counts {
		t.Counts[i] += c
	}
	return nil
}

// Total returns the sum of all counts.
func (t *Table) Total() int64 {
	var n int64
	for _, c := range t.Counts {
		n += c
	}
	return n
}

// countable reports whether r passes the read filters of opts.
func countable(r *sam.Record, opts Opts) bool {
	return r.Flags&skipFlags == 0 && r.Ref != nil && r.Pos >= 0 && int(r.MapQ) >= opts.MinMapQ
}

// Count reads every record of provider and counts each countable read into
// every bin of layout that contains its start position.  Reads on
// chromosomes absent from the layout are ignored.  Reference names are
// matched to layout chromosomes with or without a "chr" prefix.
func Count(provider bamprovider.Provider, layout *genome.Layout, opts Opts) (*Table, error) {
	header, err := provider.GetHeader()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(layout.Chromosomes))
	for _, c := range layout.Chromosomes {
		names[genome.Normalize(c.Name)] = c.Name
	}
	// refChrom maps a header reference ID to a layout chromosome name, or "".
	refChrom := make([]string, len(header.Refs()))
	for _, ref := range header.Refs() {
		refChrom[ref.ID()] = names[genome.Normalize(ref.Name())]
	}

	t := NewTable(layout)
	var nRead, nSkipped int
	iter := provider.NewIterator()
	for iter.Scan() {
		r := iter.Record()
		nRead++
		if !countable(r, opts) {
			nSkipped++
			continue
		}
		id := r.Ref.ID()
		if id < 0 || id >= len(refChrom) || refChrom[id] == "" {
			continue
		}
		first, limit := layout.Overlapping(refChrom[id], r.Pos)
		for i := first; i < limit; i++ {
			t.Counts[i]++
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	log.Debug.Printf("coverage: %d reads, %d skipped by filters", nRead, nSkipped)
	return t, nil
}

// CountFile is Count over the BAM file at path.
func CountFile(path string, layout *genome.Layout, opts Opts) (t *Table, err error) {
	provider := bamprovider.NewProvider(path)
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if t, err = Count(provider, layout, opts); err != nil {
		return nil, errors.E(err, "coverage", path)
	}
	return t, nil
}

// CountSamples counts every BAM file of paths and returns the bin-by-bin sum
// of their tables.  At most opts.Parallelism files are read at once.
func CountSamples(paths []string, layout *genome.Layout, opts Opts) (*Table, error) {
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(paths) {
		parallelism = len(paths)
	}
	total := NewTable(layout)
	if parallelism == 0 {
		return total, nil
	}
	partials := make([]*Table, parallelism)
	log.Printf("coverage: counting %d samples in %d bins (%d jobs)", len(paths), layout.Len(), parallelism)
	err := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(paths)) / parallelism
		endIdx := ((jobIdx + 1) * len(paths)) / parallelism
		partial := NewTable(layout)
		for _, path := range paths[startIdx:endIdx] {
			t, err := CountFile(path, layout, opts)
			if err != nil {
				return err
			}
			if err := partial.Add(t); err != nil {
				return err
			}
		}
		partials[jobIdx] = partial
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, p := range partials {
		if err := total.Add(p); err != nil {
			return nil, err
		}
	}
	return total, nil
}
