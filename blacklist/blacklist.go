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

// Package blacklist derives the genome blacklist: the bins whose coverage,
// summed over a cohort, is aberrantly low or high.  The blacklist for a bin
// size is built once per output directory and reused afterwards.
package blacklist

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cnvpipe/coverage"
	"github.com/grailbio/cnvpipe/genome"
	"github.com/grailbio/cnvpipe/interval"
	"github.com/grailbio/cnvpipe/samplesheet"
	"github.com/grailbio/cnvpipe/store"
	"github.com/grailbio/hts/bgzf"
)

// Opts controls blacklist derivation.
type Opts struct {
	// Autosomes and Allosomes are the chromosome groups. Percentiles are
	// computed within each group.
	Autosomes genome.Chromosomes
	Allosomes genome.Chromosomes
	// LowPercentile and HighPercentile, in [0,1], are the cut lines.
	LowPercentile  float64
	HighPercentile float64
	// Coverage configures read counting. Coverage.Parallelism is the CPU
	// budget.
	Coverage coverage.Opts
}

// DefaultOpts are the default options.
var DefaultOpts = Opts{
	Autosomes:      genome.DefaultAutosomes,
	Allosomes:      genome.DefaultAllosomes,
	LowPercentile:  0.05,
	HighPercentile: 0.95,
	Coverage:       coverage.DefaultOpts,
}

// Key returns the store key of the blacklist for binSize.
func Key(binSize int) string {
	return fmt.Sprintf("blacklist_%d.bed.gz", binSize)
}

// build derives the blacklist. Tests replace it to count invocations.
var build = Build

// GetOrBuild returns the path of the blacklist for binSize under outputDir,
// deriving it from the samples of sheet if it does not exist yet.  An
// existing blacklist is returned as is.
//
// GetOrBuild must not run concurrently with itself for the same outputDir
// and binSize; see package store.
func GetOrBuild(ctx context.Context, outputDir string, sheet *samplesheet.Samplesheet, binSize int, opts Opts) (string, error) {
	s := store.New(outputDir)
	key := Key(binSize)
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return "", errors.E(err, fmt.Sprintf("blacklist: binsize %d", binSize))
	}
	if ok {
		log.Printf("blacklist: reusing %s", s.Path(key))
		logSummary(ctx, s.Path(key), opts)
		return s.Path(key), nil
	}
	log.Printf("blacklist: building %s from %d samples", s.Path(key), sheet.Len())
	union, err := build(ctx, sheet, binSize, opts)
	if err != nil {
		return "", errors.E(err, fmt.Sprintf("blacklist: binsize %d", binSize))
	}
	path, err := s.Write(ctx, key, func(w io.Writer) error {
		return writeBGZF(w, union)
	})
	if err != nil {
		return "", errors.E(err, fmt.Sprintf("blacklist: binsize %d", binSize))
	}
	logSummary(ctx, path, opts)
	return path, nil
}

// Build counts the reads of every sample of sheet in bins of binSize over
// the chromosomes of opts, and returns the union of the outlier bins.
// Chromosome lengths come from the header of the first sample.
func Build(ctx context.Context, sheet *samplesheet.Samplesheet, binSize int, opts Opts) (interval.BEDUnion, error) {
	if sheet.Len() == 0 {
		return interval.BEDUnion{}, errors.E(errors.Invalid, "blacklist.Build: empty samplesheet")
	}
	chroms, err := genome.ChromosomeLengths(sheet.Samples()[0].Filename, opts.Autosomes.Union(opts.Allosomes))
	if err != nil {
		return interval.BEDUnion{}, err
	}
	layout, err := genome.NewLayout(chroms, binSize, binSize)
	if err != nil {
		return interval.BEDUnion{}, err
	}
	totals, err := coverage.CountSamples(sheet.Filenames(), layout, opts.Coverage)
	if err != nil {
		return interval.BEDUnion{}, err
	}
	bins := Detect(totals, opts.Autosomes, opts.Allosomes, opts.LowPercentile, opts.HighPercentile)
	log.Printf("blacklist: %d of %d bins flagged", len(bins), layout.Len())
	entries := make([]interval.Entry, len(bins))
	for i, b := range bins {
		entries[i] = interval.Entry{ChrName: b.Chrom, Start0: interval.PosType(b.Start), End: interval.PosType(b.End)}
	}
	return interval.NewBEDUnionFromEntries(entries)
}

func writeBGZF(w io.Writer, union interval.BEDUnion) (err error) {
	bgzfWriter := bgzf.NewWriter(w, 1)
	defer func() {
		if e := bgzfWriter.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return union.Write(bgzfWriter)
}

// logSummary logs the size of the blacklist at path per chromosome group.
func logSummary(ctx context.Context, path string, opts Opts) {
	union, err := interval.NewBEDUnionFromPath(ctx, path)
	if err != nil {
		log.Error.Printf("blacklist: %s: %v", path, err)
		return
	}
	var nAuto, nAllo, basesAuto, basesAllo int
	for _, chr := range union.Chromosomes() {
		switch {
		case opts.Autosomes.Contains(chr):
			nAuto += union.NumIntervals(chr)
			basesAuto += union.CoveredBases(chr)
		case opts.Allosomes.Contains(chr):
			nAllo += union.NumIntervals(chr)
			basesAllo += union.CoveredBases(chr)
		}
	}
	log.Printf("blacklist: %s: autosomes %d intervals (%d bases), allosomes %d intervals (%d bases)",
		path, nAuto, basesAuto, nAllo, basesAllo)
}
