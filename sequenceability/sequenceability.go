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

// Package sequenceability derives per-bin sequenceability factors: the
// coverage of each bin in a calibration cohort relative to the mean bin,
// optionally after GC correction.  Factors for a bin size are derived once
// per output directory and reused afterwards.
package sequenceability

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/cnvpipe/caller"
	"github.com/grailbio/cnvpipe/genome"
	"github.com/grailbio/cnvpipe/results"
	"github.com/grailbio/cnvpipe/samplesheet"
	"github.com/grailbio/cnvpipe/store"
	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/gonum/floats"
)

// CalibrationDonor is the donor name of the calibration run.
const CalibrationDonor = "calibration"

// Opts configures factor derivation.
type Opts struct {
	// Caller configures the calibration run. BinSize, the artifacts, the
	// correction methods and StopAfterBinning are overridden.
	Caller caller.Opts
	// Reference is the path of the reference FASTA used for GC correction.
	// If empty, the counts are not GC-corrected.
	Reference string
}

// DefaultOpts are the default options.
var DefaultOpts = Opts{Caller: caller.DefaultOpts}

// Factor is the sequenceability factor of one bin.
type Factor struct {
	Chrom  string  `tsv:"chrom"`
	Start  int     `tsv:"start"`
	End    int     `tsv:"end"`
	Factor float64 `tsv:"factor"`
}

// Key returns the store key of the factors for binSize.
func Key(binSize int) string {
	return fmt.Sprintf("sequenceability.factors.%d.gc.tsv.gz", binSize)
}

// CalibrationDir returns the scratch area of the calibration run.
func CalibrationDir(outputDir string, binSize int) string {
	return file.Join(outputDir, fmt.Sprintf(".sequenceability_%d", binSize))
}

// build derives the factors. Tests replace it to count invocations.
var build = Build

// GetOrBuild returns the path of the factors for binSize under outputDir,
// deriving them from a calibration run over the samples of sheet if they do
// not exist yet.  Existing factors are returned as is.
//
// GetOrBuild must not run concurrently with itself for the same outputDir
// and binSize; see package store.
func GetOrBuild(ctx context.Context, outputDir string, sheet *samplesheet.Samplesheet, binSize int, opts Opts) (string, error) {
	s := store.New(outputDir)
	key := Key(binSize)
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return "", errors.E(err, fmt.Sprintf("sequenceability: binsize %d", binSize))
	}
	if ok {
		log.Printf("sequenceability: reusing %s", s.Path(key))
		return s.Path(key), nil
	}
	log.Printf("sequenceability: building %s from %d samples", s.Path(key), sheet.Len())
	factors, err := build(ctx, outputDir, sheet, binSize, opts)
	if err != nil {
		return "", errors.E(err, fmt.Sprintf("sequenceability: binsize %d", binSize))
	}
	path, err := s.Write(ctx, key, func(w io.Writer) error {
		return writeFactors(w, factors)
	})
	if err != nil {
		return "", errors.E(err, fmt.Sprintf("sequenceability: binsize %d", binSize))
	}
	return path, nil
}

// Build runs the caller over the samples of sheet up to binning, in
// CalibrationDir(outputDir, binSize), and derives factors from the summed
// bin counts.  The calibration area is removed before Build returns.
func Build(ctx context.Context, outputDir string, sheet *samplesheet.Samplesheet, binSize int, opts Opts) (factors []Factor, err error) {
	if sheet.Len() == 0 {
		return nil, errors.E(errors.Invalid, "sequenceability.Build: no samples flagged for calibration")
	}
	chroms, err := genome.ChromosomeLengths(sheet.Samples()[0].Filename, opts.Caller.Chromosomes)
	if err != nil {
		return nil, err
	}
	layout, err := genome.NewLayout(chroms, binSize, binSize)
	if err != nil {
		return nil, err
	}

	// The calibration samples may come from several donors; they are called
	// together as one.
	calibration := make([]samplesheet.Sample, sheet.Len())
	for i, sample := range sheet.Samples() {
		sample.Donor = CalibrationDonor
		calibration[i] = sample
	}
	calSheet, err := samplesheet.New(calibration)
	if err != nil {
		return nil, err
	}
	calDir := CalibrationDir(outputDir, binSize)
	defer func() {
		if e := os.RemoveAll(calDir); e != nil && err == nil {
			err = e
		}
	}()
	callOpts := opts.Caller
	callOpts.BinSize = binSize
	callOpts.Blacklist = ""
	callOpts.Sequenceability = ""
	callOpts.CorrectionMethods = nil
	callOpts.StopAfterBinning = true
	callOpts.Plot = false
	if err = caller.Run(ctx, calDir, CalibrationDonor, calSheet, callOpts); err != nil {
		return nil, err
	}

	counts, err := sumBinned(ctx, results.DonorDir(calDir, CalibrationDonor), calSheet, layout)
	if err != nil {
		return nil, err
	}
	if opts.Reference != "" {
		gc, err := binGC(ctx, opts.Reference, layout)
		if err != nil {
			return nil, err
		}
		counts = gcCorrect(counts, gc)
	} else {
		log.Printf("sequenceability: no reference, skipping GC correction")
	}
	return normalize(layout, counts)
}

// sumBinned adds up the binned coverage of every sample of sheet.
func sumBinned(ctx context.Context, donorDir string, sheet *samplesheet.Samplesheet, layout *genome.Layout) ([]float64, error) {
	names := make(map[string]string, len(layout.Chromosomes))
	for _, c := range layout.Chromosomes {
		names[genome.Normalize(c.Name)] = c.Name
	}
	counts := make([]float64, layout.Len())
	for _, sample := range sheet.Samples() {
		rows, err := results.ReadBinned(ctx, results.BinnedPath(donorDir, sample.FileBase(), layout.BinSize))
		if err != nil {
			return nil, errors.E(err, "calibration sample", string(sample.Name))
		}
		for _, row := range rows {
			chrom, ok := names[genome.Normalize(row.Chrom)]
			if !ok {
				continue
			}
			if i, ok := layout.Index(chrom, row.Start); ok {
				counts[i] += float64(row.Count)
			}
		}
	}
	return counts, nil
}

// normalize divides counts by their mean.
func normalize(layout *genome.Layout, counts []float64) ([]Factor, error) {
	if len(counts) == 0 {
		return nil, errors.E(errors.Invalid, "sequenceability: no bins")
	}
	mean := floats.Sum(counts) / float64(len(counts))
	if mean <= 0 {
		return nil, errors.E(errors.Invalid, "sequenceability: calibration samples have no coverage")
	}
	floats.Scale(1/mean, counts)
	factors := make([]Factor, len(counts))
	for i, b := range layout.Bins {
		factors[i] = Factor{Chrom: b.Chrom, Start: b.Start, End: b.End, Factor: counts[i]}
	}
	return factors, nil
}

func writeFactors(w io.Writer, factors []Factor) error {
	gz := gzip.NewWriter(w)
	out := tsv.NewWriter(gz)
	out.WriteString("chrom")
	out.WriteString("start")
	out.WriteString("end")
	out.WriteString("factor")
	if err := out.EndLine(); err != nil {
		return err
	}
	for _, f := range factors {
		out.WriteString(f.Chrom)
		out.WriteInt64(int64(f.Start))
		out.WriteInt64(int64(f.End))
		out.WriteString(strconv.FormatFloat(f.Factor, 'g', 6, 64))
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	if err := out.Flush(); err != nil {
		return err
	}
	return gz.Close()
}

// ReadFactors reads the factors at path.
func ReadFactors(ctx context.Context, path string) (factors []Factor, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "sequenceability.ReadFactors", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		defer u.Close() // nolint: errcheck
		r = u
	}
	reader := tsv.NewReader(bufio.NewReader(r))
	reader.HasHeaderRow = true
	reader.UseHeaderNames = true
	for {
		var f Factor
		if err = reader.Read(&f); err != nil {
			if err == io.EOF {
				return factors, nil
			}
			return nil, errors.E(errors.Invalid, err, "sequenceability.ReadFactors", path)
		}
		factors = append(factors, f)
	}
}
