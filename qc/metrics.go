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

// Package qc gathers the per-cell quality metrics of a donor's calls and
// decides which cells to exclude from downstream results.
package qc

import (
	"context"
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/cnvpipe/results"
	"github.com/grailbio/cnvpipe/samplesheet"
)

// Metrics are the quality metrics of one cell.  NaN means missing.
type Metrics struct {
	Sample        samplesheet.SampleName
	NumSegments   float64
	Bhattacharyya float64
	Spikiness     float64
	Entropy       float64
	ReadCount     float64
}

// Table holds the metrics of the cells of one donor, in samplesheet order.
type Table []Metrics

// Gather reads the metrics of every sample of donor from the models the
// caller wrote with method under baseDir.  A sample without a model gets a
// row of missing values.  Non-finite values are reported as missing.
func Gather(ctx context.Context, baseDir string, sheet *samplesheet.Samplesheet, donor, method string) (Table, error) {
	if method == "" {
		method = results.DefaultMethod
	}
	donorDir := results.DonorDir(baseDir, donor)
	samples := sheet.ForDonor(donor).Samples()
	models, err := results.ListModels(ctx, donorDir, method)
	if err != nil {
		return nil, err
	}
	table := make(Table, len(samples))
	for i, sample := range samples {
		q := results.MissingQuality
		paths := models.For(sample.FileBase())
		if len(paths) == 0 {
			log.Debug.Printf("qc: no model for %s in %s", sample.Name, donorDir)
		} else {
			if len(paths) > 1 {
				log.Debug.Printf("qc: %d models for %s, using %s", len(paths), sample.Name, paths[0])
			}
			m, err := results.ReadModel(ctx, paths[0])
			if err != nil {
				return nil, err
			}
			q = m.QualityInfo
		}
		table[i] = Metrics{
			Sample:        sample.Name,
			NumSegments:   finite(q.NumSegments),
			Bhattacharyya: finite(q.Bhattacharyya),
			Spikiness:     finite(q.Spikiness),
			Entropy:       finite(q.Entropy),
			ReadCount:     finite(q.TotalReadCount),
		}
	}
	return table, nil
}

func finite(n results.Number) float64 {
	v := float64(n)
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// Names returns the sample names of the table.
func (t Table) Names() samplesheet.NameSet {
	names := samplesheet.NewNameSet()
	for _, m := range t {
		names.Add(m.Sample)
	}
	return names
}

func formatMetric(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteTable writes t as TSV with a header line.  Missing values are
// written as NA.
func WriteTable(w io.Writer, t Table) error {
	out := tsv.NewWriter(w)
	for _, col := range []string{"sample_name", "num.segments", "bhattacharyya", "spikiness", "entropy", "read.count"} {
		out.WriteString(col)
	}
	if err := out.EndLine(); err != nil {
		return err
	}
	for _, m := range t {
		out.WriteString(string(m.Sample))
		for _, v := range []float64{m.NumSegments, m.Bhattacharyya, m.Spikiness, m.Entropy, m.ReadCount} {
			out.WriteString(formatMetric(v))
		}
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}
