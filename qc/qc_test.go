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
	"bytes"
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cnvpipe/results"
	"github.com/grailbio/cnvpipe/samplesheet"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestThresholds(t *testing.T) {
	var values []float64
	for i := 100; i >= 1; i-- {
		values = append(values, float64(i))
	}
	values = append(values, math.NaN())
	expect.EQ(t, BhattacharyyaThreshold(values), 10.0)
	expect.EQ(t, SpikinessThreshold(values), 91.0)

	// Fewer than ten cells: the extreme value is the threshold.
	expect.EQ(t, BhattacharyyaThreshold([]float64{3, 1, 2}), 1.0)
	expect.EQ(t, SpikinessThreshold([]float64{3, 1, 2}), 3.0)
	// 15 cells round to the 2nd.
	var fifteen []float64
	for i := 1; i <= 15; i++ {
		fifteen = append(fifteen, float64(i))
	}
	expect.EQ(t, BhattacharyyaThreshold(fifteen), 2.0)
	expect.EQ(t, SpikinessThreshold(fifteen), 14.0)

	expect.True(t, math.IsNaN(BhattacharyyaThreshold(nil)))
	expect.True(t, math.IsNaN(SpikinessThreshold([]float64{math.NaN()})))
}

func metrics(name string, reads, bhat, spik float64) Metrics {
	return Metrics{
		Sample:        samplesheet.SampleName(name),
		NumSegments:   10,
		Bhattacharyya: bhat,
		Spikiness:     spik,
		Entropy:       1,
		ReadCount:     reads,
	}
}

func TestFilter(t *testing.T) {
	table := Table{
		metrics("a", 300000, 0.5, 0.1),
		metrics("b", 300000, math.NaN(), 0.1),
		metrics("c", 200000, 0.5, 0.1),
		metrics("d", 300000, 0.2, 0.1),
		metrics("e", 300000, 0.5, 0.9),
	}
	opts := DefaultOpts
	opts.BhattacharyyaThreshold = 0.3
	opts.SpikinessThreshold = 0.5
	d := Filter(table, opts)
	expect.EQ(t, d.Included.Sorted(), []samplesheet.SampleName{"a"})
	expect.EQ(t, d.Excluded.Sorted(), []samplesheet.SampleName{"b", "c", "d", "e"})
	expect.EQ(t, d.PassDepth.Sorted(), []samplesheet.SampleName{"a", "b", "d", "e"})
	expect.EQ(t, d.PassBhattacharyya.Sorted(), []samplesheet.SampleName{"a", "c", "e"})
	expect.EQ(t, d.PassSpikiness.Sorted(), []samplesheet.SampleName{"a", "b", "c", "d"})
	// Excluded is the complement of the intersection of the pass sets.
	expect.EQ(t, len(d.Included)+len(d.Excluded), len(table))

	regions := OverlapRegions(d)
	expect.EQ(t, regions, []Region{
		{"depth", 0},
		{"bhattacharyya", 0},
		{"spikiness", 0},
		{"depth+bhattacharyya", 1},
		{"depth+spikiness", 2},
		{"bhattacharyya+spikiness", 1},
		{"all", 1},
	})
}

func writeModel(t *testing.T, ctx context.Context, baseDir, donor, sample string, q results.QualityInfo) {
	path := results.ModelPath(results.DonorDir(baseDir, donor), results.DefaultMethod, sample+".bam", "dnacopy")
	assert.NoError(t, results.WriteModel(ctx, path, results.Model{ID: sample, QualityInfo: q}))
}

// depthCohort writes ten D1 cells, d01..d10, and one D2 cell.  d03 has
// exactly the minimum read count, d08 has fewer reads but otherwise good
// metrics, and d07 has no model.
func depthCohort(t *testing.T, ctx context.Context, baseDir string) *samplesheet.Samplesheet {
	var samples []samplesheet.Sample
	for i := 1; i <= 10; i++ {
		name := fmt.Sprintf("d%02d", i)
		samples = append(samples, samplesheet.Sample{
			Name:     samplesheet.SampleName(name),
			Filename: filepath.Join("/bams", name+".bam"),
			Donor:    "D1",
		})
		if i == 7 {
			continue
		}
		reads := 250000.0
		switch i {
		case 3:
			reads = 200000
		case 8:
			reads = 150000
		}
		writeModel(t, ctx, baseDir, "D1", name, results.QualityInfo{
			NumSegments:    results.Number(i),
			Bhattacharyya:  results.Number(float64(i) / 10),
			Spikiness:      results.Number(1 - float64(i)/20),
			Entropy:        1,
			TotalReadCount: results.Number(reads),
		})
	}
	samples = append(samples, samplesheet.Sample{Name: "e01", Filename: "/bams/e01.bam", Donor: "D2"})
	writeModel(t, ctx, baseDir, "D2", "e01", results.QualityInfo{
		NumSegments:    3,
		Bhattacharyya:  results.Number(math.Inf(1)),
		Spikiness:      0.2,
		Entropy:        results.Missing,
		TotalReadCount: 500000,
	})
	sheet, err := samplesheet.New(samples)
	assert.NoError(t, err)
	return sheet
}

func TestGather(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()
	sheet := depthCohort(t, ctx, tmpdir)

	table, err := Gather(ctx, tmpdir, sheet, "D1", "")
	assert.NoError(t, err)
	assert.EQ(t, len(table), 10)
	expect.EQ(t, table[0].Sample, samplesheet.SampleName("d01"))
	expect.EQ(t, table[0].Bhattacharyya, 0.1)
	expect.EQ(t, table[7].ReadCount, 150000.0)
	missing := table[6]
	expect.EQ(t, missing.Sample, samplesheet.SampleName("d07"))
	for _, v := range []float64{missing.NumSegments, missing.Bhattacharyya, missing.Spikiness, missing.Entropy, missing.ReadCount} {
		expect.True(t, math.IsNaN(v))
	}

	table, err = Gather(ctx, tmpdir, sheet, "D2", results.DefaultMethod)
	assert.NoError(t, err)
	assert.EQ(t, len(table), 1)
	expect.True(t, math.IsNaN(table[0].Bhattacharyya))
	expect.True(t, math.IsNaN(table[0].Entropy))
	expect.EQ(t, table[0].ReadCount, 500000.0)

	// Another method has no models at all.
	table, err = Gather(ctx, tmpdir, sheet, "D2", "HMM")
	assert.NoError(t, err)
	expect.True(t, math.IsNaN(table[0].ReadCount))

	var buf bytes.Buffer
	assert.NoError(t, WriteTable(&buf, table))
	expect.EQ(t, buf.String(), "sample_name\tnum.segments\tbhattacharyya\tspikiness\tentropy\tread.count\ne01\tNA\tNA\tNA\tNA\tNA\n")
}

func TestExcludedCells(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()
	sheet := depthCohort(t, ctx, tmpdir)

	// Nine cells have values, so both tails are one cell wide: d01 has the
	// lowest Bhattacharyya distance and the highest spikiness.  d03 and d08
	// fail on depth alone.
	excluded, err := ExcludedCells(ctx, tmpdir, sheet, "D1", DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, excluded.Sorted(), []samplesheet.SampleName{"d01", "d03", "d07", "d08"})

	// The infinite distance of e01 reads as missing.
	excluded, err = ExcludedCells(ctx, tmpdir, sheet, "D2", DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, excluded.Sorted(), []samplesheet.SampleName{"e01"})

	// Removing the excluded cells leaves a sheet whose table reports none of
	// them.
	d1, err := ExcludedCells(ctx, tmpdir, sheet, "D1", DefaultOpts)
	assert.NoError(t, err)
	filtered := samplesheet.RemoveSamples(sheet, d1)
	table, err := Gather(ctx, tmpdir, filtered, "D1", "")
	assert.NoError(t, err)
	expect.EQ(t, len(table), 6)
	expect.EQ(t, len(table.Names().Intersect(d1)), 0)
}

func TestWriteOverlapReport(t *testing.T) {
	table := Table{
		metrics("a", 300000, 0.5, 0.1),
		metrics("b", 100, 0.5, 0.1),
	}
	opts := DefaultOpts
	opts.BhattacharyyaThreshold = 0.3
	opts.SpikinessThreshold = 0.5
	d := Filter(table, opts)
	var buf bytes.Buffer
	assert.NoError(t, WriteOverlapReport(&buf, []string{"D1", "D2"}, map[string]Decision{"D1": d}))
	html := buf.String()
	expect.HasSubstr(t, html, "QC overlap")
	expect.HasSubstr(t, html, "included 1, excluded 1")
}
