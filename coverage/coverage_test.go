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
package coverage_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/grailbio/cnvpipe/coverage"
	"github.com/grailbio/cnvpipe/encoding/bamprovider"
	"github.com/grailbio/cnvpipe/genome"
	"github.com/grailbio/cnvpipe/internal/bamtest"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func testLayout(t *testing.T) *genome.Layout {
	layout, err := genome.NewLayout([]genome.Chromosome{{Name: "chr1", Len: 1000}, {Name: "chrX", Len: 500}}, 250, 250)
	assert.NoError(t, err)
	return layout
}

func TestCount(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	// The sample names its references without the "chr" prefix.
	header := bamtest.NewHeader(t, bamtest.Ref{Name: "1", Len: 1000}, bamtest.Ref{Name: "MT", Len: 100}, bamtest.Ref{Name: "X", Len: 500})
	chr1 := bamprovider.RefByName(header, "1")
	mt := bamprovider.RefByName(header, "MT")
	chrX := bamprovider.RefByName(header, "X")

	dup := bamtest.Read("dup", chr1, 10, 60)
	dup.Flags |= sam.Duplicate
	secondary := bamtest.Read("sec", chr1, 10, 60)
	secondary.Flags |= sam.Secondary
	reads := []*sam.Record{
		bamtest.Read("a", chr1, 0, 60),
		bamtest.Read("b", chr1, 249, 60),
		bamtest.Read("c", chr1, 250, 60),
		bamtest.Read("lowq", chr1, 260, 5),
		dup,
		secondary,
		bamtest.Read("m", mt, 5, 60),
		bamtest.Read("x", chrX, 400, 60),
	}
	path := filepath.Join(tmpdir, "cell.bam")
	bamtest.Write(t, path, header, reads, false)

	table, err := coverage.CountFile(path, testLayout(t), coverage.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, table.Counts, []int64{2, 1, 0, 0, 0, 1})
	expect.EQ(t, table.Total(), int64(4))

	table, err = coverage.CountFile(path, testLayout(t), coverage.Opts{MinMapQ: 0})
	assert.NoError(t, err)
	expect.EQ(t, table.Counts, []int64{2, 2, 0, 0, 0, 1})

	_, err = coverage.CountFile(filepath.Join(tmpdir, "missing.bam"), testLayout(t), coverage.DefaultOpts)
	expect.NotNil(t, err)
}

func TestCountOverlappingBins(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	header := bamtest.NewHeader(t, bamtest.Ref{Name: "chr1", Len: 400})
	chr1 := bamprovider.RefByName(header, "chr1")
	path := filepath.Join(tmpdir, "cell.bam")
	bamtest.Write(t, path, header, []*sam.Record{bamtest.Read("a", chr1, 150, 60)}, false)

	layout, err := genome.NewLayout([]genome.Chromosome{{Name: "chr1", Len: 400}}, 200, 100)
	assert.NoError(t, err)
	table, err := coverage.CountFile(path, layout, coverage.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, table.Counts, []int64{1, 1, 0})
}

func TestCountSamples(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	header := bamtest.NewHeader(t, bamtest.Ref{Name: "chr1", Len: 1000}, bamtest.Ref{Name: "chrX", Len: 500})
	chr1 := bamprovider.RefByName(header, "chr1")
	var paths []string
	for i := 0; i < 3; i++ {
		var reads []*sam.Record
		for j := 0; j <= i; j++ {
			reads = append(reads, bamtest.Read(fmt.Sprintf("r%d", j), chr1, 500+j, 60))
		}
		path := filepath.Join(tmpdir, fmt.Sprintf("cell%d.bam", i))
		bamtest.Write(t, path, header, reads, false)
		paths = append(paths, path)
	}

	for _, parallelism := range []int{1, 2, 8} {
		total, err := coverage.CountSamples(paths, testLayout(t), coverage.Opts{MinMapQ: 10, Parallelism: parallelism})
		assert.NoError(t, err)
		expect.EQ(t, total.Counts, []int64{0, 0, 6, 0, 0, 0}, parallelism)
	}

	total, err := coverage.CountSamples(nil, testLayout(t), coverage.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, total.Total(), int64(0))

	_, err = coverage.CountSamples(append(paths, filepath.Join(tmpdir, "missing.bam")), testLayout(t), coverage.DefaultOpts)
	expect.NotNil(t, err)
}

func TestTableAdd(t *testing.T) {
	a := coverage.NewTable(testLayout(t))
	b := coverage.NewTable(testLayout(t))
	a.Counts[0], b.Counts[0], b.Counts[5] = 1, 2, 3
	assert.NoError(t, a.Add(b))
	expect.EQ(t, a.Counts, []int64{3, 0, 0, 0, 0, 3})

	other, err := genome.NewLayout([]genome.Chromosome{{Name: "chr1", Len: 1000}}, 500, 500)
	assert.NoError(t, err)
	expect.NotNil(t, a.Add(coverage.NewTable(other)))
}
