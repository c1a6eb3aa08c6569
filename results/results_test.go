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
package results

import (
	"encoding/json"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cnvpipe/genome"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestModelRoundTrip(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	donorDir := DonorDir(tmpdir, "D1")
	path := ModelPath(donorDir, DefaultMethod, "cell1.bam", "dnacopy")
	expect.EQ(t, path, filepath.Join(tmpdir, "D1", "MODELS", "method-edivisive", "cell1.bam_dnacopy.model.json"))

	m := Model{ID: "cell1.bam", QualityInfo: QualityInfo{
		NumSegments:    12,
		Bhattacharyya:  0.8,
		Spikiness:      Number(math.Inf(1)),
		Entropy:        Missing,
		TotalReadCount: 350000,
	}}
	assert.NoError(t, WriteModel(ctx, path, m))
	got, err := ReadModel(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, got.ID, "cell1.bam")
	expect.EQ(t, got.QualityInfo.NumSegments, Number(12))
	expect.EQ(t, got.QualityInfo.Bhattacharyya, Number(0.8))
	expect.True(t, math.IsInf(float64(got.QualityInfo.Spikiness), 1))
	expect.True(t, got.QualityInfo.Entropy.IsMissing())
	expect.EQ(t, got.QualityInfo.TotalReadCount, Number(350000))
}

func TestReadModelAbsentFields(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	path := filepath.Join(tmpdir, "m.model.json")
	assert.NoError(t, ioutil.WriteFile(path, []byte(`{"qualityInfo": {"bhattacharyya": "NA", "spikiness": "NaN", "entropy": "-Inf"}}`), 0600))
	m, err := ReadModel(ctx, path)
	assert.NoError(t, err)
	expect.True(t, m.QualityInfo.NumSegments.IsMissing())
	expect.True(t, m.QualityInfo.Bhattacharyya.IsMissing())
	expect.True(t, m.QualityInfo.Spikiness.IsMissing())
	expect.True(t, math.IsInf(float64(m.QualityInfo.Entropy), -1))
	expect.True(t, m.QualityInfo.TotalReadCount.IsMissing())

	var n Number
	expect.NotNil(t, json.Unmarshal([]byte(`"high"`), &n))
}

func TestFindModels(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	donorDir := DonorDir(tmpdir, "D1")
	paths, err := FindModels(ctx, donorDir, DefaultMethod, "a.bam")
	assert.NoError(t, err)
	expect.EQ(t, len(paths), 0)

	a1 := ModelPath(donorDir, DefaultMethod, "a.bam", "x")
	a2 := ModelPath(donorDir, "HMM", "a.bam", "x")
	ab := ModelPath(donorDir, DefaultMethod, "ab.bam", "x")
	for _, p := range []string{a1, a2, ab} {
		assert.NoError(t, WriteModel(ctx, p, Model{QualityInfo: MissingQuality}))
	}
	assert.NoError(t, ioutil.WriteFile(filepath.Join(filepath.Dir(a1), "a.bam_notes.txt"), nil, 0600))

	paths, err = FindModels(ctx, donorDir, DefaultMethod, "a.bam")
	assert.NoError(t, err)
	expect.EQ(t, paths, []string{a1})

	paths, err = FindAllModels(ctx, donorDir, "a.bam")
	assert.NoError(t, err)
	expect.EQ(t, len(paths), 2)

	assert.NoError(t, os.Remove(a1))
	paths, err = FindModels(ctx, donorDir, DefaultMethod, "a.bam")
	assert.NoError(t, err)
	expect.EQ(t, len(paths), 0)
}

func TestListModels(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	donorDir := DonorDir(tmpdir, "D1")
	m, err := ListModels(ctx, donorDir, DefaultMethod)
	assert.NoError(t, err)
	expect.EQ(t, m.Len(), 0)
	expect.EQ(t, len(m.For("a.bam")), 0)

	// "a.bam_" sorts between "a.bam" and "ab.bam", and "a.bam.x_" shares
	// the "a.bam" prefix without being a model of a.bam.
	var (
		a   = []string{ModelPath(donorDir, DefaultMethod, "a.bam", "dnacopy"), ModelPath(donorDir, DefaultMethod, "a.bam", "seg")}
		ab  = ModelPath(donorDir, DefaultMethod, "ab.bam", "dnacopy")
		ax  = ModelPath(donorDir, DefaultMethod, "a.bam.x", "dnacopy")
		hmm = ModelPath(donorDir, "HMM", "a.bam", "dnacopy")
	)
	for _, p := range append([]string{ab, ax, hmm}, a...) {
		assert.NoError(t, WriteModel(ctx, p, Model{QualityInfo: MissingQuality}))
	}
	m, err = ListModels(ctx, donorDir, DefaultMethod)
	assert.NoError(t, err)
	expect.EQ(t, m.Len(), 4)
	expect.EQ(t, m.For("a.bam"), a)
	expect.EQ(t, m.For("ab.bam"), []string{ab})
	expect.EQ(t, m.For("a.bam.x"), []string{ax})
	expect.EQ(t, len(m.For("b.bam")), 0)
}

func TestBinned(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	layout, err := genome.NewLayout([]genome.Chromosome{{Name: "1", Len: 300}, {Name: "X", Len: 200}}, 100, 100)
	assert.NoError(t, err)
	path := BinnedPath(DonorDir(tmpdir, "cal"), "c.bam", 100)
	expect.EQ(t, filepath.Base(path), "c.bam_binsize_100.tsv.gz")

	expect.NotNil(t, WriteBinned(ctx, path, layout, []int64{1}))
	assert.NoError(t, WriteBinned(ctx, path, layout, []int64{5, 0, 7, 3, 9}))
	rows, err := ReadBinned(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, rows, []BinCount{
		{"1", 0, 100, 5},
		{"1", 100, 200, 0},
		{"1", 200, 300, 7},
		{"X", 0, 100, 3},
		{"X", 100, 200, 9},
	})
}
