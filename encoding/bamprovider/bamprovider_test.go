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
package bamprovider_test

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/cnvpipe/encoding/bamprovider"
	"github.com/grailbio/cnvpipe/internal/bamtest"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestBAMProvider(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	header := bamtest.NewHeader(t, bamtest.Ref{Name: "chr1", Len: 10000}, bamtest.Ref{Name: "chr2", Len: 5000})
	chr1 := bamprovider.RefByName(header, "chr1")
	chr2 := bamprovider.RefByName(header, "chr2")
	reads := []*sam.Record{
		bamtest.Read("r1", chr1, 100, 60),
		bamtest.Read("r2", chr1, 2000, 60),
		bamtest.Read("r3", chr2, 40, 5),
	}
	path := filepath.Join(tmpdir, "cell.bam")
	bamtest.Write(t, path, header, reads, false)

	p := bamprovider.NewProvider(path)
	h, err := p.GetHeader()
	assert.NoError(t, err)
	assert.EQ(t, len(h.Refs()), 2)
	expect.EQ(t, h.Refs()[1].Name(), "chr2")
	expect.EQ(t, h.Refs()[1].Len(), 5000)

	iter := p.NewIterator()
	var names []string
	for iter.Scan() {
		names = append(names, iter.Record().Name)
	}
	assert.NoError(t, iter.Close())
	assert.NoError(t, p.Close())
	expect.EQ(t, names, []string{"r1", "r2", "r3"})
}

func TestBAMProviderMissingFile(t *testing.T) {
	p := bamprovider.NewProvider("/nonexistent/cell.bam")
	_, err := p.GetHeader()
	expect.NotNil(t, err)
	iter := p.NewIterator()
	expect.False(t, iter.Scan())
	expect.NotNil(t, iter.Close())
	expect.NotNil(t, p.Close())
}
