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
package fasta_test

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cnvpipe/encoding/fasta"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const fastaData = ">seq1\n" + "ACGTA\nCGTAC\nGT\n" + ">seq2 A viral sequence\n" + "ACGT\n" + "ACGT\n"

func TestGet(t *testing.T) {
	tests := []struct {
		seq     string
		start   uint64
		end     uint64
		want    string
		wantErr bool
	}{
		{"seq1", 1, 2, "C", false},
		{"seq1", 1, 6, "CGTAC", false},
		{"seq1", 0, 12, "ACGTACGTACGT", false},
		{"seq2", 2, 5, "GTA", false},
		{"seq0", 0, 1, "", true},
		{"seq1", 10, 13, "", true},
		{"seq1", 4, 3, "", true},
	}
	f, err := fasta.New(strings.NewReader(fastaData))
	assert.NoError(t, err)
	for _, tt := range tests {
		got, err := f.Get(tt.seq, tt.start, tt.end)
		if tt.wantErr {
			expect.NotNil(t, err, tt)
			continue
		}
		assert.NoError(t, err, tt)
		expect.EQ(t, got, tt.want, tt)
	}
	expect.EQ(t, f.SeqNames(), []string{"seq1", "seq2"})
	n, err := f.Len("seq2")
	assert.NoError(t, err)
	expect.EQ(t, n, uint64(8))
}

func TestMalformed(t *testing.T) {
	for _, data := range []string{"ACGT\n>seq1\nACGT\n", ">\nACGT\n", ">a\nAC\n>a\nGT\n"} {
		_, err := fasta.New(strings.NewReader(data))
		expect.NotNil(t, err, data)
	}
}

func TestLoad(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	path := filepath.Join(tmpdir, "ref.fa")
	assert.NoError(t, ioutil.WriteFile(path, []byte(fastaData), 0600))
	f, err := fasta.Load(vcontext.Background(), path)
	assert.NoError(t, err)
	expect.EQ(t, f.SeqNames(), []string{"seq1", "seq2"})
}

func TestGCFraction(t *testing.T) {
	gc, ok := fasta.GCFraction("ACGTNNgc")
	expect.True(t, ok)
	expect.EQ(t, gc, 4.0/6.0)
	_, ok = fasta.GCFraction("NNNN")
	expect.False(t, ok)
}
