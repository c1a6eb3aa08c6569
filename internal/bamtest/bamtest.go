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

// Package bamtest writes small BAM fixtures for tests.
package bamtest

import (
	"bytes"
	"testing"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
)

// Ref describes one reference sequence of a fixture header.
type Ref struct {
	Name string
	Len  int
}

// NewHeader returns a header with the given references.
func NewHeader(t testing.TB, refs ...Ref) *sam.Header {
	var samRefs []*sam.Reference
	for _, r := range refs {
		ref, err := sam.NewReference(r.Name, "", "", r.Len, nil, nil)
		assert.NoError(t, err)
		samRefs = append(samRefs, ref)
	}
	header, err := sam.NewHeader(nil, samRefs)
	assert.NoError(t, err)
	return header
}

// Read returns a mapped 50-base single-end read at pos on ref.
func Read(name string, ref *sam.Reference, pos int, mapq byte) *sam.Record {
	return &sam.Record{
		Name:    name,
		Ref:     ref,
		Pos:     pos,
		MapQ:    mapq,
		Cigar:   []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 50)},
		MateRef: nil,
		MatePos: -1,
		Seq:     sam.NewSeq(bytes.Repeat([]byte{'A'}, 50)),
		Qual:    bytes.Repeat([]byte{30}, 50),
	}
}

// Write writes records to a BAM file at path.  When withIndex is set, an
// empty file is created at path + ".bai" so that index checks pass.
func Write(t testing.TB, path string, header *sam.Header, records []*sam.Record, withIndex bool) {
	ctx := vcontext.Background()
	out, err := file.Create(ctx, path)
	assert.NoError(t, err)
	w, err := bam.NewWriter(out.Writer(ctx), header, 1)
	assert.NoError(t, err)
	for _, r := range records {
		assert.NoError(t, w.Write(r))
	}
	assert.NoError(t, w.Close())
	assert.NoError(t, out.Close(ctx))
	if withIndex {
		idx, err := file.Create(ctx, path+".bai")
		assert.NoError(t, err)
		assert.NoError(t, idx.Close(ctx))
	}
}
