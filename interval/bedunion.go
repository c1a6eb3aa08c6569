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

package interval

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// PosType is BEDUnion's coordinate type.
type PosType int32

const posTypeMax = math.MaxInt32

// Entry represents a single interval, with 0-based half-open coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// BEDUnion is a collection of length-2N sequences, one per chromosome, where
// N is the number of disjoint intervals on the chromosome.  The start of
// interval #k is in element [2k] and its end in element [2k+1], and the
// intervals are stored in increasing order.
type BEDUnion struct {
	// nameMap is a chromosome-keyed map with disjoint-interval-set values.
	nameMap map[string][]PosType
	// chrOrder lists the chromosomes in input order.
	chrOrder []string
}

// builder merges a stream of entries, sorted by start within each
// chromosome, into a BEDUnion.
type builder struct {
	u                  BEDUnion
	prevChr            string
	prevStart, prevEnd PosType
	chrIntervals       []PosType
}

func newBuilder() *builder {
	return &builder{u: BEDUnion{nameMap: make(map[string][]PosType)}}
}

func (b *builder) flush() {
	if b.prevChr == "" {
		return
	}
	if b.prevEnd != -1 {
		b.chrIntervals = append(b.chrIntervals, b.prevStart, b.prevEnd)
	}
	b.u.nameMap[b.prevChr] = b.chrIntervals
	b.u.chrOrder = append(b.u.chrOrder, b.prevChr)
}

func (b *builder) add(e Entry) error {
	if e.Start0 < 0 {
		return fmt.Errorf("interval: negative start coordinate %d on %s", e.Start0, e.ChrName)
	}
	if e.End < e.Start0 || e.End >= posTypeMax {
		return fmt.Errorf("interval: invalid coordinate pair [%d, %d) on %s", e.Start0, e.End, e.ChrName)
	}
	if e.ChrName != b.prevChr {
		b.flush()
		if _, found := b.u.nameMap[e.ChrName]; found {
			return fmt.Errorf("interval: unsorted input (split chromosome %v)", e.ChrName)
		}
		b.prevChr = e.ChrName
		b.chrIntervals = []PosType{}
		// An empty interval still mentions the chromosome.
		b.prevStart, b.prevEnd = -1, -1
		if e.End != e.Start0 {
			b.prevStart, b.prevEnd = e.Start0, e.End
		}
		return nil
	}
	if e.End == e.Start0 {
		return nil
	}
	if b.prevEnd == -1 {
		b.prevStart, b.prevEnd = e.Start0, e.End
		return nil
	}
	if e.Start0 > b.prevEnd {
		b.chrIntervals = append(b.chrIntervals, b.prevStart, b.prevEnd)
		b.prevStart, b.prevEnd = e.Start0, e.End
		return nil
	}
	if e.Start0 < b.prevStart {
		return fmt.Errorf("interval: unsorted input at %s:%d", e.ChrName, e.Start0)
	}
	if e.End > b.prevEnd {
		b.prevEnd = e.End
	}
	return nil
}

func (b *builder) finish() BEDUnion {
	b.flush()
	b.prevChr = ""
	return b.u
}

// NewBEDUnionFromEntries initializes a BEDUnion from entries.  Entries of one
// chromosome must be contiguous and sorted by start.
func NewBEDUnionFromEntries(entries []Entry) (BEDUnion, error) {
	b := newBuilder()
	for _, e := range entries {
		if err := b.add(e); err != nil {
			return BEDUnion{}, err
		}
	}
	return b.finish(), nil
}

// NewBEDUnion loads the first three columns of a sorted BED, merging
// touching/overlapping intervals and eliminating empty ones in the process.
// Blank lines and header lines ("#", "track", "browser") are skipped.
func NewBEDUnion(reader io.Reader) (BEDUnion, error) {
	scanner := bufio.NewScanner(reader)
	b := newBuilder()
	var tokens [3][]byte
	for lineIdx := 1; scanner.Scan(); lineIdx++ {
		curLine := scanner.Bytes()
		if bytes.HasPrefix(curLine, []byte("#")) || bytes.HasPrefix(curLine, []byte("track")) || bytes.HasPrefix(curLine, []byte("browser")) {
			continue
		}
		nToken := getTokens(tokens[:], curLine)
		if nToken != 3 {
			if nToken == 0 {
				continue
			}
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d has fewer tokens than expected", lineIdx)
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
		end, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
		if end >= posTypeMax {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: end %d out of range", lineIdx, end)
		}
		// The chromosome name must be copied: it refers to the scanner's buffer.
		if err := b.add(Entry{ChrName: string(tokens[0]), Start0: PosType(start), End: PosType(end)}); err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return BEDUnion{}, err
	}
	return b.finish(), nil
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader. Gzip and BGZF files are decompressed.
func NewBEDUnionFromPath(ctx context.Context, path string) (bedUnion BEDUnion, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	return NewBEDUnion(reader)
}

// Chromosomes returns the chromosomes mentioned by the union, in input
// order.
func (u *BEDUnion) Chromosomes() []string { return u.chrOrder }

// Entries returns the disjoint intervals on chrName.
func (u *BEDUnion) Entries(chrName string) []Entry {
	ivs := u.nameMap[chrName]
	entries := make([]Entry, 0, len(ivs)/2)
	for i := 0; i+1 < len(ivs); i += 2 {
		entries = append(entries, Entry{ChrName: chrName, Start0: ivs[i], End: ivs[i+1]})
	}
	return entries
}

// NumIntervals returns the number of disjoint intervals on chrName.
func (u *BEDUnion) NumIntervals(chrName string) int { return len(u.nameMap[chrName]) / 2 }

// CoveredBases returns the number of bases of chrName inside the union.
func (u *BEDUnion) CoveredBases(chrName string) int {
	ivs := u.nameMap[chrName]
	n := 0
	for i := 0; i+1 < len(ivs); i += 2 {
		n += int(ivs[i+1] - ivs[i])
	}
	return n
}

// Write writes the union as a three-column BED, chromosomes in input order.
func (u *BEDUnion) Write(w io.Writer) error {
	out := tsv.NewWriter(w)
	for _, chr := range u.chrOrder {
		for _, e := range u.Entries(chr) {
			out.WriteString(e.ChrName)
			out.WriteInt64(int64(e.Start0))
			out.WriteInt64(int64(e.End))
			if err := out.EndLine(); err != nil {
				return err
			}
		}
	}
	return out.Flush()
}
