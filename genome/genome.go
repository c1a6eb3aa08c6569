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

// Package genome describes the parts of a reference assembly the pipeline
// needs: which chromosomes are analysed, how long they are, and how they are
// tiled into fixed-width bins.
package genome

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cnvpipe/encoding/bamprovider"
)

// Chromosomes is an ordered set of chromosome names.  Names are compared
// without their "chr" prefix, so "chrX" and "X" refer to the same
// chromosome.
type Chromosomes []string

// DefaultAutosomes and DefaultAllosomes are the human chromosome groups.
var (
	DefaultAutosomes = MustParseChromosomes("1-22")
	DefaultAllosomes = MustParseChromosomes("X,Y")
)

// Normalize strips a leading "chr" from name.
func Normalize(name string) string {
	if len(name) > 3 && strings.EqualFold(name[:3], "chr") {
		return name[3:]
	}
	return name
}

// ParseChromosomes parses a comma-separated list of chromosome names.  An
// element of the form "<a>-<b>", where a and b are integers, expands to the
// numbered chromosomes a..b inclusive.
func ParseChromosomes(s string) (Chromosomes, error) {
	var c Chromosomes
	if strings.TrimSpace(s) == "" {
		return c, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("genome.ParseChromosomes: empty element in %q", s))
		}
		if dash := strings.IndexByte(part, '-'); dash > 0 {
			lo, err1 := strconv.Atoi(Normalize(part[:dash]))
			hi, err2 := strconv.Atoi(Normalize(part[dash+1:]))
			if err1 != nil || err2 != nil || lo > hi {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("genome.ParseChromosomes: bad range %q", part))
			}
			for i := lo; i <= hi; i++ {
				c = append(c, strconv.Itoa(i))
			}
			continue
		}
		c = append(c, part)
	}
	return c, nil
}

// MustParseChromosomes is ParseChromosomes, panicking on error.
func MustParseChromosomes(s string) Chromosomes {
	c, err := ParseChromosomes(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Contains reports whether name is a member of c.
func (c Chromosomes) Contains(name string) bool {
	name = Normalize(name)
	for _, n := range c {
		if Normalize(n) == name {
			return true
		}
	}
	return false
}

// Union returns the chromosomes of c followed by those of other that are not
// already in c.
func (c Chromosomes) Union(other Chromosomes) Chromosomes {
	u := append(Chromosomes(nil), c...)
	for _, n := range other {
		if !u.Contains(n) {
			u = append(u, n)
		}
	}
	return u
}

// String implements fmt.Stringer.
func (c Chromosomes) String() string {
	return strings.Join(c, ",")
}

// Chromosome is a named reference sequence and its length in bases.
type Chromosome struct {
	Name string
	Len  int
}

// ChromosomeLengths returns the lengths of the chromosomes in filter, as
// named and ordered in the header of the BAM file at path.  An empty filter
// selects every chromosome.
func ChromosomeLengths(path string, filter Chromosomes) (chroms []Chromosome, err error) {
	provider := bamprovider.NewProvider(path)
	defer func() {
		if e := provider.Close(); e != nil && err == nil {
			err = e
		}
	}()
	header, err := provider.GetHeader()
	if err != nil {
		return nil, errors.E(err, "genome.ChromosomeLengths", path)
	}
	for _, ref := range header.Refs() {
		if len(filter) > 0 && !filter.Contains(ref.Name()) {
			continue
		}
		chroms = append(chroms, Chromosome{Name: ref.Name(), Len: ref.Len()})
	}
	if len(chroms) == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("genome.ChromosomeLengths: no chromosome of %v in header of %s", filter, path))
	}
	return chroms, nil
}
