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

// Package samplesheet holds the roster of per-cell samples the pipeline
// processes.  A Samplesheet is loaded once and never mutated: filtering
// always produces a new Samplesheet.
package samplesheet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// SampleName identifies a sample.  Names are unique within a Samplesheet.
type SampleName string

// Sample is one row of a samplesheet.
type Sample struct {
	Name SampleName
	// Filename is the path of the sample's BAM file. Its index is expected at
	// Filename + ".bai".
	Filename string
	// Donor groups the samples that share an output tree.
	Donor string
	// IncludeInSF marks samples eligible for sequenceability-factor
	// derivation.
	IncludeInSF bool
}

// FileBase returns the base name of the sample's BAM file.  The caller names
// per-cell artifacts after it.
func (s Sample) FileBase() string {
	return filepath.Base(s.Filename)
}

// IndexPath returns the expected path of the sample's BAM index.
func (s Sample) IndexPath() string {
	return s.Filename + ".bai"
}

// Samplesheet is an ordered list of samples with unique names.
type Samplesheet struct {
	samples []Sample
	byName  map[SampleName]int
}

// New validates samples and returns a Samplesheet holding a copy of them.
// Empty fields and duplicate sample names are rejected.
func New(samples []Sample) (*Samplesheet, error) {
	s := &Samplesheet{
		samples: append([]Sample(nil), samples...),
		byName:  make(map[SampleName]int, len(samples)),
	}
	for i, sample := range s.samples {
		if sample.Name == "" || sample.Filename == "" || sample.Donor == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("samplesheet: row %d: sample_name, filename and donor must be nonempty", i+1))
		}
		if j, ok := s.byName[sample.Name]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("samplesheet: duplicate sample_name %q in rows %d and %d", sample.Name, j+1, i+1))
		}
		s.byName[sample.Name] = i
	}
	return s, nil
}

// Samples returns the samples in order. The caller must not modify the
// returned slice.
func (s *Samplesheet) Samples() []Sample { return s.samples }

// Len returns the number of samples.
func (s *Samplesheet) Len() int { return len(s.samples) }

// Lookup returns the sample with the given name.
func (s *Samplesheet) Lookup(name SampleName) (Sample, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Sample{}, false
	}
	return s.samples[i], true
}

// Names returns the set of sample names.
func (s *Samplesheet) Names() NameSet {
	names := make(NameSet, len(s.samples))
	for _, sample := range s.samples {
		names.Add(sample.Name)
	}
	return names
}

// Filter returns a new Samplesheet holding the samples for which keep
// returns true, in their original order.
func (s *Samplesheet) Filter(keep func(Sample) bool) *Samplesheet {
	out := &Samplesheet{byName: make(map[SampleName]int)}
	for _, sample := range s.samples {
		if keep(sample) {
			out.byName[sample.Name] = len(out.samples)
			out.samples = append(out.samples, sample)
		}
	}
	return out
}

// Donors returns the distinct donors, in order of first appearance.
func (s *Samplesheet) Donors() []string {
	seen := make(map[string]bool)
	var donors []string
	for _, sample := range s.samples {
		if !seen[sample.Donor] {
			seen[sample.Donor] = true
			donors = append(donors, sample.Donor)
		}
	}
	return donors
}

// ForDonor returns the samples belonging to donor.
func (s *Samplesheet) ForDonor(donor string) *Samplesheet {
	return s.Filter(func(sample Sample) bool { return sample.Donor == donor })
}

// SequenceabilitySubset returns the samples flagged include_in_sf.
func (s *Samplesheet) SequenceabilitySubset() *Samplesheet {
	return s.Filter(func(sample Sample) bool { return sample.IncludeInSF })
}

// Filenames returns the BAM paths of the samples, in order.
func (s *Samplesheet) Filenames() []string {
	paths := make([]string, len(s.samples))
	for i, sample := range s.samples {
		paths[i] = sample.Filename
	}
	return paths
}

// row is the on-disk form of a Sample.
type row struct {
	SampleName  string `tsv:"sample_name"`
	Filename    string `tsv:"filename"`
	Donor       string `tsv:"donor"`
	IncludeInSF string `tsv:"include_in_sf"`
}

// Read parses a tab-separated samplesheet with a header row naming the
// columns sample_name, filename, donor and include_in_sf.  Other columns are
// ignored.
func Read(r io.Reader) (*Samplesheet, error) {
	reader := tsv.NewReader(bufio.NewReader(r))
	reader.HasHeaderRow = true
	reader.UseHeaderNames = true
	var samples []Sample
	for line := 2; ; line++ {
		var rec row
		if err := reader.Read(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, err, "samplesheet: read")
		}
		include, err := strconv.ParseBool(rec.IncludeInSF)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("samplesheet: line %d: include_in_sf %q is not a boolean", line, rec.IncludeInSF))
		}
		samples = append(samples, Sample{
			Name:        SampleName(rec.SampleName),
			Filename:    rec.Filename,
			Donor:       rec.Donor,
			IncludeInSF: include,
		})
	}
	return New(samples)
}

// Load reads the samplesheet at path, which may be gzip- or
// bzip2-compressed.
func Load(ctx context.Context, path string) (s *Samplesheet, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "samplesheet.Load", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		defer u.Close() // nolint: errcheck
		r = u
	}
	if s, err = Read(r); err != nil {
		return nil, errors.E(err, path)
	}
	return s, nil
}

// Write writes s in the format accepted by Read.
func (s *Samplesheet) Write(w io.Writer) error {
	out := tsv.NewWriter(w)
	out.WriteString("sample_name")
	out.WriteString("filename")
	out.WriteString("donor")
	out.WriteString("include_in_sf")
	if err := out.EndLine(); err != nil {
		return err
	}
	for _, sample := range s.samples {
		out.WriteString(string(sample.Name))
		out.WriteString(sample.Filename)
		out.WriteString(sample.Donor)
		out.WriteString(strconv.FormatBool(sample.IncludeInSF))
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}

// Save writes s to path.
func (s *Samplesheet) Save(ctx context.Context, path string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "samplesheet.Save", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	return s.Write(out.Writer(ctx))
}
