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

// Package callertest provides an in-process stand-in for the copy-number
// caller.
package callertest

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/grailbio/cnvpipe/caller"
	"github.com/grailbio/cnvpipe/coverage"
	"github.com/grailbio/cnvpipe/genome"
	"github.com/grailbio/cnvpipe/results"
)

// Fake is a caller.Caller that bins the staged BAM files with package
// coverage and writes a model per sample.  It is safe for concurrent use.
type Fake struct {
	// Quality returns the quality metrics of the model of sampleBase. If
	// nil, every metric is missing.
	Quality func(sampleBase string) results.QualityInfo
	// Skip lists sample bases that get no model.
	Skip map[string]bool
	// Err, if set, is returned by every call after it is recorded.
	Err error

	mu     sync.Mutex
	calls  []caller.CallOpts
	inputs [][]string
}

// Calls returns the recorded invocations.
func (f *Fake) Calls() []caller.CallOpts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]caller.CallOpts(nil), f.calls...)
}

// Inputs returns, per invocation, the sorted names found in the input
// directory.
func (f *Fake) Inputs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.inputs...)
}

// Call implements caller.Caller.
func (f *Fake) Call(ctx context.Context, opts caller.CallOpts) error {
	entries, err := ioutil.ReadDir(opts.InputDir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.inputs = append(f.inputs, names)
	f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for _, name := range names {
		if !strings.HasSuffix(name, ".bam") {
			continue
		}
		path := filepath.Join(opts.InputDir, name)
		chroms, err := genome.ChromosomeLengths(path, opts.Chromosomes)
		if err != nil {
			return err
		}
		layout, err := genome.NewLayout(chroms, opts.BinSize, opts.StepSize)
		if err != nil {
			return err
		}
		table, err := coverage.CountFile(path, layout, coverage.Opts{MinMapQ: opts.MinMapQ})
		if err != nil {
			return err
		}
		if err := results.WriteBinned(ctx, results.BinnedPath(opts.OutputDir, name, opts.BinSize), layout, table.Counts); err != nil {
			return err
		}
		if opts.StopAfterBinning || f.Skip[name] {
			continue
		}
		quality := results.MissingQuality
		if f.Quality != nil {
			quality = f.Quality(name)
		}
		model := results.Model{ID: name, QualityInfo: quality}
		if err := results.WriteModel(ctx, results.ModelPath(opts.OutputDir, opts.Method, name, "dnacopy"), model); err != nil {
			return err
		}
	}
	return nil
}
