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

// Package pipeline drives a copy-number run over a samplesheet: it derives
// the shared correction artifacts and then calls every donor with them.
package pipeline

import (
	"context"
	"runtime"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/cnvpipe/blacklist"
	"github.com/grailbio/cnvpipe/caller"
	"github.com/grailbio/cnvpipe/samplesheet"
	"github.com/grailbio/cnvpipe/sequenceability"
)

// Opts configures Run.
type Opts struct {
	// BlacklistBinSize is the bin size of the blacklist.
	BlacklistBinSize int
	// CallBinSize is the bin size of the calls and of the sequenceability
	// factors.
	CallBinSize int
	// Blacklist configures blacklist derivation, including the chromosome
	// groups. The calls are restricted to the union of the groups.
	Blacklist blacklist.Opts
	// Caller configures the calls.
	Caller caller.Opts
	// ApplySequenceability enables sequenceability correction.
	ApplySequenceability bool
	// Reference is the reference FASTA used to GC-correct the calibration
	// coverage. Optional.
	Reference string
	// CPU is the CPU budget. If <= 0, runtime.NumCPU() is used.
	CPU int
}

// DefaultOpts are the default options.
var DefaultOpts = Opts{
	BlacklistBinSize: 100000,
	CallBinSize:      1000000,
	Blacklist:        blacklist.DefaultOpts,
	Caller:           caller.DefaultOpts,
}

// Run derives the blacklist over all samples of sheet and, if requested,
// the sequenceability factors over the samples flagged include_in_sf, then
// calls each donor once with both.  Donors are called sequentially in order
// of first appearance; Run stops at the first donor that fails and leaves
// the results of earlier donors in place.
func Run(ctx context.Context, outputDir string, sheet *samplesheet.Samplesheet, opts Opts) error {
	start := time.Now()
	cpu := opts.CPU
	if cpu <= 0 {
		cpu = runtime.NumCPU()
	}
	sfSheet := sheet.SequenceabilitySubset()

	blOpts := opts.Blacklist
	blOpts.Coverage.Parallelism = cpu
	blacklistPath, err := blacklist.GetOrBuild(ctx, outputDir, sheet, opts.BlacklistBinSize, blOpts)
	if err != nil {
		return err
	}

	callOpts := opts.Caller
	callOpts.CPU = cpu
	callOpts.BinSize = opts.CallBinSize
	callOpts.Chromosomes = opts.Blacklist.Autosomes.Union(opts.Blacklist.Allosomes)

	var sequenceabilityPath string
	if opts.ApplySequenceability {
		sfOpts := sequenceability.Opts{Caller: callOpts, Reference: opts.Reference}
		if sequenceabilityPath, err = sequenceability.GetOrBuild(ctx, outputDir, sfSheet, opts.CallBinSize, sfOpts); err != nil {
			return err
		}
	} else {
		log.Printf("pipeline: sequenceability correction disabled")
	}

	callOpts.Blacklist = blacklistPath
	callOpts.Sequenceability = sequenceabilityPath
	callOpts.CorrectionMethods = []caller.CorrectionMethod{caller.GC}
	if sequenceabilityPath != "" {
		callOpts.CorrectionMethods = append(callOpts.CorrectionMethods, caller.Sequenceability)
	}
	donors := sheet.Donors()
	for i, donor := range donors {
		log.Printf("pipeline: donor %d/%d: %s", i+1, len(donors), donor)
		if err := caller.Run(ctx, outputDir, donor, sheet, callOpts); err != nil {
			return err
		}
	}
	log.Printf("pipeline: %d donors done in %v", len(donors), time.Since(start))
	return nil
}
