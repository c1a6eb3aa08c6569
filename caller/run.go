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

package caller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cnvpipe/genome"
	"github.com/grailbio/cnvpipe/results"
	"github.com/grailbio/cnvpipe/samplesheet"
	"github.com/grailbio/cnvpipe/store"
)

// Opts configures Run.  The fields mirror CallOpts; Run fills in the
// directories and the step size.
type Opts struct {
	// Caller runs the calls. If nil, CommandCaller{} is used.
	Caller Caller
	// Assembly names the reference assembly.
	Assembly string
	// CPU is the CPU budget of the caller. If <= 0, runtime.NumCPU() is used.
	CPU int
	// BinSize is the width of the non-overlapping bins.
	BinSize int
	// Blacklist and Sequenceability are optional artifact paths.
	Blacklist       string
	Sequenceability string
	// CorrectionMethods is applied in order.
	CorrectionMethods []CorrectionMethod
	// Chromosomes restricts the analysis.
	Chromosomes genome.Chromosomes
	// Method is the segmentation method.
	Method string
	// States is the copy-number state space.
	States []string
	// MinMapQ is the minimum mapping quality of a counted read.
	MinMapQ int
	// StopAfterBinning and Plot are passed through.
	StopAfterBinning bool
	Plot             bool
}

// DefaultOpts are the default options.
var DefaultOpts = Opts{
	Assembly:          "GRCh38",
	BinSize:           1000000,
	CorrectionMethods: []CorrectionMethod{GC},
	Chromosomes:       genome.DefaultAutosomes.Union(genome.DefaultAllosomes),
	Method:            results.DefaultMethod,
	States:            DefaultStates,
	MinMapQ:           10,
}

// StagingDir returns the staging area of donor under outputDir.
func StagingDir(outputDir, donor string) string {
	return file.Join(outputDir, ".tmp_"+donor)
}

// Run calls the samples of sheet that belong to donor, writing the result
// tree to results.DonorDir(outputDir, donor).
//
// Every sample must have a BAM index; Run checks them all before touching
// the file system and reports each missing one.  The staging area is
// removed whether or not the call succeeds.
func Run(ctx context.Context, outputDir, donor string, sheet *samplesheet.Samplesheet, opts Opts) (err error) {
	samples := sheet.ForDonor(donor)
	if samples.Len() == 0 {
		return errors.E(errors.Invalid, "caller", "donor", donor, "no samples")
	}
	if err = checkInputs(ctx, samples); err != nil {
		return errors.E(err, "caller", "donor", donor)
	}
	staging := StagingDir(outputDir, donor)
	if err = os.RemoveAll(staging); err != nil {
		return errors.E(err, "caller", "donor", donor)
	}
	if err = store.MkdirAll(staging); err != nil {
		return errors.E(err, "caller", "donor", donor)
	}
	defer func() {
		if e := os.RemoveAll(staging); e != nil {
			log.Error.Printf("caller: donor %s: remove %s: %v", donor, staging, e)
			if err == nil {
				err = e
			}
		}
	}()
	if err = stage(staging, samples); err != nil {
		return errors.E(err, "caller", "donor", donor)
	}

	cpu := opts.CPU
	if cpu <= 0 {
		cpu = runtime.NumCPU()
	}
	c := opts.Caller
	if c == nil {
		c = CommandCaller{}
	}
	call := CallOpts{
		InputDir:          staging,
		OutputDir:         results.DonorDir(outputDir, donor),
		Assembly:          opts.Assembly,
		CPU:               cpu,
		BinSize:           opts.BinSize,
		StepSize:          opts.BinSize,
		CorrectionMethods: opts.CorrectionMethods,
		Chromosomes:       opts.Chromosomes,
		RemoveDuplicates:  true,
		RetainRawReads:    false,
		Blacklist:         opts.Blacklist,
		States:            opts.States,
		Method:            opts.Method,
		MinMapQ:           opts.MinMapQ,
		Sequenceability:   opts.Sequenceability,
		StopAfterBinning:  opts.StopAfterBinning,
		Plot:              opts.Plot,
	}
	start := time.Now()
	log.Printf("caller: donor %s: calling %d samples, bin size %d, correction %v",
		donor, samples.Len(), opts.BinSize, opts.CorrectionMethods)
	if err = c.Call(ctx, call); err != nil {
		return errors.E(err, "caller", "donor", donor)
	}
	log.Printf("caller: donor %s: done in %v", donor, time.Since(start))
	return nil
}

// checkInputs verifies that every sample has its BAM file and index.
func checkInputs(ctx context.Context, samples *samplesheet.Samplesheet) error {
	var missing []string
	for _, sample := range samples.Samples() {
		for _, path := range []string{sample.Filename, sample.IndexPath()} {
			if _, err := file.Stat(ctx, path); err != nil {
				missing = append(missing, fmt.Sprintf("%s: %s", sample.Name, path))
			}
		}
	}
	if len(missing) > 0 {
		return errors.E(errors.Precondition, "missing input files: "+strings.Join(missing, ", "))
	}
	return nil
}

// stage links each sample's BAM file and index into dir.
func stage(dir string, samples *samplesheet.Samplesheet) error {
	seen := make(map[string]samplesheet.SampleName)
	for _, sample := range samples.Samples() {
		base := sample.FileBase()
		if other, ok := seen[base]; ok {
			return errors.E(errors.Invalid, fmt.Sprintf("samples %s and %s share the file name %s", other, sample.Name, base))
		}
		seen[base] = sample.Name
		for _, src := range []string{sample.Filename, sample.IndexPath()} {
			abs, err := filepath.Abs(src)
			if err != nil {
				return err
			}
			if err := os.Symlink(abs, filepath.Join(dir, filepath.Base(src))); err != nil {
				return errors.E(err, "stage", string(sample.Name))
			}
		}
	}
	return nil
}
