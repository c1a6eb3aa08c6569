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

// Package caller runs the external copy-number caller over the samples of
// one donor.
//
// The caller reads every BAM file of an input directory.  Run assembles that
// directory as a staging area of symbolic links next to the output tree,
// invokes the caller, and removes the staging area on every exit path.
package caller

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cnvpipe/genome"
)

// CorrectionMethod names a bias correction applied by the caller.
type CorrectionMethod string

const (
	// GC corrects for GC content.
	GC CorrectionMethod = "GC"
	// Sequenceability corrects with per-bin sequenceability factors.
	Sequenceability CorrectionMethod = "SC"
)

// DefaultStates is the full copy-number state space: zero inflation and
// 0- to 10-somy.
var DefaultStates = func() []string {
	states := []string{"zero-inflation"}
	for i := 0; i <= 10; i++ {
		states = append(states, fmt.Sprintf("%d-somy", i))
	}
	return states
}()

// CallOpts is one invocation of the caller.
type CallOpts struct {
	// InputDir holds the BAM files (and their indexes) to call.
	InputDir string
	// OutputDir receives the result tree.
	OutputDir string
	// Assembly names the reference assembly, e.g. "GRCh38".
	Assembly string
	// CPU is the number of threads the caller may use.
	CPU int
	// BinSize and StepSize define the bin layout.
	BinSize, StepSize int
	// CorrectionMethods is applied in order. Empty means no correction.
	CorrectionMethods []CorrectionMethod
	// Chromosomes restricts the analysis.
	Chromosomes genome.Chromosomes
	// RemoveDuplicates drops reads flagged as duplicates.
	RemoveDuplicates bool
	// RetainRawReads keeps per-read data in the result tree.
	RetainRawReads bool
	// Blacklist is the path of a BED(.gz) of bins to exclude, or "".
	Blacklist string
	// States is the copy-number state space.
	States []string
	// Method is the segmentation method.
	Method string
	// MinMapQ is the minimum mapping quality of a counted read.
	MinMapQ int
	// Sequenceability is the path of the sequenceability factors, or "".
	Sequenceability string
	// StopAfterBinning stops the caller once binned coverage is written.
	StopAfterBinning bool
	// Plot enables the caller's plots.
	Plot bool
}

// Args renders opts as command-line flags.
func (o CallOpts) Args() []string {
	methods := make([]string, len(o.CorrectionMethods))
	for i, m := range o.CorrectionMethods {
		methods[i] = string(m)
	}
	args := []string{
		"--input-dir", o.InputDir,
		"--output-dir", o.OutputDir,
		"--assembly", o.Assembly,
		"--cpu", strconv.Itoa(o.CPU),
		"--bin-size", strconv.Itoa(o.BinSize),
		"--step-size", strconv.Itoa(o.StepSize),
		"--correction-method", strings.Join(methods, ","),
		"--chromosomes", o.Chromosomes.String(),
		"--remove-duplicates=" + strconv.FormatBool(o.RemoveDuplicates),
		"--retain-raw-reads=" + strconv.FormatBool(o.RetainRawReads),
		"--states", strings.Join(o.States, ","),
		"--method", o.Method,
		"--min-mapq", strconv.Itoa(o.MinMapQ),
		"--stop-after-binning=" + strconv.FormatBool(o.StopAfterBinning),
		"--plot=" + strconv.FormatBool(o.Plot),
	}
	if o.Blacklist != "" {
		args = append(args, "--blacklist", o.Blacklist)
	}
	if o.Sequenceability != "" {
		args = append(args, "--sequenceability", o.Sequenceability)
	}
	return args
}

// Caller is the copy-number caller.  Call writes the result tree of the BAM
// files in opts.InputDir under opts.OutputDir.
type Caller interface {
	Call(ctx context.Context, opts CallOpts) error
}

// DefaultExecutable is the caller binary run by CommandCaller.
const DefaultExecutable = "aneufinder-call"

// CommandCaller runs the caller as an external process.
type CommandCaller struct {
	// Path is the executable. If empty, DefaultExecutable is looked up in
	// $PATH.
	Path string
	// Stdout and Stderr receive the process output. If nil, os.Stderr is
	// used for both.
	Stdout, Stderr io.Writer
}

// Call implements Caller.
func (c CommandCaller) Call(ctx context.Context, opts CallOpts) error {
	path := c.Path
	if path == "" {
		path = DefaultExecutable
	}
	cmd := exec.CommandContext(ctx, path, opts.Args()...)
	cmd.Stdout, cmd.Stderr = c.Stdout, c.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stderr
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	log.Debug.Printf("caller: %s %s", path, strings.Join(opts.Args(), " "))
	if err := cmd.Run(); err != nil {
		return errors.E(err, "caller", path)
	}
	return nil
}
