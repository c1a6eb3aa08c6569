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
package main

import (
	"flag"
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cnvpipe/blacklist"
	"github.com/grailbio/cnvpipe/caller"
	"github.com/grailbio/cnvpipe/genome"
	"github.com/grailbio/cnvpipe/pipeline"
	"github.com/grailbio/cnvpipe/qc"
	"github.com/grailbio/cnvpipe/samplesheet"
	"github.com/grailbio/cnvpipe/sequenceability"
	"v.io/x/lib/cmdline"
)

// chromFlags are the chromosome group flags shared by the subcommands.
type chromFlags struct {
	autosomes, allosomes string
}

func (f *chromFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.autosomes, "autosomes", blacklist.DefaultOpts.Autosomes.String(),
		`Comma-separated autosome names. "a-b" expands to the numbered chromosomes a..b`)
	fs.StringVar(&f.allosomes, "allosomes", blacklist.DefaultOpts.Allosomes.String(), "Comma-separated allosome names")
}

func (f *chromFlags) parse() (autosomes, allosomes genome.Chromosomes, err error) {
	if autosomes, err = genome.ParseChromosomes(f.autosomes); err != nil {
		return
	}
	allosomes, err = genome.ParseChromosomes(f.allosomes)
	return
}

// callerFlags configure the caller.
type callerFlags struct {
	executable string
	opts       caller.Opts
}

func (f *callerFlags) register(fs *flag.FlagSet) {
	f.opts = caller.DefaultOpts
	fs.StringVar(&f.executable, "caller", caller.DefaultExecutable, "Copy-number caller executable")
	fs.StringVar(&f.opts.Assembly, "assembly", caller.DefaultOpts.Assembly, "Reference assembly name passed to the caller")
	fs.StringVar(&f.opts.Method, "method", caller.DefaultOpts.Method, "Segmentation method")
	fs.IntVar(&f.opts.MinMapQ, "min-mapq", caller.DefaultOpts.MinMapQ, "Reads with MAPQ below this level are not counted")
	fs.BoolVar(&f.opts.Plot, "plot", caller.DefaultOpts.Plot, "Let the caller render its plots")
}

func (f *callerFlags) callerOpts() caller.Opts {
	opts := f.opts
	opts.Caller = caller.CommandCaller{Path: f.executable}
	return opts
}

func registerQCFlags(fs *flag.FlagSet, opts *qc.Opts) {
	*opts = qc.DefaultOpts
	fs.StringVar(&opts.Method, "method", qc.DefaultOpts.Method, "Segmentation method whose models are read")
	fs.Float64Var(&opts.MinReadCount, "min-read-count", qc.DefaultOpts.MinReadCount, "A cell must have more reads than this")
	fs.Float64Var(&opts.BhattacharyyaThreshold, "bhattacharyya", qc.DefaultOpts.BhattacharyyaThreshold,
		"A cell's Bhattacharyya distance must exceed this. NaN derives it from the bottom 10% of the donor's cells")
	fs.Float64Var(&opts.SpikinessThreshold, "spikiness", qc.DefaultOpts.SpikinessThreshold,
		"A cell's spikiness must stay below this. NaN derives it from the top 10% of the donor's cells")
}

func loadSheet(path string) (*samplesheet.Samplesheet, error) {
	return samplesheet.Load(vcontext.Background(), path)
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Derive the shared artifacts and call every donor",
		ArgsName: "samplesheet outputdir",
	}
	opts := pipeline.DefaultOpts
	var (
		chroms  chromFlags
		callers callerFlags
	)
	chroms.register(&cmd.Flags)
	callers.register(&cmd.Flags)
	cmd.Flags.IntVar(&opts.BlacklistBinSize, "blacklist-binsize", pipeline.DefaultOpts.BlacklistBinSize, "Bin size of the blacklist")
	cmd.Flags.IntVar(&opts.CallBinSize, "binsize", pipeline.DefaultOpts.CallBinSize, "Bin size of the calls and the sequenceability factors")
	cmd.Flags.Float64Var(&opts.Blacklist.LowPercentile, "low-percentile", pipeline.DefaultOpts.Blacklist.LowPercentile, "Bins below this coverage percentile are blacklisted")
	cmd.Flags.Float64Var(&opts.Blacklist.HighPercentile, "high-percentile", pipeline.DefaultOpts.Blacklist.HighPercentile, "Bins above this coverage percentile are blacklisted")
	cmd.Flags.BoolVar(&opts.ApplySequenceability, "sequenceability", pipeline.DefaultOpts.ApplySequenceability, "Apply sequenceability correction")
	cmd.Flags.StringVar(&opts.Reference, "reference", pipeline.DefaultOpts.Reference, "Reference FASTA used to GC-correct the calibration coverage. Optional")
	cmd.Flags.IntVar(&opts.CPU, "cpu", 0, "CPU budget; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("run takes samplesheet and outputdir, but got %v", argv)
		}
		sheet, err := loadSheet(argv[0])
		if err != nil {
			return err
		}
		if opts.Blacklist.Autosomes, opts.Blacklist.Allosomes, err = chroms.parse(); err != nil {
			return err
		}
		opts.Blacklist.Coverage.MinMapQ = callers.opts.MinMapQ
		opts.Caller = callers.callerOpts()
		return pipeline.Run(vcontext.Background(), argv[1], sheet, opts)
	})
	return cmd
}

func newCmdBlacklist() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "blacklist",
		Short:    "Derive the coverage blacklist of a samplesheet and print its path",
		ArgsName: "samplesheet outputdir",
	}
	opts := blacklist.DefaultOpts
	var chroms chromFlags
	chroms.register(&cmd.Flags)
	binSize := cmd.Flags.Int("binsize", pipeline.DefaultOpts.BlacklistBinSize, "Bin size")
	cmd.Flags.Float64Var(&opts.LowPercentile, "low-percentile", blacklist.DefaultOpts.LowPercentile, "Bins below this coverage percentile are blacklisted")
	cmd.Flags.Float64Var(&opts.HighPercentile, "high-percentile", blacklist.DefaultOpts.HighPercentile, "Bins above this coverage percentile are blacklisted")
	cmd.Flags.IntVar(&opts.Coverage.MinMapQ, "min-mapq", blacklist.DefaultOpts.Coverage.MinMapQ, "Reads with MAPQ below this level are not counted")
	cmd.Flags.IntVar(&opts.Coverage.Parallelism, "cpu", 0, "CPU budget; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("blacklist takes samplesheet and outputdir, but got %v", argv)
		}
		sheet, err := loadSheet(argv[0])
		if err != nil {
			return err
		}
		if opts.Autosomes, opts.Allosomes, err = chroms.parse(); err != nil {
			return err
		}
		path, err := blacklist.GetOrBuild(vcontext.Background(), argv[1], sheet, *binSize, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, path)
		return nil
	})
	return cmd
}

func newCmdSequenceability() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "sequenceability",
		Short:    "Derive the sequenceability factors of the include_in_sf samples and print their path",
		ArgsName: "samplesheet outputdir",
	}
	var (
		chroms  chromFlags
		callers callerFlags
	)
	chroms.register(&cmd.Flags)
	callers.register(&cmd.Flags)
	binSize := cmd.Flags.Int("binsize", pipeline.DefaultOpts.CallBinSize, "Bin size")
	reference := cmd.Flags.String("reference", "", "Reference FASTA used to GC-correct the calibration coverage. Optional")
	cpu := cmd.Flags.Int("cpu", 0, "CPU budget; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("sequenceability takes samplesheet and outputdir, but got %v", argv)
		}
		sheet, err := loadSheet(argv[0])
		if err != nil {
			return err
		}
		autosomes, allosomes, err := chroms.parse()
		if err != nil {
			return err
		}
		opts := sequenceability.Opts{Caller: callers.callerOpts(), Reference: *reference}
		opts.Caller.Chromosomes = autosomes.Union(allosomes)
		opts.Caller.CPU = *cpu
		path, err := sequenceability.GetOrBuild(vcontext.Background(), argv[1], sheet.SequenceabilitySubset(), *binSize, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, path)
		return nil
	})
	return cmd
}

func newCmdQC() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "qc",
		Short: "Write the QC metrics table of every donor and an overlap report of the QC criteria",
		Long: `
qc reads the models the caller wrote under basedir and writes, to the -out
directory, <donor>.qc.tsv for every donor and qc_overlap.html, a chart of how
the depth, Bhattacharyya and spikiness criteria overlap.`,
		ArgsName: "samplesheet basedir",
	}
	var opts qc.Opts
	registerQCFlags(&cmd.Flags, &opts)
	outDir := cmd.Flags.String("out", "", "Output directory. Defaults to basedir/qc")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("qc takes samplesheet and basedir, but got %v", argv)
		}
		sheet, err := loadSheet(argv[0])
		if err != nil {
			return err
		}
		out := *outDir
		if out == "" {
			out = file.Join(argv[1], "qc")
		}
		return runQC(vcontext.Background(), sheet, argv[1], out, opts)
	})
	return cmd
}

func newCmdFilter() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "filter",
		Short:    "Drop the cells that fail QC from a samplesheet and delete their models",
		ArgsName: "samplesheet basedir outsamplesheet",
	}
	var opts qc.Opts
	registerQCFlags(&cmd.Flags, &opts)
	removeArtifacts := cmd.Flags.Bool("remove-artifacts", true, "Delete the models of the excluded cells")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("filter takes samplesheet, basedir and outsamplesheet, but got %v", argv)
		}
		sheet, err := loadSheet(argv[0])
		if err != nil {
			return err
		}
		excluded, err := runFilter(vcontext.Background(), sheet, argv[1], argv[2], opts, *removeArtifacts)
		if err != nil {
			return err
		}
		log.Printf("filter: %d of %d cells excluded", len(excluded), sheet.Len())
		return nil
	})
	return cmd
}
