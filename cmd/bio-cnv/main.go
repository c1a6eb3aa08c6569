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

/*
bio-cnv runs single-cell copy-number calling over a samplesheet of BAM
files.  It derives a coverage blacklist and sequenceability factors shared by
all donors, calls every donor with an external caller, and filters cells by
the quality metrics of their calls.

A typical session:

  bio-cnv run -sequenceability samples.tsv out
  bio-cnv qc samples.tsv out
  bio-cnv filter samples.tsv out samples.filtered.tsv
*/

import (
	"github.com/grailbio/base/grail"
	"v.io/x/lib/cmdline"
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-cnv",
			Short:    "Single-cell copy-number calling pipeline",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdRun(),
				newCmdBlacklist(),
				newCmdSequenceability(),
				newCmdQC(),
				newCmdFilter(),
			},
		})
}
