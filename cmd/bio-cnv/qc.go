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
	"context"
	"io"
	"sync"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cnvpipe/qc"
	"github.com/grailbio/cnvpipe/samplesheet"
	"github.com/grailbio/cnvpipe/store"
	"golang.org/x/sync/errgroup"
)

const overlapReport = "qc_overlap.html"

func tablePath(outDir, donor string) string {
	return file.Join(outDir, donor+".qc.tsv")
}

func createFile(ctx context.Context, path string, write func(w io.Writer) error) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return write(out.Writer(ctx))
}

// decideAll gathers and filters every donor of sheet concurrently.  If
// outDir is not empty, the metrics table of each donor is written there.
func decideAll(ctx context.Context, sheet *samplesheet.Samplesheet, baseDir, outDir string, opts qc.Opts) (map[string]qc.Decision, error) {
	var (
		mu        sync.Mutex
		decisions = make(map[string]qc.Decision)
		g, gctx   = errgroup.WithContext(ctx)
	)
	for _, donor := range sheet.Donors() {
		donor := donor
		g.Go(func() error {
			table, err := qc.Gather(gctx, baseDir, sheet, donor, opts.Method)
			if err != nil {
				return err
			}
			d := qc.Filter(table, opts)
			log.Printf("qc: donor %s: %d/%d cells excluded (bhattacharyya > %v, spikiness < %v)",
				donor, len(d.Excluded), len(table), d.BhattacharyyaThreshold, d.SpikinessThreshold)
			if outDir != "" {
				if err := createFile(gctx, tablePath(outDir, donor), func(w io.Writer) error {
					return qc.WriteTable(w, table)
				}); err != nil {
					return err
				}
			}
			mu.Lock()
			decisions[donor] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

// runQC writes the metrics table of every donor and the overlap report to
// outDir.
func runQC(ctx context.Context, sheet *samplesheet.Samplesheet, baseDir, outDir string, opts qc.Opts) error {
	if err := store.MkdirAll(outDir); err != nil {
		return err
	}
	decisions, err := decideAll(ctx, sheet, baseDir, outDir, opts)
	if err != nil {
		return err
	}
	return createFile(ctx, file.Join(outDir, overlapReport), func(w io.Writer) error {
		return qc.WriteOverlapReport(w, sheet.Donors(), decisions)
	})
}

// runFilter saves the cells of sheet that pass QC to outPath and, if
// removeArtifacts, deletes the models of the others.  It returns the
// excluded cells.
func runFilter(ctx context.Context, sheet *samplesheet.Samplesheet, baseDir, outPath string, opts qc.Opts, removeArtifacts bool) (samplesheet.NameSet, error) {
	decisions, err := decideAll(ctx, sheet, baseDir, "", opts)
	if err != nil {
		return nil, err
	}
	excluded := samplesheet.NewNameSet()
	for _, d := range decisions {
		excluded = excluded.Union(d.Excluded)
	}
	if err := samplesheet.RemoveSamples(sheet, excluded).Save(ctx, outPath); err != nil {
		return nil, err
	}
	if removeArtifacts {
		if err := samplesheet.RemoveOutputArtifacts(ctx, baseDir, sheet, excluded); err != nil {
			return nil, err
		}
	}
	return excluded, nil
}
