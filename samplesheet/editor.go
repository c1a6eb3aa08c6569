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

package samplesheet

import (
	"context"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cnvpipe/results"
	"golang.org/x/sync/errgroup"
)

// RemoveSamples returns the samples of s whose names are not in excluded.
// s itself is unchanged.
func RemoveSamples(s *Samplesheet, excluded NameSet) *Samplesheet {
	return s.Filter(func(sample Sample) bool { return !excluded.Contains(sample.Name) })
}

// RemoveOutputArtifacts deletes the per-cell models of the excluded samples
// of s from every method directory of the sample's own donor tree under
// baseDir.  Samples of other donors that share a BAM base name keep their
// models.  Missing trees are skipped, so applying the same exclusion twice
// is a no-op the second time.
func RemoveOutputArtifacts(ctx context.Context, baseDir string, s *Samplesheet, excluded NameSet) error {
	var g errgroup.Group
	for _, sample := range s.Samples() {
		if !excluded.Contains(sample.Name) {
			continue
		}
		sample := sample
		g.Go(func() error {
			paths, err := results.FindAllModels(ctx, results.DonorDir(baseDir, sample.Donor), sample.FileBase())
			if err != nil {
				return err
			}
			for _, path := range paths {
				if err := file.Remove(ctx, path); err != nil && !errors.Is(errors.NotExist, err) && !os.IsNotExist(err) {
					return errors.E(err, "samplesheet.RemoveOutputArtifacts", string(sample.Name))
				}
				log.Debug.Printf("removed %s (sample %s)", path, sample.Name)
			}
			return nil
		})
	}
	return g.Wait()
}
