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

// Package results describes the result tree the copy-number caller writes
// for one donor:
//
//   <donorDir>/MODELS/method-<method>/<sampleBase>_<tag>.model.json
//   <donorDir>/BINNED_DATA/<sampleBase>_binsize_<N>.tsv.gz
//
// where sampleBase is the base name of the sample's BAM file.  The package
// reads, writes and discovers these artifacts; it never runs the caller.
package results

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// DefaultMethod is the segmentation method whose models the pipeline reads.
const DefaultMethod = "edivisive"

const (
	modelsDir     = "MODELS"
	binnedDir     = "BINNED_DATA"
	modelSuffix   = ".model.json"
	binnedPattern = "%s_binsize_%d.tsv.gz"
)

// DonorDir returns the result tree of donor under outputDir.
func DonorDir(outputDir, donor string) string {
	return file.Join(outputDir, donor)
}

// ModelDir returns the directory holding the per-cell models of method.
func ModelDir(donorDir, method string) string {
	return file.Join(donorDir, modelsDir, "method-"+method)
}

// ModelPath returns the path of the model of sampleBase tagged tag.
func ModelPath(donorDir, method, sampleBase, tag string) string {
	return file.Join(ModelDir(donorDir, method), sampleBase+"_"+tag+modelSuffix)
}

// BinnedPath returns the path of the binned coverage of sampleBase.
func BinnedPath(donorDir, sampleBase string, binSize int) string {
	return file.Join(donorDir, binnedDir, fmt.Sprintf(binnedPattern, sampleBase, binSize))
}

// IsModel reports whether name, a file base name, is a model of sampleBase.
func IsModel(name, sampleBase string) bool {
	return strings.HasPrefix(name, sampleBase+"_") && strings.HasSuffix(name, modelSuffix)
}

// Models is the listing of one model directory.
type Models struct {
	dir   string
	paths []string
}

// ListModels lists the models in the method directory of donorDir.  A
// missing model directory yields an empty listing and no error.
func ListModels(ctx context.Context, donorDir, method string) (Models, error) {
	m := Models{dir: ModelDir(donorDir, method)}
	err := listDir(ctx, m.dir, func(path string) {
		if strings.HasSuffix(path, modelSuffix) {
			m.paths = append(m.paths, path)
		}
	})
	sort.Strings(m.paths)
	return m, err
}

// Len returns the number of models listed.
func (m Models) Len() int { return len(m.paths) }

// For returns the sorted paths of the models of sampleBase.
func (m Models) For(sampleBase string) []string {
	// The models of one sample share a prefix, so they are adjacent.
	prefix := file.Join(m.dir, sampleBase+"_")
	var paths []string
	for i := sort.SearchStrings(m.paths, prefix); i < len(m.paths) && strings.HasPrefix(m.paths[i], prefix); i++ {
		if IsModel(filepath.Base(m.paths[i]), sampleBase) {
			paths = append(paths, m.paths[i])
		}
	}
	return paths
}

// FindModels returns the sorted paths of the models of sampleBase written
// with method.  A missing model directory yields no paths and no error.
func FindModels(ctx context.Context, donorDir, method, sampleBase string) ([]string, error) {
	m, err := ListModels(ctx, donorDir, method)
	if err != nil {
		return nil, err
	}
	return m.For(sampleBase), nil
}

// FindAllModels returns the sorted paths of the models of sampleBase under
// every method directory of donorDir.
func FindAllModels(ctx context.Context, donorDir, sampleBase string) ([]string, error) {
	var methods []string
	err := listDir(ctx, file.Join(donorDir, modelsDir), func(path string) {
		if base := filepath.Base(filepath.Dir(path)); strings.HasPrefix(base, "method-") {
			methods = append(methods, strings.TrimPrefix(base, "method-"))
		}
	})
	if err != nil {
		return nil, err
	}
	var paths []string
	seen := map[string]bool{}
	for _, m := range methods {
		if seen[m] {
			continue
		}
		seen[m] = true
		p, err := FindModels(ctx, donorDir, m, sampleBase)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p...)
	}
	sort.Strings(paths)
	return paths, nil
}

// listDir calls fn on every file below dir. A missing dir is empty.
func listDir(ctx context.Context, dir string, fn func(path string)) error {
	lister := file.List(ctx, dir, true)
	for lister.Scan() {
		fn(lister.Path())
	}
	if err := lister.Err(); err != nil && !errors.Is(errors.NotExist, err) && !os.IsNotExist(err) {
		return errors.E(err, "results: list", dir)
	}
	return nil
}
