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

package results

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/cnvpipe/genome"
	"github.com/grailbio/cnvpipe/store"
	"github.com/klauspost/compress/gzip"
)

// BinCount is one row of a binned coverage artifact.
type BinCount struct {
	Chrom string `tsv:"chrom"`
	Start int    `tsv:"start"`
	End   int    `tsv:"end"`
	Count int64  `tsv:"count"`
}

// ReadBinned reads the binned coverage at path.
func ReadBinned(ctx context.Context, path string) (rows []BinCount, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "results.ReadBinned", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		defer u.Close() // nolint: errcheck
		r = u
	}
	reader := tsv.NewReader(bufio.NewReader(r))
	reader.HasHeaderRow = true
	reader.UseHeaderNames = true
	for {
		var row BinCount
		if err = reader.Read(&row); err != nil {
			if err == io.EOF {
				return rows, nil
			}
			return nil, errors.E(errors.Invalid, err, "results.ReadBinned", path)
		}
		rows = append(rows, row)
	}
}

// WriteBinned writes counts, one per bin of layout, as gzipped binned
// coverage to path.
func WriteBinned(ctx context.Context, path string, layout *genome.Layout, counts []int64) (err error) {
	if len(counts) != layout.Len() {
		return errors.E(errors.Invalid, fmt.Sprintf("results.WriteBinned: %d counts for %d bins", len(counts), layout.Len()))
	}
	if err = store.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "results.WriteBinned", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	gz := gzip.NewWriter(out.Writer(ctx))
	w := tsv.NewWriter(gz)
	w.WriteString("chrom")
	w.WriteString("start")
	w.WriteString("end")
	w.WriteString("count")
	if err = w.EndLine(); err != nil {
		return err
	}
	for i, bin := range layout.Bins {
		w.WriteString(bin.Chrom)
		w.WriteInt64(int64(bin.Start))
		w.WriteInt64(int64(bin.End))
		w.WriteInt64(counts[i])
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	if err = w.Flush(); err != nil {
		return err
	}
	return gz.Close()
}
