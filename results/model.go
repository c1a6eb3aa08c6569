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
	"context"
	"encoding/json"
	"io/ioutil"
	"math"
	"path/filepath"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/cnvpipe/store"
)

// Number is a metric value.  NaN means missing.  In JSON, missing is null
// and the infinities are the strings "Inf" and "-Inf"; the strings "NA" and
// "NaN" also read as missing.
type Number float64

// Missing is the missing Number.
var Missing = Number(math.NaN())

// IsMissing reports whether n is missing.
func (n Number) IsMissing() bool { return math.IsNaN(float64(n)) }

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	v := float64(n)
	switch {
	case math.IsNaN(v):
		return []byte("null"), nil
	case math.IsInf(v, 1):
		return []byte(`"Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*n = Missing
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		if s == "NA" {
			*n = Missing
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.E(errors.Invalid, "results: bad number", string(data))
	}
	*n = Number(v)
	return nil
}

// QualityInfo holds the quality metrics the caller computes for one cell.
type QualityInfo struct {
	NumSegments    Number `json:"num.segments"`
	Bhattacharyya  Number `json:"bhattacharyya"`
	Spikiness      Number `json:"spikiness"`
	Entropy        Number `json:"entropy"`
	TotalReadCount Number `json:"total.read.count"`
}

// MissingQuality is a QualityInfo whose fields are all missing.
var MissingQuality = QualityInfo{Missing, Missing, Missing, Missing, Missing}

// Model is the per-cell result of the caller.  Only the fields the pipeline
// consumes are decoded.
type Model struct {
	ID          string      `json:"ID"`
	QualityInfo QualityInfo `json:"qualityInfo"`
}

// ReadModel reads the model at path. Fields absent from the file are
// missing.
func ReadModel(ctx context.Context, path string) (m Model, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return Model{}, errors.E(err, "results.ReadModel", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return Model{}, errors.E(err, "results.ReadModel", path)
	}
	m.QualityInfo = MissingQuality
	if err = json.Unmarshal(data, &m); err != nil {
		return Model{}, errors.E(errors.Invalid, err, "results.ReadModel", path)
	}
	return m, nil
}

// WriteModel writes m to path.
func WriteModel(ctx context.Context, path string, m Model) (err error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err = store.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "results.WriteModel", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	_, err = out.Writer(ctx).Write(data)
	return err
}
