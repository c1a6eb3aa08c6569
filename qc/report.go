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

package qc

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Region is one region of the three-set diagram of the pass sets.
type Region struct {
	Label string
	Count int
}

// OverlapRegions returns the sizes of the seven regions of the diagram of
// the depth, Bhattacharyya and spikiness pass sets of d.
func OverlapRegions(d Decision) []Region {
	labels := [8]string{
		"",
		"depth",
		"bhattacharyya",
		"depth+bhattacharyya",
		"spikiness",
		"depth+spikiness",
		"bhattacharyya+spikiness",
		"all",
	}
	var counts [8]int
	all := d.PassDepth.Union(d.PassBhattacharyya).Union(d.PassSpikiness)
	for name := range all {
		mask := 0
		if d.PassDepth.Contains(name) {
			mask |= 1
		}
		if d.PassBhattacharyya.Contains(name) {
			mask |= 2
		}
		if d.PassSpikiness.Contains(name) {
			mask |= 4
		}
		counts[mask]++
	}
	regions := make([]Region, 0, 7)
	for _, mask := range []int{1, 2, 4, 3, 5, 6, 7} {
		regions = append(regions, Region{labels[mask], counts[mask]})
	}
	return regions
}

// WriteOverlapReport renders an HTML page to w charting the overlap of the
// pass sets of each donor's decision.
func WriteOverlapReport(w io.Writer, donors []string, decisions map[string]Decision) error {
	page := components.NewPage()
	page.PageTitle = "QC overlap"
	for _, donor := range donors {
		d, ok := decisions[donor]
		if !ok {
			continue
		}
		page.AddCharts(overlapChart(donor, d))
	}
	return page.Render(w)
}

func overlapChart(donor string, d Decision) *charts.Bar {
	regions := OverlapRegions(d)
	labels := make([]string, len(regions))
	data := make([]opts.BarData, len(regions))
	for i, r := range regions {
		labels[i] = r.Label
		data[i] = opts.BarData{Value: r.Count}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    donor,
			Subtitle: fmt.Sprintf("included %d, excluded %d", len(d.Included), len(d.Excluded)),
		}),
	)
	bar.SetXAxis(labels).AddSeries("cells", data)
	return bar
}
