// Copyright 2025-2026 The instret Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package flat reduces a folded call-path profile to a per-symbol table:
// instructions retired with the symbol as the innermost frame (self) and
// with the symbol anywhere on the path (total, counted once per path even
// when the symbol recurses).
package flat

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/instret-dev/instret/pkg/folded"
)

const (
	SortSelf  = "self"
	SortTotal = "total"
)

// Row is one symbol of the flat profile.
type Row struct {
	Name  string
	Self  uint64
	Total uint64
}

// Report is a flat profile over all retired instructions of a run.
type Report struct {
	Rows    []Row
	Retired uint64
}

// Compute builds the report from folded entries. Rows come back sorted by
// self count, largest first, names breaking ties.
func Compute(entries []folded.Entry) Report {
	var (
		retired uint64
		self    = map[string]uint64{}
		total   = map[string]uint64{}
	)
	for _, e := range entries {
		if len(e.Path) == 0 {
			continue
		}
		retired += e.Count
		self[e.Path[len(e.Path)-1]] += e.Count

		seen := map[string]struct{}{}
		for _, name := range e.Path {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			total[name] += e.Count
		}
	}

	rows := make([]Row, 0, len(total))
	for name, t := range total {
		rows = append(rows, Row{Name: name, Self: self[name], Total: t})
	}

	r := Report{Rows: rows, Retired: retired}
	r.Sort(SortSelf)
	return r
}

// Sort reorders the rows by the given key, self when the key is unknown.
func (r *Report) Sort(key string) {
	rows := r.Rows
	switch key {
	case SortTotal:
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Total != rows[j].Total {
				return rows[i].Total > rows[j].Total
			}
			return rows[i].Name < rows[j].Name
		})
	default:
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Self != rows[j].Self {
				return rows[i].Self > rows[j].Self
			}
			return rows[i].Name < rows[j].Name
		})
	}
}

// WriteTable renders at most top rows as an aligned text table, all rows
// when top is 0. SUM% accumulates SELF% down the rendered order.
func (r Report) WriteTable(w io.Writer, top int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSELF\tSELF%\tSUM%\tTOTAL\tTOTAL%")

	sum := 0.0
	for _, row := range r.top(top) {
		selfPct := r.pct(row.Self)
		sum += selfPct
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%d\t%.2f\n",
			row.Name, row.Self, selfPct, sum, row.Total, r.pct(row.Total))
	}
	return tw.Flush()
}

// WriteCSV renders at most top rows as CSV with a header row, all rows
// when top is 0.
func (r Report) WriteCSV(w io.Writer, top int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "self", "total", "self_percent", "total_percent"}); err != nil {
		return err
	}
	for _, row := range r.top(top) {
		rec := []string{
			row.Name,
			strconv.FormatUint(row.Self, 10),
			strconv.FormatUint(row.Total, 10),
			strconv.FormatFloat(r.pct(row.Self), 'f', 2, 64),
			strconv.FormatFloat(r.pct(row.Total), 'f', 2, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r Report) top(n int) []Row {
	if n > 0 && n < len(r.Rows) {
		return r.Rows[:n]
	}
	return r.Rows
}

func (r Report) pct(count uint64) float64 {
	if r.Retired == 0 {
		return 0
	}
	return float64(count) / float64(r.Retired) * 100
}
