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

// Package convert turns the call-path aggregate into a pprof profile so
// the standard pprof tooling can render what the folded text holds.
package convert

import (
	"io"
	"time"

	"github.com/google/pprof/profile"
	"github.com/klauspost/compress/gzip"

	"github.com/instret-dev/instret/pkg/callpath"
	"github.com/instret-dev/instret/pkg/symtab"
)

// ToPprof builds a profile with one instructions/count sample per call
// path. Sample locations run leaf first, the pprof convention and the
// reverse of folded order. Identifiers without a name are dropped from
// the sample; a path with no named frames produces no sample at all.
func ToPprof(captureTime time.Time, agg *callpath.Aggregator, name func(symtab.ID) string) *profile.Profile {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{
			Type: "instructions",
			Unit: "count",
		}},
		TimeNanos:     captureTime.UnixNano(),
		DurationNanos: int64(time.Since(captureTime)),
		PeriodType: &profile.ValueType{
			Type: "instructions",
			Unit: "count",
		},
		Period: 1,
	}

	locations := map[string]*profile.Location{}

	agg.Visit(func(path []symtab.ID, count uint64) {
		locs := make([]*profile.Location, 0, len(path))
		for i := len(path) - 1; i >= 0; i-- {
			n := name(path[i])
			if n == "" {
				continue
			}

			loc, ok := locations[n]
			if !ok {
				fn := &profile.Function{
					ID:   uint64(len(prof.Function) + 1),
					Name: n,
				}
				prof.Function = append(prof.Function, fn)

				loc = &profile.Location{
					ID:   uint64(len(prof.Location) + 1),
					Line: []profile.Line{{Function: fn}},
				}
				prof.Location = append(prof.Location, loc)
				locations[n] = loc
			}
			locs = append(locs, loc)
		}
		if len(locs) == 0 {
			return
		}

		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: locs,
			Value:    []int64{int64(count)},
		})
	})

	return prof
}

// WriteGzipped writes the profile gzip-compressed, the .pb.gz form the
// pprof tools read.
func WriteGzipped(w io.Writer, prof *profile.Profile) error {
	zw, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		return err
	}
	if err := prof.WriteUncompressed(zw); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
