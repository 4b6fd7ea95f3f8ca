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

// Package callpath accumulates retired-instruction counts keyed by the
// exact call path that was active when the counts were flushed. Two paths
// are the same key only when they have the same length and the same symbol
// identifier at every position; sharing a top of stack is not enough.
package callpath

import (
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/instret-dev/instret/pkg/symtab"
)

// Aggregator is an insertion-ordered map from call path to cumulative
// count. Lookup goes through a content hash of the path with full-sequence
// verification on the hashed bucket, so equal hashes never merge distinct
// paths.
type Aggregator struct {
	entries []entry
	index   map[uint64][]int
	buf     []byte
	total   uint64
}

type entry struct {
	path  []symtab.ID
	count uint64
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		index: make(map[uint64][]int),
		buf:   make([]byte, 0, 1024),
	}
}

// Add accumulates count against path. A zero count is a no-op and never
// creates an entry. The path is copied; callers may keep mutating their
// slice afterwards.
func (a *Aggregator) Add(path []symtab.ID, count uint64) {
	if count == 0 {
		return
	}

	h := a.hash(path)
	for _, i := range a.index[h] {
		if slices.Equal(a.entries[i].path, path) {
			a.entries[i].count += count
			a.total += count
			return
		}
	}

	a.entries = append(a.entries, entry{
		path:  append(make([]symtab.ID, 0, len(path)), path...),
		count: count,
	})
	a.index[h] = append(a.index[h], len(a.entries)-1)
	a.total += count
}

// Visit calls fn once per recorded path, in insertion order. The path
// slice is owned by the aggregator and must not be retained or mutated.
func (a *Aggregator) Visit(fn func(path []symtab.ID, count uint64)) {
	for i := range a.entries {
		fn(a.entries[i].path, a.entries[i].count)
	}
}

// Len returns the number of distinct paths recorded so far.
func (a *Aggregator) Len() int {
	return len(a.entries)
}

// Total returns the sum of every count accumulated so far.
func (a *Aggregator) Total() uint64 {
	return a.total
}

func (a *Aggregator) hash(path []symtab.ID) uint64 {
	b := a.buf[:0]
	for _, id := range path {
		b = append(b, byte(id), byte(id>>8), '\xff')
	}
	a.buf = b
	return xxhash.Sum64(b)
}
