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

package callpath

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/instret-dev/instret/pkg/symtab"
)

func collect(a *Aggregator) map[string]uint64 {
	out := map[string]uint64{}
	a.Visit(func(path []symtab.ID, count uint64) {
		key := ""
		for _, id := range path {
			key += string(rune('a' + id - 1))
		}
		out[key] = count
	})
	return out
}

func TestAddAccumulates(t *testing.T) {
	a := NewAggregator()
	a.Add([]symtab.ID{1, 2}, 5)
	a.Add([]symtab.ID{1}, 3)
	a.Add([]symtab.ID{1, 2}, 2)

	require.Equal(t, 2, a.Len())
	require.Equal(t, uint64(10), a.Total())
	require.Equal(t, map[string]uint64{"ab": 7, "a": 3}, collect(a))
}

func TestAddZeroCount(t *testing.T) {
	a := NewAggregator()
	a.Add([]symtab.ID{1, 2, 3}, 0)

	require.Equal(t, 0, a.Len())
	require.Equal(t, uint64(0), a.Total())

	a.Add([]symtab.ID{1, 2, 3}, 1)
	a.Add([]symtab.ID{1, 2, 3}, 0)
	require.Equal(t, 1, a.Len())
	require.Equal(t, uint64(1), a.Total())
}

func TestFullSequenceEquality(t *testing.T) {
	a := NewAggregator()
	a.Add([]symtab.ID{1, 2}, 1)
	a.Add([]symtab.ID{2, 1}, 1)
	a.Add([]symtab.ID{1}, 1)
	a.Add([]symtab.ID{1, 2, 3}, 1)
	a.Add([]symtab.ID{2}, 1)

	// Same top of stack or shared prefix is not the same path.
	require.Equal(t, 5, a.Len())
}

func TestInsertionOrderPreserved(t *testing.T) {
	a := NewAggregator()
	a.Add([]symtab.ID{1}, 1)
	a.Add([]symtab.ID{1, 2}, 1)
	a.Add([]symtab.ID{1, 3}, 1)
	// Accumulating into an earlier entry must not move it.
	a.Add([]symtab.ID{1}, 9)

	var order []string
	a.Visit(func(path []symtab.ID, count uint64) {
		key := ""
		for _, id := range path {
			key += string(rune('a' + id - 1))
		}
		order = append(order, key)
	})
	require.Equal(t, []string{"a", "ab", "ac"}, order)
}

func TestAddCopiesPath(t *testing.T) {
	a := NewAggregator()
	path := []symtab.ID{1, 2}
	a.Add(path, 4)

	path[1] = 7
	a.Add([]symtab.ID{1, 2}, 6)

	require.Equal(t, 1, a.Len())
	require.Equal(t, map[string]uint64{"ab": 10}, collect(a))
}

func TestCollidingBucketsStayDistinct(t *testing.T) {
	a := NewAggregator()
	a.Add([]symtab.ID{1, 2}, 3)

	// Alias the second path's bucket onto the first entry to simulate a
	// hash collision; the full-sequence check has to keep them apart.
	other := []symtab.ID{9, 9}
	h := a.hash(other)
	a.index[h] = append(a.index[h], 0)

	a.Add(other, 4)
	require.Equal(t, 2, a.Len())

	a.Add(other, 1)
	require.Equal(t, 2, a.Len())
	require.Equal(t, uint64(8), a.Total())
}

func BenchmarkAdd(b *testing.B) {
	a := NewAggregator()
	path := []symtab.ID{1, 2, 3, 4, 5, 6, 7, 8}
	b.ReportAllocs()
	b.ResetTimer()

	for n := 0; n < b.N; n++ {
		a.Add(path, 1)
	}
}
