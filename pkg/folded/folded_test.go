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

package folded

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/instret-dev/instret/pkg/callpath"
	"github.com/instret-dev/instret/pkg/symtab"
)

func nameFunc(names ...string) func(symtab.ID) string {
	return func(id symtab.ID) string {
		if id == 0 || int(id) > len(names) {
			return ""
		}
		return names[id-1]
	}
}

func TestWrite(t *testing.T) {
	agg := callpath.NewAggregator()
	agg.Add([]symtab.ID{1, 2}, 5)
	agg.Add([]symtab.ID{1}, 3)
	agg.Add([]symtab.ID{1, 2}, 2)

	var sb strings.Builder
	require.NoError(t, Write(&sb, agg, nameFunc("main", "foo")))
	require.Equal(t, "main;foo 7\nmain 3\n", sb.String())
}

func TestWriteDropsNamelessIdentifiers(t *testing.T) {
	agg := callpath.NewAggregator()
	agg.Add([]symtab.ID{1, 42, 2}, 4)
	agg.Add([]symtab.ID{42}, 9)

	// Identifier 42 has no name: it vanishes from the first path, and the
	// second path has nothing left to print.
	var sb strings.Builder
	require.NoError(t, Write(&sb, agg, nameFunc("main", "foo")))
	require.Equal(t, "main;foo 4\n", sb.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Entry
	}{
		{
			name: "plain",
			in:   "main;foo 5\nmain 3\n",
			want: []Entry{
				{Path: []string{"main", "foo"}, Count: 5},
				{Path: []string{"main"}, Count: 3},
			},
		},
		{
			name: "trailing separator form",
			in:   "main;bar; 2\n",
			want: []Entry{
				{Path: []string{"main", "bar"}, Count: 2},
			},
		},
		{
			name: "crlf",
			in:   "main 3\r\nmain;foo 5\r\n",
			want: []Entry{
				{Path: []string{"main"}, Count: 3},
				{Path: []string{"main", "foo"}, Count: 5},
			},
		},
		{
			name: "damaged lines are dropped",
			in:   "noise-no-count\nbad;count x\nzero 0\n\n 9\nmain 3\n",
			want: []Entry{
				{Path: []string{"main"}, Count: 3},
			},
		},
		{
			name: "empty",
			in:   "",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.in))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	agg := callpath.NewAggregator()
	agg.Add([]symtab.ID{1}, 10)
	agg.Add([]symtab.ID{1, 2}, 20)
	agg.Add([]symtab.ID{1, 2, 1}, 30)

	var sb strings.Builder
	require.NoError(t, Write(&sb, agg, nameFunc("a", "b")))

	entries, err := Parse(strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{Path: []string{"a"}, Count: 10},
		{Path: []string{"a", "b"}, Count: 20},
		{Path: []string{"a", "b", "a"}, Count: 30},
	}, entries)
}
