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

// Package folded reads and writes the folded-stack text format consumed by
// flamegraph renderers: one call path per line, symbol names joined
// outermost to innermost with semicolons, a space, then the decimal count.
package folded

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/instret-dev/instret/pkg/callpath"
	"github.com/instret-dev/instret/pkg/symtab"
)

// Entry is one folded-stack line.
type Entry struct {
	Path  []string
	Count uint64
}

// Write emits one line per nonzero aggregated path, in insertion order.
// Identifiers that do not resolve to a name are dropped from the joined
// path without failing the line.
func Write(w io.Writer, agg *callpath.Aggregator, name func(symtab.ID) string) error {
	bw := bufio.NewWriter(w)
	agg.Visit(func(path []symtab.ID, count uint64) {
		if count == 0 {
			return
		}
		named := false
		for _, id := range path {
			if name(id) != "" {
				named = true
				break
			}
		}
		if !named {
			return
		}
		first := true
		for _, id := range path {
			n := name(id)
			if n == "" {
				continue
			}
			if !first {
				bw.WriteByte(';')
			}
			bw.WriteString(n)
			first = false
		}
		bw.WriteByte(' ')
		bw.WriteString(strconv.FormatUint(count, 10))
		bw.WriteByte('\n')
	})
	return bw.Flush()
}

// Parse reads folded-stack text back into entries. Lines that do not carry
// a parsable count, or whose path holds no names, are skipped. Empty name
// components are tolerated, so output with trailing separators parses the
// same as the canonical form.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		i := strings.LastIndexByte(line, ' ')
		if i <= 0 {
			continue
		}
		count, err := strconv.ParseUint(line[i+1:], 10, 64)
		if err != nil || count == 0 {
			continue
		}
		var path []string
		for _, n := range strings.Split(line[:i], ";") {
			if n != "" {
				path = append(path, n)
			}
		}
		if len(path) == 0 {
			continue
		}
		entries = append(entries, Entry{Path: path, Count: count})
	}
	return entries, scanner.Err()
}
