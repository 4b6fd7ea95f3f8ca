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

// Package symtab maps program counters of the simulated program to function
// symbols.
//
// The table is built once from an nm(1)-style text listing: one symbol per
// line, a hexadecimal address, a one-character type code and a name,
// whitespace-separated. Only defined text and weak symbols (type codes T, t,
// W, w) describe functions the profiler can attribute instructions to;
// everything else is filtered out, as are lines that do not parse. Symbols
// are numbered in the order they appear in the file, starting at 1, so that
// the rest of the pipeline can work with compact uint16 identifiers instead
// of names. Identifier 0 is reserved for "no symbol".
//
// Lookups resolve a program counter to the symbol with the greatest address
// not above it. The table is immutable after construction.
package symtab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ID identifies one symbol of the loaded table. IDs are dense, start at 1
// and are assigned in file order. The zero ID means the address did not
// resolve to any known function.
type ID uint16

// MaxSymbols is the hard capacity of a table, bounded by the 16-bit
// identifier width. Symbol lines beyond this count are dropped.
const MaxSymbols = math.MaxUint16

var (
	errFieldCount = errors.New("expected address, type code and name fields")
	errTypeCode   = errors.New("type code is not a single character")
)

// Symbol is one function of the simulated program.
type Symbol struct {
	Addr uint64
	Name string
}

type entry struct {
	addr uint64
	id   ID
}

// Table resolves program counters to symbol identifiers and identifiers
// back to names. Immutable after construction.
type Table struct {
	entries []entry  // sorted ascending by address
	names   []string // indexed by ID, slot 0 unset
}

// NewTable builds a table from already-parsed symbols. Identifiers are
// assigned in slice order, mirroring the file order of Load. Symbols past
// the MaxSymbols bound are ignored.
func NewTable(symbols []Symbol) *Table {
	if len(symbols) > MaxSymbols {
		symbols = symbols[:MaxSymbols]
	}

	t := &Table{
		entries: make([]entry, 0, len(symbols)),
		names:   make([]string, len(symbols)+1),
	}
	for i, s := range symbols {
		id := ID(i + 1)
		t.entries = append(t.entries, entry{addr: s.Addr, id: id})
		t.names[id] = s.Name
	}

	sort.Slice(t.entries, func(i, j int) bool {
		return t.entries[i].addr < t.entries[j].addr
	})

	return t
}

// Load reads the symbol listing at path. On error the caller is expected to
// continue with an empty table; profiling degrades to unresolved addresses
// but never stops.
func Load(logger log.Logger, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbol listing: %w", err)
	}
	defer f.Close()

	return Parse(logger, f)
}

// Parse reads an nm-style listing. Malformed lines and non-function symbols
// are skipped, never fatal; only a failure of the underlying reader is
// returned, together with whatever was parsed up to that point.
func Parse(logger log.Logger, r io.Reader) (*Table, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	var (
		symbols    []Symbol
		multiError error
		truncated  bool
	)

	s := bufio.NewScanner(r)
	i := 0
	for s.Scan() {
		i++
		sym, err := parseLine(s.Bytes())
		if err != nil {
			if !errors.Is(err, errSkipped) {
				multiError = errors.Join(multiError, fmt.Errorf("line %d: %w", i, err))
			}
			continue
		}
		if len(symbols) == MaxSymbols {
			truncated = true
			continue
		}
		symbols = append(symbols, sym)
	}

	if multiError != nil {
		level.Debug(logger).Log("msg", "some symbol lines failed to be parsed, this is somewhat expected, but this log line exists for potential troubleshooting", "err", multiError)
	}
	if truncated {
		level.Warn(logger).Log("msg", "symbol listing exceeds identifier capacity, extra symbols dropped", "max", MaxSymbols)
	}

	t := NewTable(symbols)
	if err := s.Err(); err != nil {
		return t, fmt.Errorf("read symbol listing: %w", err)
	}
	return t, nil
}

// errSkipped marks lines filtered on purpose: data/bss/undefined symbols
// are not an input problem, they are just not functions.
var errSkipped = errors.New("skipped")

func parseLine(b []byte) (Symbol, error) {
	fields := splitFields(b)
	if len(fields) < 3 {
		return Symbol{}, errFieldCount
	}
	if len(fields[1]) != 1 {
		return Symbol{}, errTypeCode
	}

	switch fields[1][0] {
	case 'T', 't', 'W', 'w':
	default:
		return Symbol{}, errSkipped
	}

	addr, err := parseHexToUint64(fields[0])
	if err != nil {
		return Symbol{}, fmt.Errorf("parsing address: %w", err)
	}

	return Symbol{Addr: addr, Name: string(fields[2])}, nil
}

// splitFields splits on runs of spaces and tabs. Fields beyond the first
// three are preserved by the split but ignored by the caller.
func splitFields(b []byte) [][]byte {
	var fields [][]byte
	start := -1
	for i, c := range b {
		if c == ' ' || c == '\t' || c == '\r' {
			if start >= 0 {
				fields = append(fields, b[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, b[start:])
	}
	return fields
}

// Resolve returns the identifier of the symbol with the greatest address
// not above pc, or 0 when the table is empty or pc precedes every symbol.
func (t *Table) Resolve(pc uint64) ID {
	if len(t.entries) == 0 || pc < t.entries[0].addr {
		return 0
	}
	i := sort.Search(len(t.entries), func(i int) bool {
		return pc < t.entries[i].addr
	})
	return t.entries[i-1].id
}

// Name returns the symbol name for id, or "" for the zero identifier and
// identifiers outside the table.
func (t *Table) Name(id ID) string {
	if int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}

// Names exposes the identifier-to-name lookup, indexed by ID with slot 0
// unset. The returned slice is shared and must not be mutated.
func (t *Table) Names() []string {
	return t.names
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int {
	return len(t.entries)
}
