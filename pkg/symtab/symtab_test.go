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

package symtab

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	listing := strings.Join([]string{
		"00000100 T _start",
		"00000200 t helper extra fields ignored",
		"00000300 W weak_global",
		"00000400 w weak_local",
		"00000500 D data_symbol",
		"00000600 B bss_symbol",
		"not-a-line",
		"700 X name",
		"0x00000800 T prefixed",
		"",
		"zz00 T bad_address",
	}, "\n")

	tab, err := Parse(log.NewNopLogger(), strings.NewReader(listing))
	require.NoError(t, err)
	require.Equal(t, 5, tab.Len())

	require.Equal(t, "_start", tab.Name(tab.Resolve(0x100)))
	require.Equal(t, "helper", tab.Name(tab.Resolve(0x200)))
	require.Equal(t, "weak_global", tab.Name(tab.Resolve(0x300)))
	require.Equal(t, "weak_local", tab.Name(tab.Resolve(0x400)))
	require.Equal(t, "prefixed", tab.Name(tab.Resolve(0x800)))

	// The data symbol at 0x500 was filtered, so its range belongs to the
	// preceding function.
	require.Equal(t, "weak_local", tab.Name(tab.Resolve(0x520)))
}

func TestParseAssignsFileOrderIDs(t *testing.T) {
	// Addresses deliberately out of order: identifiers follow the file,
	// not the sorted table.
	listing := "00000300 T third\n00000100 T first\n00000200 T second\n"

	tab, err := Parse(log.NewNopLogger(), strings.NewReader(listing))
	require.NoError(t, err)

	require.Equal(t, ID(1), tab.Resolve(0x300))
	require.Equal(t, ID(2), tab.Resolve(0x100))
	require.Equal(t, ID(3), tab.Resolve(0x200))

	require.Equal(t, "third", tab.Name(1))
	require.Equal(t, "first", tab.Name(2))
	require.Equal(t, "second", tab.Name(3))
}

func TestResolveBoundaries(t *testing.T) {
	tab := NewTable([]Symbol{
		{Addr: 0x100, Name: "main"},
		{Addr: 0x200, Name: "foo"},
	})

	require.Equal(t, ID(0), tab.Resolve(0x0))
	require.Equal(t, ID(0), tab.Resolve(0xff))
	require.Equal(t, ID(1), tab.Resolve(0x100))
	require.Equal(t, ID(1), tab.Resolve(0x1ff))
	require.Equal(t, ID(2), tab.Resolve(0x200))
	require.Equal(t, ID(2), tab.Resolve(0xffffffff))

	// Resolution is idempotent: the table never changes after load.
	require.Equal(t, tab.Resolve(0x1a0), tab.Resolve(0x1a0))
}

func TestResolveEmptyTable(t *testing.T) {
	tab := NewTable(nil)
	require.Equal(t, ID(0), tab.Resolve(0))
	require.Equal(t, ID(0), tab.Resolve(0x80000000))
	require.Equal(t, 0, tab.Len())
}

func TestNameOutOfRange(t *testing.T) {
	tab := NewTable([]Symbol{{Addr: 0x100, Name: "main"}})
	require.Equal(t, "", tab.Name(0))
	require.Equal(t, "", tab.Name(2))
	require.Equal(t, "", tab.Name(ID(MaxSymbols)))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.sym")
	require.NoError(t, os.WriteFile(path, []byte("80000000 T _start\n80000124 T main\n"), 0o644))

	tab, err := Load(log.NewNopLogger(), path)
	require.NoError(t, err)
	require.Equal(t, 2, tab.Len())
	require.Equal(t, "main", tab.Name(tab.Resolve(0x80000130)))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(log.NewNopLogger(), filepath.Join(t.TempDir(), "does-not-exist.sym"))
	require.Error(t, err)
}

func TestParseIdentifierCapacity(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < MaxSymbols+10; i++ {
		fmt.Fprintf(&sb, "%08x T fn_%d\n", 0x1000+i*16, i)
	}

	tab, err := Parse(log.NewNopLogger(), strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Equal(t, MaxSymbols, tab.Len())

	// The last retained symbol still resolves; dropped ones fall into its
	// range.
	last := tab.Resolve(uint64(0x1000 + (MaxSymbols-1)*16))
	require.Equal(t, ID(MaxSymbols), last)
	require.Equal(t, last, tab.Resolve(uint64(0x1000+(MaxSymbols+5)*16)))
}

func TestParseHexToUint64(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"0", 0x0, true},
		{"80000124", 0x80000124, true},
		{"0x80000124", 0x80000124, true},
		{"DEADbeef", 0xdeadbeef, true},
		{"ffffffffffffffff", ^uint64(0), true},
		{"10000000000000000", 0, false},
		{"", 0, false},
		{"0x", 0, false},
		{"12g4", 0, false},
	} {
		got, err := parseHexToUint64([]byte(tc.in))
		if !tc.ok {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func BenchmarkResolve(b *testing.B) {
	symbols := make([]Symbol, 0, 10_000)
	for i := 0; i < 10_000; i++ {
		symbols = append(symbols, Symbol{Addr: uint64(0x10000 + i*64), Name: "fn"})
	}
	tab := NewTable(symbols)
	b.ReportAllocs()
	b.ResetTimer()

	for n := 0; n < b.N; n++ {
		if tab.Resolve(uint64(0x10000+(n%10_000)*64)) == 0 {
			b.Fatal("unexpected unresolved address")
		}
	}
}
