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

package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log/level"

	"github.com/instret-dev/instret/pkg/flat"
	"github.com/instret-dev/instret/pkg/folded"
	"github.com/instret-dev/instret/pkg/logger"
)

type flags struct {
	Input  string `kong:"help='The folded stack profile to summarize.'"`
	SortBy string `kong:"enum='self,total',help='Column to sort the table by.',default='self'"`
	Top    int    `kong:"help='Print only the first N functions. 0 prints all of them.',default='0'"`
	CSV    bool   `kong:"help='Print CSV instead of an aligned table.'"`
}

// This tool turns the folded stack profiles that instret writes into a
// flat per-function table, for a quick look without a flame graph viewer.
func main() {
	logger := logger.NewLogger("debug", logger.LogFormatLogfmt, "instret-report")

	flags := flags{}
	kong.Parse(&flags)

	if flags.Input == "" {
		// nolint
		fmt.Fprintln(os.Stderr, "The input argument is required")
		os.Exit(1)
	}

	f, err := os.Open(flags.Input)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open profile", "path", flags.Input, "err", err)
		os.Exit(1)
	}
	defer f.Close()

	entries, err := folded.Parse(f)
	if err != nil {
		level.Error(logger).Log("msg", "failed to parse profile", "path", flags.Input, "err", err)
		os.Exit(1)
	}
	level.Debug(logger).Log("msg", "profile parsed", "paths", len(entries))

	report := flat.Compute(entries)
	report.Sort(flags.SortBy)

	if flags.CSV {
		err = report.WriteCSV(os.Stdout, flags.Top)
	} else {
		err = report.WriteTable(os.Stdout, flags.Top)
	}
	if err != nil {
		// nolint
		fmt.Println("failed with:", err)
	}
}
