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

// Package trace replays recorded control-flow traces of a simulated
// program, standing in for the live simulator that normally drives the
// profiler.
//
// A trace is text, one event per line:
//
//	start HEXPC       program entry point
//	jal HEXPC [tail]  direct call, optionally a tail call
//	jalr HEXPC [ret|tail]
//	                  indirect transfer: plain call, return or tail call
//	retire [N]        N retired instructions, 1 when omitted
//
// Blank lines and lines starting with # are ignored. Malformed lines are
// skipped and counted, never fatal, so a damaged trace still replays as
// far as it can.
package trace

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Handler consumes replayed events in trace order.
type Handler interface {
	Start(entryPC uint64)
	Call(targetPC uint64, tail bool)
	IndirectCall(targetPC uint64, ret, tail bool)
	Retire(n uint64)
}

// Stats summarizes one replay.
type Stats struct {
	Lines   uint64
	Events  uint64
	Retired uint64
	Skipped uint64
}

// Replay streams the events in r into h. It returns once r is exhausted,
// reporting the stats of the replay so far and, as errors, only a failure
// of the reader itself or a canceled context.
func Replay(ctx context.Context, logger log.Logger, r io.Reader, h Handler) (Stats, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	var stats Stats
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !replayLine(line, h, &stats) {
			stats.Skipped++
			level.Debug(logger).Log("msg", "skipping malformed trace line", "line", stats.Lines, "text", line)
		}
	}
	return stats, scanner.Err()
}

func replayLine(line string, h Handler, stats *Stats) bool {
	fields := strings.Fields(line)

	switch fields[0] {
	case "start":
		if len(fields) != 2 {
			return false
		}
		pc, ok := parsePC(fields[1])
		if !ok {
			return false
		}
		h.Start(pc)
		stats.Events++

	case "jal":
		if len(fields) < 2 || len(fields) > 3 {
			return false
		}
		pc, ok := parsePC(fields[1])
		if !ok {
			return false
		}
		tail := false
		if len(fields) == 3 {
			if fields[2] != "tail" {
				return false
			}
			tail = true
		}
		h.Call(pc, tail)
		stats.Events++

	case "jalr":
		if len(fields) < 2 || len(fields) > 3 {
			return false
		}
		pc, ok := parsePC(fields[1])
		if !ok {
			return false
		}
		var ret, tail bool
		if len(fields) == 3 {
			switch fields[2] {
			case "ret":
				ret = true
			case "tail":
				tail = true
			default:
				return false
			}
		}
		h.IndirectCall(pc, ret, tail)
		stats.Events++

	case "retire":
		if len(fields) > 2 {
			return false
		}
		n := uint64(1)
		if len(fields) == 2 {
			var err error
			n, err = strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return false
			}
		}
		h.Retire(n)
		stats.Retired += n

	default:
		return false
	}
	return true
}

func parsePC(s string) (uint64, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	pc, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return pc, true
}
