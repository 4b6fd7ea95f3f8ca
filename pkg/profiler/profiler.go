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

// Package profiler reconstructs the call paths of a simulated program and
// attributes retired instructions to them.
//
// The profiler is driven entirely by an external instruction-set simulator
// through a small callback surface: Initialize once, then control-flow
// events and retirement ticks in execution order, then Finalize once. It
// keeps the simulated call stack as a sequence of symbol identifiers and,
// on every control-flow event, flushes the instructions retired since the
// previous event into an aggregate keyed by the exact stack contents.
// Finalize writes the aggregate as folded-stack text.
//
// No callback returns an error or panics. A broken symbol listing or an
// unwritable output degrades the profile, never the simulation hosting the
// profiler.
package profiler

import (
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/instret-dev/instret/pkg/callpath"
	"github.com/instret-dev/instret/pkg/folded"
	"github.com/instret-dev/instret/pkg/symtab"
)

// Profiler holds one profiling session: the symbol table, the simulated
// call stack, the pending retirement count and the path aggregate. All
// callbacks must come from a single goroutine in execution order.
type Profiler struct {
	logger  log.Logger
	metrics *metrics

	tab     *symtab.Table
	stack   []symtab.ID
	pending uint64
	agg     *callpath.Aggregator
}

// New returns a profiler ready for Initialize. logger and reg may be nil.
func New(logger log.Logger, reg prometheus.Registerer) *Profiler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Profiler{
		logger:  logger,
		metrics: newMetrics(reg),
		tab:     symtab.NewTable(nil),
		agg:     callpath.NewAggregator(),
	}
}

// Initialize loads the symbol listing at symbolPath and seeds the call
// stack with the frame enclosing entryPC. When the listing cannot be read
// the profiler keeps running with an empty table: nothing resolves, the
// stack stays empty and the exported profile ends up empty as well.
func (p *Profiler) Initialize(symbolPath string, entryPC uint64) {
	tab, err := symtab.Load(p.logger, symbolPath)
	if err != nil {
		level.Warn(p.logger).Log("msg", "failed to load symbol listing, profiling runs degraded", "path", symbolPath, "err", err)
		if tab == nil {
			tab = symtab.NewTable(nil)
		}
	}
	p.tab = tab
	p.stack = p.stack[:0]
	p.pending = 0

	if id := p.tab.Resolve(entryPC); id != 0 {
		p.stack = append(p.stack, id)
	} else {
		p.metrics.unresolved.WithLabelValues(labelSiteEntry).Inc()
		level.Debug(p.logger).Log("msg", "entry point did not resolve, starting with an empty stack", "entry", fmt.Sprintf("0x%x", entryPC))
	}
	level.Debug(p.logger).Log("msg", "profiler initialized", "symbols", p.tab.Len())
}

// OnCall records a direct call-type transfer to targetPC. A tail call
// replaces the innermost frame instead of nesting. A target that resolves
// to no symbol pushes nothing; execution inside it stays attributed to the
// enclosing frame.
func (p *Profiler) OnCall(targetPC uint64, tail bool) {
	p.flush()

	typ := labelCall
	if tail {
		typ = labelTailCall
		if len(p.stack) > 0 {
			p.stack = p.stack[:len(p.stack)-1]
		}
	}
	p.metrics.events.WithLabelValues(typ).Inc()

	p.push(targetPC, labelSiteCall)
}

// OnIndirectCall records an indirect control transfer to targetPC. With
// ret set it pops the innermost frame, if any, and never pushes; otherwise
// it behaves like OnCall.
func (p *Profiler) OnIndirectCall(targetPC uint64, ret, tail bool) {
	p.flush()

	if ret {
		p.metrics.events.WithLabelValues(labelReturn).Inc()
		if len(p.stack) > 0 {
			p.stack = p.stack[:len(p.stack)-1]
		}
		return
	}

	typ := labelIndirectCall
	if tail {
		typ = labelTailCall
		if len(p.stack) > 0 {
			p.stack = p.stack[:len(p.stack)-1]
		}
	}
	p.metrics.events.WithLabelValues(typ).Inc()

	p.push(targetPC, labelSiteIndirect)
}

// OnInstructionRetired counts one retired instruction against whatever
// call path is active at the next flush. This is the hot path, called once
// per instruction of the simulated program.
func (p *Profiler) OnInstructionRetired() {
	p.pending++
}

// OnInstructionsRetired counts n retired instructions at once.
func (p *Profiler) OnInstructionsRetired(n uint64) {
	p.pending += n
}

// Finalize flushes the remaining pending count and writes the folded
// profile to outputPath. An unwritable destination means no output, never
// a failure surfaced to the driver.
func (p *Profiler) Finalize(outputPath string) {
	p.flush()
	if p.pending > 0 {
		level.Debug(p.logger).Log("msg", "dropping instructions retired outside any known frame", "count", p.pending)
		p.pending = 0
	}

	f, err := os.Create(outputPath)
	if err != nil {
		level.Warn(p.logger).Log("msg", "failed to create profile output, nothing exported", "path", outputPath, "err", err)
		return
	}
	if err := folded.Write(f, p.agg, p.tab.Name); err != nil {
		level.Warn(p.logger).Log("msg", "failed to write folded profile", "path", outputPath, "err", err)
	}
	if err := f.Close(); err != nil {
		level.Warn(p.logger).Log("msg", "failed to close profile output", "path", outputPath, "err", err)
	}

	level.Debug(p.logger).Log("msg", "profile exported", "path", outputPath, "paths", p.agg.Len(), "instructions", p.agg.Total())
}

// Aggregate returns the accumulated call-path counts. It stays owned by
// the profiler; treat it as read-only.
func (p *Profiler) Aggregate() *callpath.Aggregator {
	return p.agg
}

// Table returns the symbol table loaded by Initialize.
func (p *Profiler) Table() *symtab.Table {
	return p.tab
}

// flush hands the pending count to the aggregate under the current stack.
// With no active frame the count stays pending until a frame exists;
// Finalize drops it if none ever does.
func (p *Profiler) flush() {
	if len(p.stack) == 0 || p.pending == 0 {
		return
	}
	p.agg.Add(p.stack, p.pending)
	p.metrics.attributed.Add(float64(p.pending))
	p.pending = 0
}

func (p *Profiler) push(targetPC uint64, site string) {
	id := p.tab.Resolve(targetPC)
	if id == 0 {
		p.metrics.unresolved.WithLabelValues(site).Inc()
		level.Debug(p.logger).Log("msg", "target did not resolve, no frame pushed", "site", site, "target", fmt.Sprintf("0x%x", targetPC))
		return
	}
	p.stack = append(p.stack, id)
}
