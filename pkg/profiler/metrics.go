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

package profiler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelCall         = "call"
	labelTailCall     = "tail_call"
	labelIndirectCall = "indirect_call"
	labelReturn       = "return"

	labelSiteEntry    = "entry"
	labelSiteCall     = "call"
	labelSiteIndirect = "indirect_call"
)

type metrics struct {
	events     *prometheus.CounterVec
	unresolved *prometheus.CounterVec
	attributed prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "instret_profiler_events_total",
				Help: "Total number of control-flow events seen by the profiler.",
			},
			[]string{"type"},
		),
		unresolved: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "instret_profiler_unresolved_total",
				Help: "Total number of program counters that resolved to no symbol.",
			},
			[]string{"site"},
		),
		attributed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "instret_profiler_instructions_attributed_total",
				Help: "Total number of retired instructions attributed to a call path.",
			},
		),
	}
	m.events.WithLabelValues(labelCall)
	m.events.WithLabelValues(labelTailCall)
	m.events.WithLabelValues(labelIndirectCall)
	m.events.WithLabelValues(labelReturn)

	m.unresolved.WithLabelValues(labelSiteEntry)
	m.unresolved.WithLabelValues(labelSiteCall)
	m.unresolved.WithLabelValues(labelSiteIndirect)

	return m
}
