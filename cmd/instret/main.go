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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	runtimepprof "runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	okrun "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/instret-dev/instret/pkg/buildinfo"
	"github.com/instret-dev/instret/pkg/config"
	"github.com/instret-dev/instret/pkg/convert"
	"github.com/instret-dev/instret/pkg/logger"
	"github.com/instret-dev/instret/pkg/profiler"
	"github.com/instret-dev/instret/pkg/trace"
)

var (
	version string
	commit  string
	date    string
	goArch  string
)

type flags struct {
	LogLevel    string `kong:"enum='error,warn,info,debug',help='Log level.',default='info'"`
	LogFormat   string `kong:"enum='logfmt,json',help='Log format.',default='logfmt'"`
	HTTPAddress string `kong:"help='Address to bind the HTTP server for metrics to. Leave this empty to not start one.'"`
	ConfigPath  string `default:"" help:"Path to config file."`

	// Replay configuration:
	Symbols string `kong:"help='Path to the nm style symbol listing of the simulated program.'"`
	Trace   string `kong:"help='Path to the recorded control-flow trace to replay.'"`
	EntryPC string `kong:"help='Program counter (hex) the simulation enters at. Only needed when the trace carries no start record.'"`

	// Output configuration:
	Output      string `kong:"help='Path to write the folded stack profile to. Defaults to instret.folded.'"`
	PprofOutput string `kong:"help='Path to additionally write a gzipped pprof profile to. Leave this empty to skip it.'"`
}

const defaultOutputPath = "instret.folded"

func main() {
	flags := flags{}
	kong.Parse(&flags)

	logger := logger.NewLogger(flags.LogLevel, flags.LogFormat, "instret")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	intro := figure.NewColorFigure("Instret", "roman", "cyan", true)
	intro.Print()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...interface{}) {
		level.Info(logger).Log("msg", fmt.Sprintf(format, a...))
	})); err != nil {
		level.Warn(logger).Log("msg", "failed to set GOMAXPROCS automatically", "err", err)
	}

	if err := run(logger, reg, flags); err != nil {
		var serr okrun.SignalError
		if errors.As(err, &serr) {
			level.Info(logger).Log("msg", "terminating because of a signal", "signal", serr.Signal)
			return
		}
		level.Error(logger).Log("err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger, reg *prometheus.Registry, flags flags) error {
	cfg := &config.Config{}

	if flags.ConfigPath != "" {
		cfgFile, err := config.LoadFile(flags.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		cfg = cfgFile
	}

	// Fetch build info such as the git revision we are based off
	buildInfo, err := buildinfo.FetchBuildInfo()
	if err != nil {
		return fmt.Errorf("failed to fetch build info: %w", err)
	}

	if commit == "" {
		commit = buildInfo.VcsRevision
	}
	if date == "" {
		date = buildInfo.VcsTime
	}
	if goArch == "" {
		goArch = buildInfo.GoArch
	}
	level.Debug(logger).Log("msg", "instret initialized",
		"version", version,
		"commit", commit,
		"date", date,
		"config", fmt.Sprintf("%+v", flags),
		"arch", goArch,
	)

	opts := replayOptions{
		symbols:     flags.Symbols,
		tracePath:   flags.Trace,
		output:      flags.Output,
		pprofOutput: flags.PprofOutput,
		entryPC:     cfg.EntryPC,
	}
	if opts.symbols == "" {
		opts.symbols = cfg.Symbols
	}
	if opts.tracePath == "" {
		opts.tracePath = cfg.Trace
	}
	if opts.output == "" {
		opts.output = cfg.Output
	}
	if opts.output == "" {
		opts.output = defaultOutputPath
	}
	if opts.pprofOutput == "" {
		opts.pprofOutput = cfg.PprofOutput
	}
	if flags.EntryPC != "" {
		opts.entryPC, err = parseEntryPC(flags.EntryPC)
		if err != nil {
			return fmt.Errorf("failed to parse entry pc %q: %w", flags.EntryPC, err)
		}
	}

	if opts.tracePath == "" {
		return errors.New("no trace to replay, pass --trace or set it in the config file")
	}
	if opts.symbols == "" {
		level.Warn(logger).Log("msg", "no symbol listing given, retired instructions cannot be attributed to functions")
	}

	traceFile, err := os.Open(opts.tracePath)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer traceFile.Close()

	prof := profiler.New(log.With(logger, "component", "profiler"), reg)

	var (
		ctx = context.Background()
		g   okrun.Group
	)

	// Run group for the trace replay.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Debug(logger).Log("msg", "starting: trace replay")
			defer level.Debug(logger).Log("msg", "stopped: trace replay")

			var err error
			runtimepprof.Do(ctx, runtimepprof.Labels("component", "trace_replay"), func(ctx context.Context) {
				err = replay(ctx, logger, prof, traceFile, opts)
			})

			return err
		}, func(error) {
			cancel()
		})
	}

	// Run group for http server.
	if flags.HTTPAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		srv := &http.Server{
			Addr:         flags.HTTPAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: time.Minute,
		}

		g.Add(func() error {
			level.Debug(logger).Log("msg", "starting: http server")
			defer level.Debug(logger).Log("msg", "stopped: http server")

			var err error
			runtimepprof.Do(ctx, runtimepprof.Labels("component", "http_server"), func(_ context.Context) {
				err = srv.ListenAndServe()
			})

			return err
		}, func(error) {
			srv.Close()
		})
	}

	g.Add(okrun.SignalHandler(ctx, os.Interrupt, os.Kill))
	return g.Run()
}

type replayOptions struct {
	symbols     string
	tracePath   string
	output      string
	pprofOutput string
	entryPC     uint64
}

func replay(ctx context.Context, logger log.Logger, prof *profiler.Profiler, r io.Reader, opts replayOptions) error {
	start := time.Now()

	if opts.entryPC != 0 {
		prof.Initialize(opts.symbols, opts.entryPC)
	}

	stats, replayErr := trace.Replay(ctx, logger, r, &profilerHandler{prof: prof, symbols: opts.symbols})

	// An interrupted replay still writes out what was collected so far.
	prof.Finalize(opts.output)

	if opts.pprofOutput != "" {
		if err := writePprof(opts.pprofOutput, start, prof); err != nil {
			return fmt.Errorf("failed to write pprof profile: %w", err)
		}
	}

	level.Info(logger).Log(
		"msg", "trace replayed",
		"lines", stats.Lines,
		"events", stats.Events,
		"instructions", humanize.Comma(int64(stats.Retired)),
		"skipped", stats.Skipped,
		"paths", prof.Aggregate().Len(),
		"output", opts.output,
		"duration", time.Since(start),
	)

	return replayErr
}

func writePprof(path string, captureTime time.Time, prof *profiler.Profiler) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	p := convert.ToPprof(captureTime, prof.Aggregate(), prof.Table().Name)
	if err := convert.WriteGzipped(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// profilerHandler feeds replayed trace events into the profiler callbacks,
// taking the place of the simulator hooks.
type profilerHandler struct {
	prof    *profiler.Profiler
	symbols string
}

func (h *profilerHandler) Start(pc uint64) {
	h.prof.Initialize(h.symbols, pc)
}

func (h *profilerHandler) Call(pc uint64, tail bool) {
	h.prof.OnCall(pc, tail)
}

func (h *profilerHandler) IndirectCall(pc uint64, ret, tail bool) {
	h.prof.OnIndirectCall(pc, ret, tail)
}

func (h *profilerHandler) Retire(n uint64) {
	h.prof.OnInstructionsRetired(n)
}

func parseEntryPC(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}
