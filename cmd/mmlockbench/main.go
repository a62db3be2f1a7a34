// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command mmlockbench drives a configurable mixed coarse/fine workload
// against an mmlock.Lock and reports contention statistics, in the spirit
// of the package's own benchmarkLocking test helper but as a standalone,
// runnable tool.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dijkstracula/go-mmlock"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type benchOptions struct {
	concurrency int
	ops         int
	writeRatio  float64
	fineRatio   float64
	spaceSize   uint64
	rangeWidth  uint64
}

func newRootCmd() *cobra.Command {
	opts := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "mmlockbench",
		Short: "Stress-test an mmlock.Lock under a mixed coarse/fine workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.concurrency, "concurrency", 16, "number of concurrent worker goroutines")
	flags.IntVar(&opts.ops, "ops", 10000, "total lock acquisitions per worker")
	flags.Float64Var(&opts.writeRatio, "write-ratio", 0.1, "fraction of operations that are writers")
	flags.Float64Var(&opts.fineRatio, "fine-ratio", 0.5, "fraction of operations using the fine-grained range mode")
	flags.Uint64Var(&opts.spaceSize, "space-size", 1<<20, "size of the simulated address space")
	flags.Uint64Var(&opts.rangeWidth, "range-width", 4096, "width of a fine-grained acquisition's range")

	return cmd
}

func runBench(cmd *cobra.Command, opts *benchOptions) error {
	log := zerolog.New(cmd.OutOrStdout()).With().Timestamp().Logger()

	registry := prometheus.NewRegistry()
	lock := mmlock.New(
		mmlock.WithDebugTracker(mmlock.NewZerologTracker(cmd.ErrOrStderr())),
		mmlock.WithMetricsSink(mmlock.NewPrometheusSink(registry)),
	)

	var eg errgroup.Group
	start := time.Now()

	for w := 0; w < opts.concurrency; w++ {
		worker := w
		eg.Go(func() error {
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))
			for i := 0; i < opts.ops; i++ {
				runOp(lock, rng, opts)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)
	total := opts.concurrency * opts.ops
	log.Info().
		Int("concurrency", opts.concurrency).
		Int("total_ops", total).
		Dur("elapsed", elapsed).
		Float64("ops_per_sec", float64(total)/elapsed.Seconds()).
		Msg("mmlockbench: workload complete")

	fmt.Fprintf(cmd.OutOrStdout(), "%d ops across %d workers in %s (%.0f ops/sec)\n",
		total, opts.concurrency, elapsed, float64(total)/elapsed.Seconds())

	return printBlockedDurationSummary(cmd, registry)
}

// printBlockedDurationSummary reports, per acquisition mode, how many slow
// path waits occurred and their total blocked duration, gathered from the
// mmlock_blocked_duration_seconds histogram registered by NewPrometheusSink.
func printBlockedDurationSummary(cmd *cobra.Command, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if mf.GetName() != "mmlock_blocked_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			mode := "unknown"
			for _, lbl := range m.GetLabel() {
				if lbl.GetName() == "mode" {
					mode = lbl.GetValue()
				}
			}
			h := m.GetHistogram()
			fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %8d slow-path waits, %.6fs total blocked\n",
				mode, h.GetSampleCount(), h.GetSampleSum())
		}
	}
	return nil
}

func runOp(lock *mmlock.Lock, rng *rand.Rand, opts *benchOptions) {
	fine := rng.Float64() < opts.fineRatio
	write := rng.Float64() < opts.writeRatio

	if !fine {
		if write {
			lock.Lock()
			lock.Unlock()
		} else {
			lock.RLock()
			lock.RUnlock()
		}
		return
	}

	start := rng.Uint64() % opts.spaceSize
	end := start + 1 + rng.Uint64()%opts.rangeWidth
	if end > opts.spaceSize {
		end = opts.spaceSize
	}
	if start >= end {
		start = end - 1
	}

	if write {
		entry := lock.WLockRange(start, end)
		lock.WUnlockRange(entry)
	} else {
		entry := lock.RLockRange(start, end)
		lock.RUnlockRange(entry)
	}
}
