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

package mmlock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// lockMode labels the "blocked duration" observation by which kind of
// acquisition was waiting, matching the single counter label spec.md §6
// calls for.
type lockMode string

const (
	modeWrite      lockMode = "write"
	modeRead       lockMode = "read"
	modeReadRange  lockMode = "read_range"
	modeWriteRange lockMode = "write_range"
)

// MetricsSink receives the nanosecond duration of a slow-path wait, labeled
// by acquisition mode, per spec.md §6's telemetry facility.
type MetricsSink interface {
	ObserveBlockedNanos(mode lockMode, ns int64)
}

// noopSink is the sink New installs when no WithMetricsSink option is
// given: observations are dropped.
type noopSink struct{}

func (noopSink) ObserveBlockedNanos(lockMode, int64) {}

// prometheusSink records blocked-wait durations into a HistogramVec,
// following the registerer-injection idiom grounded in
// sgtest-megarepo/grafana's pkg/services/oauthtoken (a prometheus.Registerer
// passed in by the caller, used to build a single HistogramVec at
// construction time rather than relying on the global default registry).
type prometheusSink struct {
	blockedDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers and returns a MetricsSink that reports the
// mmlock_blocked_duration_seconds histogram, labeled by acquisition mode.
func NewPrometheusSink(registerer prometheus.Registerer) MetricsSink {
	blockedDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mmlock_blocked_duration_seconds",
		Help:    "Time a caller spent blocked on the slow path of an mmlock.Lock acquisition.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
	registerer.MustRegister(blockedDuration)
	return &prometheusSink{blockedDuration: blockedDuration}
}

func (s *prometheusSink) ObserveBlockedNanos(mode lockMode, ns int64) {
	s.blockedDuration.WithLabelValues(string(mode)).Observe(time.Duration(ns).Seconds())
}
