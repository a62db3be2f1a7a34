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
	"io"

	"github.com/rs/zerolog"
)

// DebugTracker mirrors the external lockdep-style facility named in
// spec.md §6: four annotation events for the mode of acquisition, plus a
// "contended" event at the start of a slow-path wait and an "acquired"
// event when the lock is actually granted. Implementations must not block
// and must not themselves take l.gate.
type DebugTracker interface {
	AcquireExclusive(l *Lock, subclass int)
	AcquireShared(l *Lock)
	Acquired(l *Lock)
	Contended(l *Lock)
	Released(l *Lock)
	Downgraded(l *Lock)
}

// noopTracker is the tracker New installs when no WithDebugTracker option
// is given: all four annotation events and the two wait-lifecycle events
// are no-ops, so an unconfigured Lock pays nothing for debug tracking.
type noopTracker struct{}

func (noopTracker) AcquireExclusive(*Lock, int) {}
func (noopTracker) AcquireShared(*Lock)         {}
func (noopTracker) Acquired(*Lock)              {}
func (noopTracker) Contended(*Lock)             {}
func (noopTracker) Released(*Lock)              {}
func (noopTracker) Downgraded(*Lock)            {}

// zerologTracker emits one structured log line per annotation event, in
// the shape joeycumines-go-utilpkg/logiface-zerolog wraps zerolog.Logger
// for: a zerolog.Logger held by value, one Debug()/Trace() call per event.
type zerologTracker struct {
	log zerolog.Logger
}

// NewZerologTracker returns a DebugTracker that writes one line per
// lockdep-style event to w. Acquire/release events are logged at debug
// level; the higher-volume contended event is logged at trace level.
func NewZerologTracker(w io.Writer) DebugTracker {
	return &zerologTracker{log: zerolog.New(w).With().Timestamp().Logger()}
}

func (t *zerologTracker) AcquireExclusive(l *Lock, subclass int) {
	t.log.Debug().Str("event", "acquire_exclusive").Int("subclass", subclass).Msg("mmlock")
}

func (t *zerologTracker) AcquireShared(l *Lock) {
	t.log.Debug().Str("event", "acquire_shared").Msg("mmlock")
}

func (t *zerologTracker) Acquired(l *Lock) {
	t.log.Debug().Str("event", "acquired").Msg("mmlock")
}

func (t *zerologTracker) Contended(l *Lock) {
	t.log.Trace().Str("event", "contended").Msg("mmlock")
}

func (t *zerologTracker) Released(l *Lock) {
	t.log.Debug().Str("event", "released").Msg("mmlock")
}

func (t *zerologTracker) Downgraded(l *Lock) {
	t.log.Debug().Str("event", "downgraded").Msg("mmlock")
}
