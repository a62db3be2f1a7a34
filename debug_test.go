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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopTrackerIsSilent(t *testing.T) {
	var tr noopTracker
	// None of these may panic; a no-op tracker has nothing to assert beyond
	// "calling it is safe."
	tr.AcquireExclusive(nil, 0)
	tr.AcquireShared(nil)
	tr.Acquired(nil)
	tr.Contended(nil)
	tr.Released(nil)
	tr.Downgraded(nil)
}

func TestZerologTrackerEmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	tr := NewZerologTracker(&buf)

	l := New(WithDebugTracker(tr))
	l.Lock()
	l.Unlock()

	out := buf.String()
	assert.Contains(t, out, `"event":"acquire_exclusive"`)
	assert.Contains(t, out, `"event":"acquired"`)
	assert.Contains(t, out, `"event":"released"`)
}

func TestZerologTrackerLogsContentionAndDowngrade(t *testing.T) {
	var buf bytes.Buffer
	tr := NewZerologTracker(&buf)
	l := New(WithDebugTracker(tr))

	l.Lock()

	contended := make(chan struct{})
	go func() {
		l.RLock()
		close(contended)
		l.RUnlock()
	}()
	// Give the reader a chance to enqueue (and log "contended") while the
	// writer still holds the lock, before Downgrade admits it.
	time.Sleep(10 * time.Millisecond)

	l.Downgrade()
	<-contended

	out := buf.String()
	assert.Contains(t, out, `"event":"contended"`)
	assert.Contains(t, out, `"event":"downgraded"`)
}

func TestLockNestedThreadsSubclassToDebugTracker(t *testing.T) {
	tr := &recordingTracker{}
	l := New(WithDebugTracker(tr))

	require.NoError(t, l.LockNested(context.Background(), 7))
	l.Unlock()

	require.Len(t, tr.exclusiveSubclasses, 1)
	assert.Equal(t, 7, tr.exclusiveSubclasses[0])
}

// recordingTracker is a DebugTracker test double that records the
// subclass argument passed to each AcquireExclusive call, letting
// LockNested's plumbing be asserted on directly rather than merely
// exercised.
type recordingTracker struct {
	exclusiveSubclasses []int
}

func (r *recordingTracker) AcquireExclusive(l *Lock, subclass int) {
	r.exclusiveSubclasses = append(r.exclusiveSubclasses, subclass)
}
func (r *recordingTracker) AcquireShared(*Lock)  {}
func (r *recordingTracker) Acquired(*Lock)       {}
func (r *recordingTracker) Contended(*Lock)      {}
func (r *recordingTracker) Released(*Lock)       {}
func (r *recordingTracker) Downgraded(*Lock)     {}
