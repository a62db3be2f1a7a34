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
	"testing"

	"github.com/stretchr/testify/assert"
)

// alwaysGranted/neverGranted are predicates that don't touch Lock state,
// letting dequeue's splicing logic be exercised directly without going
// through acquire's fast/slow path machinery.
func alwaysGranted(*Lock) bool { return true }
func neverGranted(*Lock) bool  { return false }

func TestDequeueStopsAtFirstIncompatibleWaiter(t *testing.T) {
	l := &Lock{}
	w1 := newWaiter(alwaysGranted)
	w2 := newWaiter(alwaysGranted)
	w3 := newWaiter(neverGranted)
	w4 := newWaiter(alwaysGranted)
	l.enqueue(w1)
	l.enqueue(w2)
	l.enqueue(w3)
	l.enqueue(w4)

	var batch wakeBatch
	l.dequeue(&batch)

	assert.ElementsMatch(t, []*waiter{w1, w2}, batch.woken, "only the compatible prefix is granted")
	assert.Same(t, w3, l.head, "the incompatible waiter remains at the head")
	assert.False(t, w1.inQueue)
	assert.False(t, w2.inQueue)
	assert.True(t, w3.inQueue)
	assert.True(t, w4.inQueue)
}

func TestDequeueEmptyQueueIsNoop(t *testing.T) {
	l := &Lock{}
	var batch wakeBatch
	l.dequeue(&batch)
	assert.Empty(t, batch.woken)
}

func TestWakeBatchFireClosesAllChannelsOnce(t *testing.T) {
	var batch wakeBatch
	w1 := newWaiter(alwaysGranted)
	w2 := newWaiter(alwaysGranted)
	batch.add(w1)
	batch.add(w2)

	batch.fire()

	assertClosed := func(ch chan struct{}) {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel should be closed, not merely sent on")
		default:
			t.Fatal("channel should be immediately readable once closed")
		}
	}
	assertClosed(w1.granted)
	assertClosed(w2.granted)
	assert.Empty(t, batch.woken, "fire must reset the batch")
}

func TestUnlinkReportsWhetherRemovedWaiterWasHead(t *testing.T) {
	l := &Lock{}
	w1 := newWaiter(alwaysGranted)
	w2 := newWaiter(alwaysGranted)
	l.enqueue(w1)
	l.enqueue(w2)

	assert.False(t, l.unlink(w2), "removing the tail is not removing the head")
	assert.True(t, l.unlink(w1), "removing the sole remaining waiter is removing the head")
	assert.Nil(t, l.head)
	assert.Nil(t, l.tail)
}
