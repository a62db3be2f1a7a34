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

// predicate is evaluated with gate held. It both tests whether the lock can
// be granted in the waiter's desired mode and, if so, mutates the Lock's
// state to record the acquisition. It must never block and must never touch
// anything outside the Lock it is handed.
type predicate func(l *Lock) bool

// waiter is a node on the FIFO queue. Unlike the kernel, whose
// mmap_lock_waiter is stack-allocated by the blocked task and linked into a
// list_head, the Go rendering keeps the same "caller owns it, lock only
// borrows it" lifetime but publishes hand-off by closing granted instead of
// storing-then-acquire-loading a task pointer: closing a channel is Go's
// release-store with built-in broadcast, so the waiter's own wait loop
// (recv on granted) is the acquire-load side for free.
type waiter struct {
	f       predicate
	prev    *waiter
	next    *waiter
	granted chan struct{}
	// inQueue is the authoritative "has this waiter been granted yet?"
	// state, read and written only under gate. It exists because, unlike
	// the kernel's task=NULL store (which happens under the lock, leaving
	// the actual task wake-up for after release), closing granted in Go
	// *is* the wake-up: a waiter's own select on ctx.Done() racing with
	// the engine's close(w.granted) cannot be resolved by peeking at the
	// channel, since the close may not yet be visible. inQueue sidesteps
	// that race entirely: it flips to false atomically with the queue
	// splice, under the same gate a canceller must reacquire before it can
	// look at it, so gate's own release/acquire ordering is all the
	// synchronization this needs.
	inQueue bool
}

func newWaiter(f predicate) *waiter {
	return &waiter{f: f, granted: make(chan struct{})}
}

// enqueue appends w to the tail of the queue.
func (l *Lock) enqueue(w *waiter) {
	w.prev = l.tail
	w.next = nil
	w.inQueue = true
	if l.tail != nil {
		l.tail.next = w
	} else {
		l.head = w
	}
	l.tail = w
}

// unlink removes w from the queue by pointer identity and reports whether w
// was the head at the time of removal (the signal the cancellation path
// uses to decide whether the hand-off engine needs to re-examine the
// queue -- removing a non-head waiter can never unblock anyone under the
// compatibility rules in this package, since the head is always checked
// first and in the same order).
func (l *Lock) unlink(w *waiter) (wasHead bool) {
	wasHead = l.head == w
	if w.prev != nil {
		w.prev.next = w.next
	} else {
		l.head = w.next
	}
	if w.next != nil {
		w.next.prev = w.prev
	} else {
		l.tail = w.prev
	}
	w.prev, w.next = nil, nil
	w.inQueue = false
	return wasHead
}
