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

// wakeBatch accumulates waiters granted by a single dequeue pass. The gate
// must be released before any of these are woken, so that a woken waiter
// contending on gate never does so while the releaser still holds it.
type wakeBatch struct {
	woken []*waiter
}

func (b *wakeBatch) add(w *waiter) {
	b.woken = append(b.woken, w)
}

// fire closes granted on every accumulated waiter, in the order they were
// added (queue order). Must be called with gate NOT held. After this call
// returns, none of the waiters may be touched again: this is their last
// publication.
func (b *wakeBatch) fire() {
	for _, w := range b.woken {
		close(w.granted)
	}
	b.woken = nil
}

// dequeue walks the FIFO queue head-first with gate held, handing the lock
// to every consecutive waiter whose predicate succeeds, and stops at the
// first one that fails -- even if some later waiter would have succeeded --
// so that a blocked writer can never be overtaken by a steady stream of
// compatible readers arriving behind it. Granted waiters are appended to
// batch in order; batch must be fired by the caller only after gate is
// released.
func (l *Lock) dequeue(batch *wakeBatch) {
	w := l.head
	for w != nil {
		if !w.f(l) {
			break
		}
		next := w.next
		l.unlink(w)
		batch.add(w)
		w = next
	}
}
