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

// Package mmlock implements a fair, queued reader/writer lock with an
// optional fine-grained range-based read and write mode, intended to
// serialize access to a per-process virtual memory map the way
// lespinasse/linux's CONFIG_MMAP_LOCK_QUEUED mmap_lock rewrite does.
//
// Readers may hold the lock in one of two modes: coarse (the traditional
// whole-map reader) or fine (a range-based reader that conflicts only with
// a coarse writer and with fine writers holding an overlapping half-open
// interval). A coarse writer is exclusive: it excludes every other holder
// of either mode. A fine writer excludes coarse holders and overlapping
// fine holders, so several fine writers on disjoint ranges may be active
// at once. A single gate mutex serializes state transitions; a FIFO queue
// of waiters preserves fairness, and an augmented interval tree lets fine
// holders avoid blocking on unrelated ranges.
package mmlock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInterrupted is returned by the *Context acquisition variants when the
// supplied context is cancelled before the lock was granted.
var ErrInterrupted = errors.New("mmlock: acquisition interrupted")

// RWLocker is the interface both the queued Lock and the NewSimple
// fallback satisfy.
type RWLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// Option configures a Lock at construction time.
type Option func(*Lock)

// WithDebugTracker attaches a lockdep-style annotation sink. The default is
// a no-op tracker.
func WithDebugTracker(t DebugTracker) Option {
	return func(l *Lock) { l.dep = t }
}

// WithMetricsSink attaches a slow-path-wait duration sink. The default is a
// no-op sink.
func WithMetricsSink(m MetricsSink) Option {
	return func(l *Lock) { l.metrics = m }
}

// Lock is the lock body: the gate mutex serializing all state transitions,
// the FIFO waiter queue, the coarse reader/writer counter, the count of
// active fine writers, and the two interval indexes tracking active fine
// readers and fine writers.
type Lock struct {
	gate sync.Mutex

	head, tail *waiter

	// coarseCount is 0 when idle, >0 for the number of active coarse
	// readers, -1 for a single active coarse writer.
	coarseCount int
	// fineWriters counts active fine-grained writers; writeRanges is the
	// source of truth for which intervals they hold (see DESIGN.md's Open
	// Question #1 resolution: multiple non-overlapping fine writers are
	// permitted, not just one).
	fineWriters int
	readRanges  rangeIndex
	writeRanges rangeIndex

	dep     DebugTracker
	metrics MetricsSink
}

// New returns an idle Lock ready for use.
func New(opts ...Option) *Lock {
	l := &Lock{dep: noopTracker{}, metrics: noopSink{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func assertInvariant(cond bool, msg string) {
	if !cond {
		panic("mmlock: " + msg)
	}
}

// --- predicates -------------------------------------------------------

func writerPredicate(l *Lock) bool {
	if l.coarseCount != 0 || l.fineWriters != 0 || !l.readRanges.empty() {
		return false
	}
	l.coarseCount = -1
	return true
}

func coarseReaderPredicate(l *Lock) bool {
	if l.coarseCount < 0 || l.fineWriters != 0 {
		return false
	}
	l.coarseCount++
	return true
}

// fineReaderPredicate admits entry as a fine reader iff no writer (coarse
// or fine, overlapping) currently holds the map/range.
func fineReaderPredicate(entry *RangeEntry) predicate {
	return func(l *Lock) bool {
		if l.coarseCount < 0 {
			return false
		}
		if l.writeRanges.intersects(entry.start, entry.end) {
			return false
		}
		l.readRanges.insert(entry)
		return true
	}
}

// fineWriterPredicate admits entry as a fine writer iff no coarse holder of
// any kind is active and no overlapping fine reader or fine writer exists.
func fineWriterPredicate(entry *RangeEntry) predicate {
	return func(l *Lock) bool {
		if l.coarseCount != 0 {
			return false
		}
		if l.readRanges.intersects(entry.start, entry.end) || l.writeRanges.intersects(entry.start, entry.end) {
			return false
		}
		l.writeRanges.insert(entry)
		l.fineWriters++
		return true
	}
}

// --- generic acquire/cancel protocol ------------------------------------

// acquire implements the fast-path/slow-path/cancellation protocol common
// to every blocking acquisition variant. exclusive selects which debug
// annotation event precedes the attempt.
func (l *Lock) acquire(ctx context.Context, pred predicate, mode lockMode, exclusive bool, subclass int) error {
	if exclusive {
		l.dep.AcquireExclusive(l, subclass)
	} else {
		l.dep.AcquireShared(l)
	}

	// Allocate the waiter (and its granted channel) before taking gate: a
	// caller that turns out not to need it has wasted an allocation, but
	// the alternative is allocating memory while gate is held, which
	// spec.md §5 forbids outright.
	w := newWaiter(pred)

	l.gate.Lock()
	if l.head == nil && pred(l) {
		l.gate.Unlock()
		l.dep.Acquired(l)
		return nil
	}

	l.enqueue(w)
	l.gate.Unlock()

	l.dep.Contended(l)
	begin := time.Now()

	select {
	case <-w.granted:
		l.metrics.ObserveBlockedNanos(mode, time.Since(begin).Nanoseconds())
		l.dep.Acquired(l)
		return nil
	case <-ctx.Done():
		l.gate.Lock()
		if !w.inQueue {
			// The hand-off engine already granted us; the lock-state
			// mutation performed by pred is visible via gate's own
			// release/acquire ordering, so we can complete normally
			// without waiting for the channel close to land.
			l.gate.Unlock()
			l.metrics.ObserveBlockedNanos(mode, time.Since(begin).Nanoseconds())
			l.dep.Acquired(l)
			return nil
		}
		wasHead := l.unlink(w)
		var batch wakeBatch
		if wasHead {
			l.dequeue(&batch)
		}
		l.gate.Unlock()
		batch.fire()
		l.metrics.ObserveBlockedNanos(mode, time.Since(begin).Nanoseconds())
		return ErrInterrupted
	}
}

// tryAcquire implements the non-blocking trylock protocol: it never waits,
// and fails if the queue is non-empty (preserving fairness: a queued
// writer can never be jumped by an opportunistic trylock reader) or if the
// predicate itself fails.
func (l *Lock) tryAcquire(pred predicate, exclusive bool) bool {
	l.gate.Lock()
	ok := l.head == nil && pred(l)
	l.gate.Unlock()
	if ok {
		if exclusive {
			l.dep.AcquireExclusive(l, 0)
		} else {
			l.dep.AcquireShared(l)
		}
		l.dep.Acquired(l)
	}
	return ok
}

// release runs fn (an unlock/downgrade-style mutator) under gate, then
// invokes the hand-off engine if the resulting state might admit the
// queue's head, and finally performs the batched wake outside gate.
func (l *Lock) release(fn func()) {
	l.gate.Lock()
	fn()
	var batch wakeBatch
	if l.head != nil {
		l.dequeue(&batch)
	}
	l.gate.Unlock()
	batch.fire()
}

// --- coarse writer ops ---------------------------------------------------

// Lock acquires the lock for exclusive (writer) access, blocking
// uninterruptibly until it is granted.
func (l *Lock) Lock() {
	_ = l.acquire(context.Background(), writerPredicate, modeWrite, true, 0)
}

// LockNested is LockContext, annotated with a lockdep-style nesting
// subclass hint for callers that intentionally take more than one Lock of
// this type at once in a well-defined order. It performs no re-entrant
// acquisition: the subclass is debug annotation only, per spec.md's
// Non-goals.
func (l *Lock) LockNested(ctx context.Context, subclass int) error {
	return l.acquire(ctx, writerPredicate, modeWrite, true, subclass)
}

// LockContext acquires the lock for exclusive access, returning
// ErrInterrupted if ctx is done before the lock is granted.
func (l *Lock) LockContext(ctx context.Context) error {
	return l.acquire(ctx, writerPredicate, modeWrite, true, 0)
}

// TryLock attempts to acquire the lock for exclusive access without
// blocking, returning false if that is not immediately possible.
func (l *Lock) TryLock() bool {
	return l.tryAcquire(writerPredicate, true)
}

// Unlock releases an exclusive (writer) hold.
func (l *Lock) Unlock() {
	l.release(func() {
		assertInvariant(l.coarseCount == -1, "write_unlock called without a held write lock")
		assertInvariant(l.fineWriters == 0, "write_unlock observed active fine writers")
		assertInvariant(l.readRanges.empty(), "write_unlock observed active fine readers")
		l.coarseCount = 0
	})
	l.dep.Released(l)
}

// Downgrade atomically converts the caller's held exclusive lock into a
// single coarse reader hold, then re-examines the queue: any waiters that
// were only blocked by the writer may now be granted.
func (l *Lock) Downgrade() {
	l.release(func() {
		assertInvariant(l.coarseCount == -1, "write_downgrade called without a held write lock")
		assertInvariant(l.fineWriters == 0, "write_downgrade observed active fine writers")
		assertInvariant(l.readRanges.empty(), "write_downgrade observed active fine readers")
		l.coarseCount = 1
	})
	l.dep.Downgraded(l)
}

// --- coarse reader ops ---------------------------------------------------

// RLock acquires the lock for shared (coarse reader) access, blocking
// uninterruptibly until it is granted.
func (l *Lock) RLock() {
	_ = l.acquire(context.Background(), coarseReaderPredicate, modeRead, false, 0)
}

// RLockContext acquires the lock for shared access, returning
// ErrInterrupted if ctx is done before the lock is granted.
func (l *Lock) RLockContext(ctx context.Context) error {
	return l.acquire(ctx, coarseReaderPredicate, modeRead, false, 0)
}

// TryRLock attempts to acquire the lock for shared access without
// blocking, returning false if that is not immediately possible.
func (l *Lock) TryRLock() bool {
	return l.tryAcquire(coarseReaderPredicate, false)
}

// RUnlock releases one coarse reader hold.
func (l *Lock) RUnlock() {
	l.release(func() {
		assertInvariant(l.coarseCount > 0, "read_unlock called without a held coarse read lock")
		assertInvariant(l.fineWriters == 0, "read_unlock observed active fine writers")
		l.coarseCount--
	})
	l.dep.Released(l)
}

// --- fine reader ops ------------------------------------------------------

// RLockRange acquires a fine-grained reader hold over [start, end),
// blocking uninterruptibly until it is granted, and returns the handle to
// pass to RUnlockRange.
func (l *Lock) RLockRange(start, end uint64) *RangeEntry {
	e, _ := l.rLockRange(context.Background(), start, end)
	return e
}

// RLockRangeContext is RLockRange with cancellation: it returns
// ErrInterrupted if ctx is done before the range is granted.
func (l *Lock) RLockRangeContext(ctx context.Context, start, end uint64) (*RangeEntry, error) {
	return l.rLockRange(ctx, start, end)
}

func (l *Lock) rLockRange(ctx context.Context, start, end uint64) (*RangeEntry, error) {
	entry := &RangeEntry{start: start, end: end}
	err := l.acquire(ctx, fineReaderPredicate(entry), modeReadRange, false, 0)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RUnlockRange releases a fine-grained reader hold acquired by
// RLockRange/RLockRangeContext.
func (l *Lock) RUnlockRange(entry *RangeEntry) {
	l.release(func() {
		assertInvariant(l.coarseCount >= 0, "read_range_unlock observed an active coarse writer")
		l.readRanges.remove(entry)
	})
	l.dep.Released(l)
}

// --- fine writer ops ------------------------------------------------------

// WLockRange acquires a fine-grained writer hold over [start, end),
// blocking uninterruptibly until it is granted.
func (l *Lock) WLockRange(start, end uint64) *RangeEntry {
	e, _ := l.wLockRange(context.Background(), start, end)
	return e
}

// WLockRangeContext is WLockRange with cancellation.
func (l *Lock) WLockRangeContext(ctx context.Context, start, end uint64) (*RangeEntry, error) {
	return l.wLockRange(ctx, start, end)
}

func (l *Lock) wLockRange(ctx context.Context, start, end uint64) (*RangeEntry, error) {
	entry := &RangeEntry{start: start, end: end}
	err := l.acquire(ctx, fineWriterPredicate(entry), modeWriteRange, true, 0)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// WUnlockRange releases a fine-grained writer hold.
func (l *Lock) WUnlockRange(entry *RangeEntry) {
	l.release(func() {
		assertInvariant(l.fineWriters > 0, "write_range_unlock called without a held fine writer lock")
		l.writeRanges.remove(entry)
		l.fineWriters--
	})
	l.dep.Released(l)
}
