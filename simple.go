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
	"context"
	"sync"
)

// SimpleLock is the non-queued fallback: a plain reader/writer mutex with
// none of the FIFO fairness or fine-grained range machinery. It mirrors the
// #else branch of mmap_lock.h, which backs the address space lock with a
// bare struct rw_semaphore when the queued implementation is compiled out,
// and exposes the identical coarse operation surface as Lock so the two
// configurations are interchangeable at the call site.
type SimpleLock struct {
	mu sync.RWMutex
}

// NewSimple returns a SimpleLock: no FIFO ordering guarantee, no
// fine-grained range mode, no debug or metrics hooks. It exists purely as
// the compile-time "simpler" alternative named in spec.md §6.
func NewSimple() *SimpleLock {
	return &SimpleLock{}
}

// Lock acquires the lock for exclusive access, blocking until it is free.
func (s *SimpleLock) Lock() { s.mu.Lock() }

// LockNested is Lock; the nesting subclass is a lockdep-only annotation on
// the queued implementation and has nothing to attach to here, so it is
// accepted and ignored, matching down_write_nested degrading to down_write
// when lockdep is unavailable.
func (s *SimpleLock) LockNested(ctx context.Context, subclass int) error {
	s.mu.Lock()
	return nil
}

// LockContext is Lock; this configuration has no slow-path wait loop to
// interrupt, so ctx is accepted and ignored, matching down_write_killable's
// non-killable sibling down_write.
func (s *SimpleLock) LockContext(ctx context.Context) error {
	s.mu.Lock()
	return nil
}

// TryLock attempts to acquire the lock for exclusive access without
// blocking.
func (s *SimpleLock) TryLock() bool { return s.mu.TryLock() }

// Unlock releases an exclusive hold.
func (s *SimpleLock) Unlock() { s.mu.Unlock() }

// Downgrade converts the caller's held exclusive lock into a shared hold.
// Unlike Lock.Downgrade, this is not atomic: sync.RWMutex has no native
// write-to-read downgrade, so there is a brief window, between the
// underlying Unlock and RLock, during which another writer can acquire the
// lock first. Callers that depend on downgrade atomicity need the queued
// implementation.
func (s *SimpleLock) Downgrade() {
	s.mu.Unlock()
	s.mu.RLock()
}

// RLock acquires the lock for shared access, blocking until it is free.
func (s *SimpleLock) RLock() { s.mu.RLock() }

// RLockContext is RLock; ctx is accepted and ignored, as in LockContext.
func (s *SimpleLock) RLockContext(ctx context.Context) error {
	s.mu.RLock()
	return nil
}

// TryRLock attempts to acquire the lock for shared access without
// blocking.
func (s *SimpleLock) TryRLock() bool { return s.mu.TryRLock() }

// RUnlock releases a shared hold.
func (s *SimpleLock) RUnlock() { s.mu.RUnlock() }
