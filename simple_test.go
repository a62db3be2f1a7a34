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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleLockMutualExclusion(t *testing.T) {
	s := NewSimple()

	s.Lock()
	assert.False(t, s.TryLock(), "a second writer must not be admitted while the first holds the lock")
	assert.False(t, s.TryRLock(), "a reader must not be admitted while a writer holds the lock")
	s.Unlock()

	assert.True(t, s.TryLock(), "the lock must be free once the holder unlocks")
	s.Unlock()
}

func TestSimpleLockSharedReaders(t *testing.T) {
	s := NewSimple()

	s.RLock()
	assert.True(t, s.TryRLock(), "a second reader must be admitted alongside the first")
	assert.False(t, s.TryLock(), "a writer must not be admitted while readers hold the lock")

	s.RUnlock()
	s.RUnlock()

	assert.True(t, s.TryLock())
	s.Unlock()
}

func TestSimpleLockNestedIgnoresSubclass(t *testing.T) {
	s := NewSimple()
	require.NoError(t, s.LockNested(context.Background(), 3))
	assert.False(t, s.TryLock(), "LockNested must actually acquire the lock, not merely accept the subclass")
	s.Unlock()
}

func TestSimpleLockContextVariantsIgnoreCancellation(t *testing.T) {
	s := NewSimple()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// LockContext/RLockContext have no slow-path wait loop to interrupt, so
	// an already-cancelled context must not prevent acquisition.
	require.NoError(t, s.LockContext(ctx))
	s.Unlock()

	require.NoError(t, s.RLockContext(ctx))
	s.RUnlock()
}

func TestSimpleLockDowngradeGrantsSharedAccess(t *testing.T) {
	s := NewSimple()

	s.Lock()
	s.Downgrade()

	// Downgrade left the caller holding a read lock: a second reader must be
	// admitted alongside it.
	assert.True(t, s.TryRLock())
	s.RUnlock()
	s.RUnlock()
}

func TestSimpleLockBlocksUntilReleased(t *testing.T) {
	s := NewSimple()
	s.Lock()

	acquired := make(chan struct{})
	go func() {
		s.Lock()
		close(acquired)
		s.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired while the first still held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	s.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired after the first unlocked")
	}
}
