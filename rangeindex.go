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

// RangeEntry is a node owned by whichever active fine-grained holder
// inserted it: the Lock borrows it only for the membership interval between
// insert and remove. start/end describe the held half-open interval
// [start, end). seq breaks ties between entries sharing the same start so
// that every node has a unique sort key, which is what lets remove locate
// an entry by pointer identity even after rotations have moved nodes
// around -- without a unique key, two entries with the same start could
// become structurally indistinguishable mid-tree.
type RangeEntry struct {
	start, end    uint64
	seq           uint64
	left, right   *RangeEntry
	height        int
	subtreeMaxEnd uint64
}

// Start and End report the half-open interval this entry holds.
func (e *RangeEntry) Start() uint64 { return e.start }
func (e *RangeEntry) End() uint64   { return e.end }

// rangeIndex is an augmented, self-balancing (AVL) binary search tree keyed
// by (start, seq), with each node additionally storing the maximum end
// across its subtree. It supports the three operations spec.md §4.1 names:
// insert, remove by identity, and an O(log N) existential overlap query.
type rangeIndex struct {
	root    *RangeEntry
	nextSeq uint64
}

func rangeLess(a, b *RangeEntry) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	return a.seq < b.seq
}

// insert adds entry to the index. Precondition: entry.start < entry.end.
// Duplicate/overlapping ranges are permitted; no uniqueness check is made
// beyond the synthetic tie-break key.
func (idx *rangeIndex) insert(e *RangeEntry) {
	if e.start >= e.end {
		panic("mmlock: RangeEntry precondition violated: start must be < end")
	}
	idx.nextSeq++
	e.seq = idx.nextSeq
	e.left, e.right = nil, nil
	idx.root = avlInsert(idx.root, e)
}

// remove deletes the specific entry by pointer identity.
func (idx *rangeIndex) remove(e *RangeEntry) {
	idx.root = avlRemove(idx.root, e)
}

// intersects reports whether any stored interval r satisfies
// r.start < end && start < r.end.
func (idx *rangeIndex) intersects(start, end uint64) bool {
	n := idx.root
	for n != nil {
		if n.subtreeMaxEnd <= start {
			return false
		}
		if n.start >= end {
			n = n.left
			continue
		}
		if start < n.end {
			return true
		}
		if n.left != nil && start < n.left.subtreeMaxEnd {
			return true
		}
		n = n.right
	}
	return false
}

func (idx *rangeIndex) empty() bool {
	return idx.root == nil
}

func avlHeight(n *RangeEntry) int {
	if n == nil {
		return 0
	}
	return n.height
}

func avlMaxEnd(n *RangeEntry) uint64 {
	if n == nil {
		return 0
	}
	return n.subtreeMaxEnd
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// updateNode recomputes n's height and subtree-max-end from its children.
// Must be called bottom-up after any structural change under n.
func updateNode(n *RangeEntry) {
	n.height = 1 + maxInt(avlHeight(n.left), avlHeight(n.right))
	n.subtreeMaxEnd = maxUint64(n.end, maxUint64(avlMaxEnd(n.left), avlMaxEnd(n.right)))
}

func rotateLeft(n *RangeEntry) *RangeEntry {
	r := n.right
	n.right = r.left
	r.left = n
	updateNode(n)
	updateNode(r)
	return r
}

func rotateRight(n *RangeEntry) *RangeEntry {
	l := n.left
	n.left = l.right
	l.right = n
	updateNode(n)
	updateNode(l)
	return l
}

// rebalance restores the AVL height invariant at n, which must already have
// balanced (or off-by-one) children, and brings its augmentation up to date.
func rebalance(n *RangeEntry) *RangeEntry {
	if n == nil {
		return nil
	}
	updateNode(n)
	balance := avlHeight(n.left) - avlHeight(n.right)
	if balance > 1 {
		if avlHeight(n.left.left) < avlHeight(n.left.right) {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	}
	if balance < -1 {
		if avlHeight(n.right.right) < avlHeight(n.right.left) {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

func avlInsert(n, e *RangeEntry) *RangeEntry {
	if n == nil {
		e.height = 1
		e.subtreeMaxEnd = e.end
		return e
	}
	if rangeLess(e, n) {
		n.left = avlInsert(n.left, e)
	} else {
		n.right = avlInsert(n.right, e)
	}
	return rebalance(n)
}

func avlMin(n *RangeEntry) *RangeEntry {
	for n.left != nil {
		n = n.left
	}
	return n
}

// avlRemove deletes e by identity (e's key is unique by construction, so
// the equal-key branch below is guaranteed to be e itself). On a two-child
// node, the in-order successor is spliced into e's position rather than
// having its data copied over e, so that e itself (the caller's handle)
// ends up fully detached from the tree rather than secretly still present
// under different contents.
func avlRemove(n, e *RangeEntry) *RangeEntry {
	if n == nil {
		return nil
	}
	switch {
	case rangeLess(e, n):
		n.left = avlRemove(n.left, e)
	case rangeLess(n, e):
		n.right = avlRemove(n.right, e)
	default:
		if n.left == nil {
			replacement := n.right
			n.right = nil
			return rebalance(replacement)
		}
		if n.right == nil {
			replacement := n.left
			n.left = nil
			return rebalance(replacement)
		}
		succ := avlMin(n.right)
		newRight := avlRemove(n.right, succ)
		succ.left = n.left
		succ.right = newRight
		n.left, n.right = nil, nil
		return rebalance(succ)
	}
	return rebalance(n)
}
