package core

import (
	"cmp"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/tiktokbpe/internal/ranks"
)

// mergeCand is a candidate merge of the node at pos with its right
// neighbour. verL and verR snapshot both nodes' versions at push time; a
// candidate whose versions no longer match is stale.
type mergeCand struct {
	rank int // lower wins
	pos  int // left node; lower wins on tie to enforce leftmost
	verL int
	verR int
}

func compareCand(a, b any) int {
	ca, cb := a.(mergeCand), b.(mergeCand)
	if c := cmp.Compare(ca.rank, cb.rank); c != 0 {
		return c
	}
	return cmp.Compare(ca.pos, cb.pos)
}

// bytePairMergeLarge produces the same tokens as bytePairMergeScan in
// O(n log n). Nodes form a doubly linked list indexed by their first byte;
// a merge always collapses the right node into the left one.
func bytePairMergeLarge(piece []byte, table ranks.Table) []int {
	n := len(piece)
	if n == 0 {
		return nil
	}

	prev := make([]int, n)
	next := make([]int, n)
	for i := 0; i < n; i++ {
		prev[i] = i - 1
		next[i] = i + 1
	}
	next[n-1] = -1

	// per-node versioning to invalidate heap entries
	liveVersion := make([]int, n)

	end := func(i int) int {
		if next[i] == -1 {
			return n
		}
		return next[i]
	}

	h := binaryheap.NewWith(compareCand)

	pushIfMergeable := func(i int) {
		if i == -1 {
			return
		}
		j := next[i]
		if j == -1 {
			return
		}

		if rank, ok := table[string(piece[i:end(j)])]; ok {
			h.Push(mergeCand{
				rank: rank,
				pos:  i,
				verL: liveVersion[i],
				verR: liveVersion[j],
			})
		}
	}

	for i := 0; i != -1; i = next[i] {
		pushIfMergeable(i)
	}

	for {
		v, ok := h.Pop()
		if !ok {
			break
		}
		c := v.(mergeCand)

		i := c.pos
		j := next[i]
		if j == -1 {
			continue
		}

		// stale entry since at least one side changed after the push
		if liveVersion[i] != c.verL || liveVersion[j] != c.verR {
			continue
		}

		nj := next[j]
		next[i] = nj
		if nj != -1 {
			prev[nj] = i
		}

		// j is dead
		prev[j], next[j] = -1, -1

		liveVersion[i]++
		liveVersion[j]++

		pushIfMergeable(prev[i])
		pushIfMergeable(i)
	}

	out := make([]int, 0, n)
	for i := 0; i != -1; i = next[i] {
		out = append(out, table[string(piece[i:end(i)])])
	}
	return out
}
