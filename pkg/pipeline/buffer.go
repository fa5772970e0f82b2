package pipeline

import (
	"github.com/l7mp/windowfields/pkg/object"
)

// entry is a buffered document together with the evaluated arguments of the outputs.
type entry struct {
	doc  object.Document
	args []any
}

// partitionBuffer holds the documents of the current partition that some frame can still reach.
// Entries are addressed by their position in the partition; the positions below base have been
// released.
type partitionBuffer struct {
	entries []entry
	base    int
}

// Len returns the number of documents of the partition seen so far.
func (b *partitionBuffer) Len() int { return b.base + len(b.entries) }

// Buffered returns the number of documents held in memory.
func (b *partitionBuffer) Buffered() int { return len(b.entries) }

func (b *partitionBuffer) push(e entry) { b.entries = append(b.entries, e) }

// at returns the entry at position pos. The position must not have been released.
func (b *partitionBuffer) at(pos int) *entry { return &b.entries[pos-b.base] }

// arg returns the i-th output argument of the document at position pos.
func (b *partitionBuffer) arg(pos, i int) any { return b.entries[pos-b.base].args[i] }

// release drops the entries below position pos.
func (b *partitionBuffer) release(pos int) {
	k := pos - b.base
	if k <= 0 {
		return
	}
	if k > len(b.entries) {
		k = len(b.entries)
	}
	n := copy(b.entries, b.entries[k:])
	clear(b.entries[n:])
	b.entries = b.entries[:n]
	b.base += k
}

func (b *partitionBuffer) reset() {
	clear(b.entries)
	b.entries = b.entries[:0]
	b.base = 0
}
