// Package patch implements the change primitives and Patch container that
// reconcile concurrent edits to a Document (see spec §4.2, the hardest
// subsystem: the transform matrix that makes two independently-produced
// patches convergent when each is rebased against the other).
package patch

import (
	"github.com/fountainhead/scriptsync/internal/block"
)

// Blocks is the mutable block sequence a Change is applied against.
type Blocks = []*block.Block

// Change is one of the five edit primitives. Every Change targets a block
// by index (TargetIndex); for AddBlock/RemoveBlock the index addresses the
// block list itself, for AddData/RemoveData/ChangeType it addresses the
// block whose contents are mutated (the spec's "block_id", numerically the
// same index space).
type Change interface {
	// Apply mutates blocks in place. An out-of-range target is a silent
	// no-op (spec §7: patch application never raises to the caller).
	Apply(blocks *Blocks)

	// MapPoint adjusts a document position (b, p) as if this change had
	// already been applied before the position was measured.
	MapPoint(b, p int) (int, int)

	// Map transforms other so that it is equivalent to replaying other
	// after this change has already been applied. The result may be empty,
	// one change, or (for a straddling RemoveData) two changes.
	Map(other Change) ([]Change, error)

	// DeleteWithBlock reports whether this change's target is implicitly
	// destroyed when its target block is removed by a RemoveBlock at the
	// same index (true for the three intra-block change kinds).
	DeleteWithBlock() bool

	// TargetIndex is the block-list index or block_id this change targets.
	TargetIndex() int

	// WithIndex returns a copy of this change retargeted at a new index,
	// used by AddBlock/RemoveBlock's transform rule to shift every other
	// change's target uniformly regardless of its concrete kind.
	WithIndex(i int) Change

	// Copy returns a deep copy of this change.
	Copy() Change

	// EncodeTo appends this change's wire encoding (spec §6 Change.bytes,
	// starting with the u8 type_tag) to buf.
	EncodeTo(buf []byte) ([]byte, error)
}

// Wire type tags, per spec §6.
const (
	TagAddBlock    = 1
	TagRemoveBlock = 2
	TagAddText     = 3
	TagRemoveText  = 4
	TagChangedType = 5
)

// AddBlockChange inserts Blk at Index. DELETE_WITH_BLOCK = false.
type AddBlockChange struct {
	Index int
	Blk   *block.Block
}

func (c *AddBlockChange) Apply(blocks *Blocks) {
	bs := *blocks
	if c.Index < 0 || c.Index > len(bs) {
		return
	}
	nb := c.Blk.Clone()
	nb.Normalize()
	out := make(Blocks, 0, len(bs)+1)
	out = append(out, bs[:c.Index]...)
	out = append(out, nb)
	out = append(out, bs[c.Index:]...)
	*blocks = out
}

func (c *AddBlockChange) MapPoint(b, p int) (int, int) {
	if b >= c.Index {
		return b + 1, p
	}
	return b, p
}

func (c *AddBlockChange) Map(other Change) ([]Change, error) {
	j := other.TargetIndex()
	if j >= c.Index {
		return []Change{other.WithIndex(j + 1)}, nil
	}
	return []Change{other.Copy()}, nil
}

func (c *AddBlockChange) DeleteWithBlock() bool { return false }
func (c *AddBlockChange) TargetIndex() int      { return c.Index }
func (c *AddBlockChange) WithIndex(i int) Change {
	return &AddBlockChange{Index: i, Blk: c.Blk.Clone()}
}
func (c *AddBlockChange) Copy() Change { return c.WithIndex(c.Index) }

// RemoveBlockChange removes the block at Index. DELETE_WITH_BLOCK = false.
type RemoveBlockChange struct {
	Index int
}

func (c *RemoveBlockChange) Apply(blocks *Blocks) {
	bs := *blocks
	if c.Index < 0 || c.Index >= len(bs) {
		return
	}
	out := make(Blocks, 0, len(bs)-1)
	out = append(out, bs[:c.Index]...)
	out = append(out, bs[c.Index+1:]...)
	*blocks = out
}

func (c *RemoveBlockChange) MapPoint(b, p int) (int, int) {
	switch {
	case b == c.Index:
		return c.Index, 0
	case b > c.Index:
		return b - 1, p
	default:
		return b, p
	}
}

func (c *RemoveBlockChange) Map(other Change) ([]Change, error) {
	j := other.TargetIndex()
	switch {
	case j == c.Index:
		if other.DeleteWithBlock() {
			return nil, nil
		}
		return []Change{other.Copy()}, nil
	case j > c.Index:
		return []Change{other.WithIndex(j - 1)}, nil
	default:
		return []Change{other.Copy()}, nil
	}
}

func (c *RemoveBlockChange) DeleteWithBlock() bool  { return false }
func (c *RemoveBlockChange) TargetIndex() int       { return c.Index }
func (c *RemoveBlockChange) WithIndex(i int) Change { return &RemoveBlockChange{Index: i} }
func (c *RemoveBlockChange) Copy() Change           { return &RemoveBlockChange{Index: c.Index} }

// AddDataChange inserts Items at intra-block position Start within the
// block addressed by BlockID. DELETE_WITH_BLOCK = true.
type AddDataChange struct {
	BlockID int
	Start   int
	Items   []block.Item
}

func (c *AddDataChange) Apply(blocks *Blocks) {
	bs := *blocks
	if c.BlockID < 0 || c.BlockID >= len(bs) {
		return
	}
	bs[c.BlockID].ApplyAdd(c.Start, block.CloneItems(c.Items))
	bs[c.BlockID].MarkModified()
}

func (c *AddDataChange) MapPoint(b, p int) (int, int) {
	if b != c.BlockID {
		return b, p
	}
	if p >= c.Start {
		return b, p + itemsLength(c.Items)
	}
	return b, p
}

func (c *AddDataChange) Map(other Change) ([]Change, error) {
	s := c.Start
	d := itemsLength(c.Items)

	switch o := other.(type) {
	case *AddDataChange:
		if o.BlockID != c.BlockID {
			return []Change{o.Copy()}, nil
		}
		os := o.Start
		// oe == os for a point insertion. Tie-break os == s toward the
		// shift branch (not identity) per the worked concurrent-insertion
		// example: both inserts at the same start converge by ordering the
		// base's insertion first and shifting the other by |d|.
		if os >= s {
			return []Change{&AddDataChange{BlockID: o.BlockID, Start: os + d, Items: block.CloneItems(o.Items)}}, nil
		}
		return []Change{o.Copy()}, nil

	case *RemoveDataChange:
		if o.BlockID != c.BlockID {
			return []Change{o.Copy()}, nil
		}
		os, oe := o.Start, o.Start+o.Length
		switch {
		case os >= s:
			return []Change{&RemoveDataChange{BlockID: o.BlockID, Start: os + d, Length: o.Length}}, nil
		case oe <= s:
			return []Change{o.Copy()}, nil
		default:
			// Straddling s: split into the portion before the insertion
			// point and the portion after, shifting the latter by |d|.
			// The parts are applied in order, so the later range goes
			// first: removing it leaves the earlier range's positions
			// unchanged.
			left := &RemoveDataChange{BlockID: o.BlockID, Start: os, Length: s - os}
			right := &RemoveDataChange{BlockID: o.BlockID, Start: s + d, Length: oe - s}
			return []Change{right, left}, nil
		}

	default:
		return []Change{other.Copy()}, nil
	}
}

func (c *AddDataChange) DeleteWithBlock() bool { return true }
func (c *AddDataChange) TargetIndex() int      { return c.BlockID }
func (c *AddDataChange) WithIndex(i int) Change {
	return &AddDataChange{BlockID: i, Start: c.Start, Items: block.CloneItems(c.Items)}
}
func (c *AddDataChange) Copy() Change { return c.WithIndex(c.BlockID) }

// RemoveDataChange removes Length items starting at Start within the block
// addressed by BlockID. DELETE_WITH_BLOCK = true.
type RemoveDataChange struct {
	BlockID int
	Start   int
	Length  int
}

func (c *RemoveDataChange) Apply(blocks *Blocks) {
	bs := *blocks
	if c.BlockID < 0 || c.BlockID >= len(bs) {
		return
	}
	bs[c.BlockID].ApplyRemove(c.Start, c.Length)
	bs[c.BlockID].MarkModified()
}

func (c *RemoveDataChange) MapPoint(b, p int) (int, int) {
	if b != c.BlockID {
		return b, p
	}
	e := c.Start + c.Length
	switch {
	case p >= e:
		return b, p - c.Length
	case p >= c.Start:
		return b, c.Start
	default:
		return b, p
	}
}

func (c *RemoveDataChange) Map(other Change) ([]Change, error) {
	b := c.BlockID
	s, L := c.Start, c.Length
	e := s + L

	switch o := other.(type) {
	case *AddDataChange:
		if o.BlockID != b {
			return []Change{o.Copy()}, nil
		}
		os := o.Start
		ns := os
		if os >= e {
			ns = os - L
		} else if s <= os && os < e {
			ns = s
		}
		return []Change{&AddDataChange{BlockID: o.BlockID, Start: ns, Items: block.CloneItems(o.Items)}}, nil

	case *RemoveDataChange:
		if o.BlockID != b {
			return []Change{o.Copy()}, nil
		}
		os, ol := o.Start, o.Length
		oe := os + ol

		// Subtract however much of other's range falls inside self's
		// removed range [s,e), regardless of whether os/oe individually
		// land inside it (other may straddle on one side, the other, or
		// strictly contain [s,e) with slack on both sides).
		overlapStart, overlapEnd := os, oe
		if s > overlapStart {
			overlapStart = s
		}
		if e < overlapEnd {
			overlapEnd = e
		}
		intersection := overlapEnd - overlapStart
		if intersection < 0 {
			intersection = 0
		}
		nl := ol - intersection

		ns := os
		switch {
		case os >= e:
			ns = os - L
		case os >= s:
			ns = s
		}

		if nl <= 0 {
			return nil, nil
		}
		return []Change{&RemoveDataChange{BlockID: o.BlockID, Start: ns, Length: nl}}, nil

	default:
		return []Change{other.Copy()}, nil
	}
}

func (c *RemoveDataChange) DeleteWithBlock() bool { return true }
func (c *RemoveDataChange) TargetIndex() int      { return c.BlockID }
func (c *RemoveDataChange) WithIndex(i int) Change {
	return &RemoveDataChange{BlockID: i, Start: c.Start, Length: c.Length}
}
func (c *RemoveDataChange) Copy() Change { return c.WithIndex(c.BlockID) }

// ChangeTypeChange mutates the type of the block addressed by BlockID.
// DELETE_WITH_BLOCK = true. A type change never shifts positions or
// indices, so it maps every other change kind to identity. AddData and
// RemoveData leave it untouched; AddBlock and RemoveBlock retarget its
// index, and a RemoveBlock of its own block drops it.
type ChangeTypeChange struct {
	BlockID int
	NewType block.Type
}

func (c *ChangeTypeChange) Apply(blocks *Blocks) {
	bs := *blocks
	if c.BlockID < 0 || c.BlockID >= len(bs) {
		return
	}
	bs[c.BlockID].BlockType = c.NewType
	bs[c.BlockID].MarkModified()
}

func (c *ChangeTypeChange) MapPoint(b, p int) (int, int) { return b, p }

func (c *ChangeTypeChange) Map(other Change) ([]Change, error) {
	return []Change{other.Copy()}, nil
}

func (c *ChangeTypeChange) DeleteWithBlock() bool { return true }
func (c *ChangeTypeChange) TargetIndex() int      { return c.BlockID }
func (c *ChangeTypeChange) WithIndex(i int) Change {
	return &ChangeTypeChange{BlockID: i, NewType: c.NewType}
}
func (c *ChangeTypeChange) Copy() Change { return c.WithIndex(c.BlockID) }

func itemsLength(items []block.Item) int {
	n := 0
	for _, it := range items {
		if it.Kind == block.ItemText {
			n += len([]rune(it.Text))
		} else {
			n++
		}
	}
	return n
}
