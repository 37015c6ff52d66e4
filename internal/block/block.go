// Package block implements the screenplay block model: a typed, styled
// sequence of content items that forms one element of a Document.
package block

import "fmt"

// Type is the closed set of screenplay element kinds a Block can carry.
type Type uint8

const (
	Action Type = iota
	SceneHeading
	Character
	Dialogue
	Parenthetical
	Transition
	Centered
	Separator
	Note
	DualDialogue
)

func (t Type) String() string {
	switch t {
	case Action:
		return "Action"
	case SceneHeading:
		return "SceneHeading"
	case Character:
		return "Character"
	case Dialogue:
		return "Dialogue"
	case Parenthetical:
		return "Parenthetical"
	case Transition:
		return "Transition"
	case Centered:
		return "Centered"
	case Separator:
		return "Separator"
	case Note:
		return "Note"
	case DualDialogue:
		return "DualDialogue"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ValidType reports whether t is one of the closed set of block types.
func ValidType(t Type) bool {
	return t <= DualDialogue
}

// StyleKind enumerates the toggleable style markers an item can carry.
type StyleKind uint8

const (
	Italics StyleKind = iota
	Bold
	Underline
	LineBreak
)

// ItemKind discriminates a content item between a text run and a style
// marker. This is the tagged union the source's heterogeneous item list
// was re-architected into (see design notes on dynamic-typing leakage).
type ItemKind uint8

const (
	ItemText ItemKind = iota
	ItemStyle
)

// Item is one element of a Block's contents: either a UTF-8 text run or a
// style toggle marker.
type Item struct {
	Kind  ItemKind
	Text  string    // valid when Kind == ItemText
	Style StyleKind // valid when Kind == ItemStyle
}

// TextItem constructs a text-run item.
func TextItem(s string) Item { return Item{Kind: ItemText, Text: s} }

// StyleItem constructs a style-marker item.
func StyleItem(s StyleKind) Item { return Item{Kind: ItemStyle, Style: s} }

func (i Item) isText() bool { return i.Kind == ItemText }

// length returns how many positions this item occupies: rune count for
// text, exactly one for a style marker.
func (i Item) length() int {
	if i.Kind == ItemText {
		return len([]rune(i.Text))
	}
	return 1
}

// Block is a typed, styled unit of screenplay content.
type Block struct {
	BlockType         Type
	Contents          []Item
	contentsModified  bool // transient: renderers use this to invalidate cached layout
}

// New creates an empty block of the given type.
func New(t Type) *Block {
	return &Block{BlockType: t, Contents: nil}
}

// NewWithContents creates a block with the given (already normalized)
// contents.
func NewWithContents(t Type, contents []Item) *Block {
	return &Block{BlockType: t, Contents: contents}
}

// ContentsModified reports the transient cache-invalidation flag.
func (b *Block) ContentsModified() bool { return b.contentsModified }

// MarkModified sets the transient cache-invalidation flag.
func (b *Block) MarkModified() { b.contentsModified = true }

// ClearModified resets the transient cache-invalidation flag. Called at the
// start of every patch application pass (§4.2 apply_on_blocks).
func (b *Block) ClearModified() { b.contentsModified = false }

// Length is the sum of text-run rune counts plus one per style marker.
func (b *Block) Length() int {
	n := 0
	for _, it := range b.Contents {
		n += it.length()
	}
	return n
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	contents := make([]Item, len(b.Contents))
	copy(contents, b.Contents)
	return &Block{BlockType: b.BlockType, Contents: contents, contentsModified: b.contentsModified}
}

// itemOffsets returns, for each item index, the position at which that item
// starts. len(offsets) == len(Contents)+1, with the last entry equal to
// Length().
func (b *Block) itemOffsets() []int {
	offsets := make([]int, len(b.Contents)+1)
	pos := 0
	for i, it := range b.Contents {
		offsets[i] = pos
		pos += it.length()
	}
	offsets[len(b.Contents)] = pos
	return offsets
}

// locate finds the item index and in-item offset corresponding to block
// position pos. pos == Length() maps to the end of the last item; a pos past
// Length(), or any pos in an empty block, yields (len(Contents), 0).
func (b *Block) locate(pos int) (itemIndex int, innerOffset int) {
	offsets := b.itemOffsets()
	for i := range b.Contents {
		if pos < offsets[i+1] || (pos == offsets[i+1] && i == len(b.Contents)-1) {
			return i, pos - offsets[i]
		}
	}
	return len(b.Contents), 0
}

// splitTextAt splits a text item's rune slice at the given rune offset.
func splitTextAt(s string, offset int) (string, string) {
	r := []rune(s)
	if offset < 0 {
		offset = 0
	}
	if offset > len(r) {
		offset = len(r)
	}
	return string(r[:offset]), string(r[offset:])
}

// ApplyAdd splices items into contents at intra-block position start. If
// start equals Length(), the items are appended.
func (b *Block) ApplyAdd(start int, items []Item) {
	length := b.Length()
	if start < 0 {
		start = 0
	}
	if start > length {
		start = length
	}

	if start == length {
		b.Contents = append(b.Contents, items...)
		b.Normalize()
		return
	}

	offsets := b.itemOffsets()
	idx := 0
	for idx < len(b.Contents) && offsets[idx+1] <= start {
		idx++
	}

	inner := start - offsets[idx]
	if inner == 0 {
		out := make([]Item, 0, len(b.Contents)+len(items))
		out = append(out, b.Contents[:idx]...)
		out = append(out, items...)
		out = append(out, b.Contents[idx:]...)
		b.Contents = out
	} else {
		// inner > 0 only possible when Contents[idx] is a text run (style
		// markers have length 1, so inner can only be 0 or 1 there; 1 means
		// insertion happens after the marker, i.e. at idx+1 with inner 0).
		if !b.Contents[idx].isText() {
			out := make([]Item, 0, len(b.Contents)+len(items))
			out = append(out, b.Contents[:idx+1]...)
			out = append(out, items...)
			out = append(out, b.Contents[idx+1:]...)
			b.Contents = out
		} else {
			left, right := splitTextAt(b.Contents[idx].Text, inner)
			out := make([]Item, 0, len(b.Contents)+len(items)+1)
			out = append(out, b.Contents[:idx]...)
			if left != "" {
				out = append(out, TextItem(left))
			}
			out = append(out, items...)
			if right != "" {
				out = append(out, TextItem(right))
			}
			out = append(out, b.Contents[idx+1:]...)
			b.Contents = out
		}
	}

	b.Normalize()
}

// ApplyRemove excises length positions starting at start. Tolerates
// truncation if the block is shorter than start+length under concurrent
// edits (per §4.1).
func (b *Block) ApplyRemove(start, length int) {
	if length <= 0 {
		return
	}
	blockLen := b.Length()
	if start < 0 {
		start = 0
	}
	if start >= blockLen {
		return
	}
	end := start + length
	if end > blockLen {
		end = blockLen
	}

	var out []Item
	pos := 0
	for _, it := range b.Contents {
		itLen := it.length()
		itStart, itEnd := pos, pos+itLen
		pos = itEnd

		// Entirely before the removed range, or entirely after: keep as is.
		if itEnd <= start || itStart >= end {
			out = append(out, it)
			continue
		}

		if !it.isText() {
			// Style marker fully inside [start,end): dropped.
			continue
		}

		// Text item: keep the prefix before start and the suffix after end.
		runes := []rune(it.Text)
		keepPrefixEnd := start - itStart
		if keepPrefixEnd < 0 {
			keepPrefixEnd = 0
		}
		if keepPrefixEnd > len(runes) {
			keepPrefixEnd = len(runes)
		}
		keepSuffixStart := end - itStart
		if keepSuffixStart < 0 {
			keepSuffixStart = 0
		}
		if keepSuffixStart > len(runes) {
			keepSuffixStart = len(runes)
		}

		if keepPrefixEnd > 0 {
			out = append(out, TextItem(string(runes[:keepPrefixEnd])))
		}
		if keepSuffixStart < len(runes) {
			out = append(out, TextItem(string(runes[keepSuffixStart:])))
		}
	}

	b.Contents = out
	b.Normalize()
}

// Normalize fuses adjacent text runs and drops empty text runs. ApplyAdd and
// ApplyRemove call it after each mutation, and a patch application pass
// calls it again on every block at its end (§4.1).
func (b *Block) Normalize() {
	out := make([]Item, 0, len(b.Contents))
	for _, it := range b.Contents {
		if it.isText() && it.Text == "" {
			continue
		}
		if it.isText() && len(out) > 0 && out[len(out)-1].isText() {
			out[len(out)-1].Text += it.Text
			continue
		}
		out = append(out, it)
	}
	b.Contents = out
}

// ExcludeStyles splits [start, end) into sub-ranges that contain only text
// (no style markers), used by the editor to turn a visual selection into a
// list of deletable text ranges.
func (b *Block) ExcludeStyles(start, end int) [][2]int {
	if end < start {
		start, end = end, start
	}
	var ranges [][2]int
	pos := 0
	rangeStart := -1
	flush := func(stop int) {
		if rangeStart >= 0 && stop > rangeStart {
			ranges = append(ranges, [2]int{rangeStart, stop})
		}
		rangeStart = -1
	}

	for _, it := range b.Contents {
		itStart, itEnd := pos, pos+it.length()
		pos = itEnd

		overlapStart := max(itStart, start)
		overlapEnd := min(itEnd, end)
		if overlapStart >= overlapEnd {
			continue
		}

		if it.isText() {
			if rangeStart < 0 {
				rangeStart = overlapStart
			}
		} else {
			flush(overlapStart)
		}
	}
	flush(end)
	return ranges
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
