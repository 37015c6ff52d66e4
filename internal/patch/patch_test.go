package patch

import (
	"testing"

	"github.com/fountainhead/scriptsync/internal/block"
)

func textBlocks(s string) Blocks {
	return Blocks{block.NewWithContents(block.Action, []block.Item{block.TextItem(s)})}
}

func blockText(b *block.Block) string {
	s := ""
	for _, it := range b.Contents {
		if it.Kind == block.ItemText {
			s += it.Text
		}
	}
	return s
}

func docText(bs Blocks) string {
	s := ""
	for _, b := range bs {
		s += blockText(b)
	}
	return s
}

func addData(blockID, start int, s string) *AddDataChange {
	return &AddDataChange{BlockID: blockID, Start: start, Items: []block.Item{block.TextItem(s)}}
}

// S1: concurrent insertion at disjoint positions converges regardless of
// application order.
func TestS1DisjointInsertions(t *testing.T) {
	base := textBlocks("Hello")

	a := New()
	a.Add(1, addData(0, 0, "X"))
	b := New()
	b.Add(2, addData(0, 5, "Y"))

	got := ApplyCopy(ApplyCopy(base, a), rebaseT(t, b, a))
	want := "XHelloY"
	if docText(got) != want {
		t.Fatalf("got %q want %q", docText(got), want)
	}
}

// S2: concurrent insertion at the same start position; server applies A
// first, B rebases against A per the split/shift tie-break.
func TestS2SameStartInsertions(t *testing.T) {
	base := textBlocks("AB")

	a := New()
	a.Add(1, addData(0, 1, "X"))
	b := New()
	b.Add(2, addData(0, 1, "Y"))

	bRebased := rebaseT(t, b, a)
	got := ApplyCopy(ApplyCopy(base, a), bRebased)
	want := "AXYB"
	if docText(got) != want {
		t.Fatalf("got %q want %q", docText(got), want)
	}
}

// S3: insertion inside a remote deletion collapses to the deletion's start.
func TestS3InsertionInsideRemoteDeletion(t *testing.T) {
	base := textBlocks("ABCDE")

	a := New()
	a.Add(1, &RemoveDataChange{BlockID: 0, Start: 1, Length: 3})
	b := New()
	b.Add(2, addData(0, 3, "X"))

	bRebased := rebaseT(t, b, a)
	got := ApplyCopy(ApplyCopy(base, a), bRebased)
	want := "AXE"
	if docText(got) != want {
		t.Fatalf("got %q want %q", docText(got), want)
	}
}

func rebaseT(t *testing.T, p, base *Patch) *Patch {
	t.Helper()
	cp := p.Copy()
	if err := cp.RebaseTo(base.Copy()); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	return cp
}

// Property: for patches A and B produced against the same base document,
// apply(apply(D,A), B.rebase_to(A)) == apply(apply(D,B), A.rebase_to(B)).
func TestConvergenceProperty(t *testing.T) {
	cases := []struct {
		name string
		base Blocks
		a, b *Patch
	}{
		{
			name: "disjoint inserts",
			base: textBlocks("Hello"),
			a:    patchOf(1, addData(0, 0, "X")),
			b:    patchOf(2, addData(0, 5, "Y")),
		},
		{
			name: "same-start inserts",
			base: textBlocks("AB"),
			a:    patchOf(1, addData(0, 1, "X")),
			b:    patchOf(2, addData(0, 1, "Y")),
		},
		{
			name: "insert inside remote delete",
			base: textBlocks("ABCDE"),
			a:    patchOf(1, &RemoveDataChange{BlockID: 0, Start: 1, Length: 3}),
			b:    patchOf(2, addData(0, 3, "X")),
		},
		{
			name: "overlapping deletes",
			base: textBlocks("ABCDEFGH"),
			a:    patchOf(1, &RemoveDataChange{BlockID: 0, Start: 2, Length: 4}),
			b:    patchOf(2, &RemoveDataChange{BlockID: 0, Start: 4, Length: 4}),
		},
		{
			name: "nested delete with slack on both sides",
			base: textBlocks("0123456789"),
			a:    patchOf(1, &RemoveDataChange{BlockID: 0, Start: 3, Length: 2}),
			b:    patchOf(2, &RemoveDataChange{BlockID: 0, Start: 1, Length: 5}),
		},
		{
			name: "add block vs data edit",
			base: Blocks{block.NewWithContents(block.Action, []block.Item{block.TextItem("One")}), block.NewWithContents(block.Action, []block.Item{block.TextItem("Two")})},
			a:    patchOf(1, &AddBlockChange{Index: 1, Blk: block.NewWithContents(block.Action, []block.Item{block.TextItem("Mid")})}),
			b:    patchOf(2, addData(1, 3, "!")),
		},
		{
			name: "remove block vs data edit on same block",
			base: Blocks{block.NewWithContents(block.Action, []block.Item{block.TextItem("One")}), block.NewWithContents(block.Action, []block.Item{block.TextItem("Two")})},
			a:    patchOf(1, &RemoveBlockChange{Index: 1}),
			b:    patchOf(2, addData(1, 3, "!")),
		},
		{
			name: "change type vs data edit",
			base: textBlocks("Hello"),
			a:    patchOf(1, &ChangeTypeChange{BlockID: 0, NewType: block.Dialogue}),
			b:    patchOf(2, addData(0, 0, "X")),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bRebased := rebaseT(t, tc.b, tc.a)
			aRebased := rebaseT(t, tc.a, tc.b)

			left := ApplyCopy(ApplyCopy(tc.base, tc.a), bRebased)
			right := ApplyCopy(ApplyCopy(tc.base, tc.b), aRebased)

			if !blocksEqual(left, right) {
				t.Fatalf("divergent: left=%q right=%q", dumpBlocks(left), dumpBlocks(right))
			}
		})
	}
}

func patchOf(id uint32, c Change) *Patch {
	p := New()
	p.Add(id, c)
	return p
}

func blocksEqual(a, b Blocks) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].BlockType != b[i].BlockType || len(a[i].Contents) != len(b[i].Contents) {
			return false
		}
		for j := range a[i].Contents {
			if a[i].Contents[j] != b[i].Contents[j] {
				return false
			}
		}
	}
	return true
}

func dumpBlocks(bs Blocks) string {
	s := ""
	for _, b := range bs {
		s += "[" + b.BlockType.String() + ":" + blockText(b) + "]"
	}
	return s
}

func TestApplyNormalizesNoAdjacentOrEmptyTextRuns(t *testing.T) {
	base := textBlocks("Hello")
	p := New()
	p.Add(1, addData(0, 2, ""))
	p.Add(2, addData(0, 2, "XYZ"))

	out := ApplyCopy(base, p)
	for _, b := range out {
		for i := 1; i < len(b.Contents); i++ {
			if b.Contents[i].Kind == block.ItemText && b.Contents[i-1].Kind == block.ItemText {
				t.Fatalf("adjacent text runs survived normalization: %+v", b.Contents)
			}
			if b.Contents[i].Kind == block.ItemText && b.Contents[i].Text == "" {
				t.Fatalf("empty text run survived normalization: %+v", b.Contents)
			}
		}
	}
}

func TestMapPointFollowsInsertAndDelete(t *testing.T) {
	p := New()
	p.Add(1, addData(0, 2, "XYZ"))
	if b, pos := p.MapPoint(0, 5); b != 0 || pos != 8 {
		t.Fatalf("got (%d,%d) want (0,8)", b, pos)
	}
	if b, pos := p.MapPoint(0, 1); b != 0 || pos != 1 {
		t.Fatalf("got (%d,%d) want (0,1)", b, pos)
	}

	p2 := New()
	p2.Add(1, &RemoveDataChange{BlockID: 0, Start: 1, Length: 3})
	// A point inside the removed region maps to the removal's left edge.
	if b, pos := p2.MapPoint(0, 2); b != 0 || pos != 1 {
		t.Fatalf("got (%d,%d) want (0,1)", b, pos)
	}
	// A point after the removed region shifts left by the removed length.
	if b, pos := p2.MapPoint(0, 4); b != 0 || pos != 1 {
		t.Fatalf("got (%d,%d) want (0,1)", b, pos)
	}
}

func TestRemoveBlockDropsDependentDataChange(t *testing.T) {
	rb := &RemoveBlockChange{Index: 0}
	ad := addData(0, 0, "X")
	mapped, err := rb.Map(ad)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if len(mapped) != 0 {
		t.Fatalf("expected drop, got %v", mapped)
	}
}

func TestAddAdaptingTransformsAgainstPriorEntries(t *testing.T) {
	p := New()
	p.Add(1, addData(0, 0, "XX")) // shifts subsequent same-position adds
	if err := p.AddAdapting(2, addData(0, 0, "Y")); err != nil {
		t.Fatalf("add adapting: %v", err)
	}

	base := textBlocks("Hello")
	out := ApplyCopy(base, p)
	if got := docText(out); got != "XXYHello" {
		t.Fatalf("got %q", got)
	}
}

func TestChangeCodecRoundTrip(t *testing.T) {
	changes := []Change{
		&AddBlockChange{Index: 1, Blk: block.NewWithContents(block.SceneHeading, []block.Item{block.TextItem("INT. ROOM - DAY")})},
		&RemoveBlockChange{Index: 2},
		addData(0, 3, "hi"),
		&RemoveDataChange{BlockID: 0, Start: 1, Length: 4},
		&ChangeTypeChange{BlockID: 0, NewType: block.Character},
	}

	for _, c := range changes {
		enc, err := c.EncodeTo(nil)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		dec, n, err := DecodeChange(enc)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n != len(enc) {
			t.Fatalf("consumed %d of %d", n, len(enc))
		}
		reenc, err := dec.EncodeTo(nil)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if string(reenc) != string(enc) {
			t.Fatalf("round-trip mismatch for %T", c)
		}
	}
}

func TestPatchCodecRoundTrip(t *testing.T) {
	p := New()
	p.Add(1, addData(0, 0, "hi"))
	p.Add(2, &RemoveDataChange{BlockID: 0, Start: 0, Length: 1})

	enc, err := p.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, n, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d of %d", n, len(enc))
	}
	if len(dec.Entries) != len(p.Entries) {
		t.Fatalf("got %d entries want %d", len(dec.Entries), len(p.Entries))
	}
}
