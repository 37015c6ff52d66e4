package block

import "testing"

func TestApplyAddAppend(t *testing.T) {
	b := NewWithContents(Action, []Item{TextItem("Hello")})
	b.ApplyAdd(5, []Item{TextItem(" World")})
	if got := contentsString(b); got != "Hello World" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyAddMidRun(t *testing.T) {
	b := NewWithContents(Action, []Item{TextItem("AB")})
	b.ApplyAdd(1, []Item{TextItem("X")})
	if got := contentsString(b); got != "AXB" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyRemoveTruncates(t *testing.T) {
	b := NewWithContents(Action, []Item{TextItem("ABCDE")})
	b.ApplyRemove(1, 3)
	if got := contentsString(b); got != "AE" {
		t.Fatalf("got %q", got)
	}

	// Tolerates a too-long remove without panicking.
	b.ApplyRemove(0, 100)
	if got := contentsString(b); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeCoalescesAndDropsEmpty(t *testing.T) {
	b := NewWithContents(Action, []Item{TextItem("A"), TextItem(""), TextItem("B")})
	b.Normalize()
	if len(b.Contents) != 1 || b.Contents[0].Text != "AB" {
		t.Fatalf("got %+v", b.Contents)
	}
}

func TestLengthCountsStyleMarkersAsOne(t *testing.T) {
	b := NewWithContents(Action, []Item{TextItem("AB"), StyleItem(Bold), TextItem("C")})
	if got := b.Length(); got != 4 {
		t.Fatalf("got length %d", got)
	}
}

func TestExcludeStyles(t *testing.T) {
	b := NewWithContents(Action, []Item{TextItem("AB"), StyleItem(Bold), TextItem("CD")})
	// Positions: A=0 B=1 [bold@2] C=3 D=4, length=5
	ranges := b.ExcludeStyles(0, 5)
	if len(ranges) != 2 || ranges[0] != [2]int{0, 2} || ranges[1] != [2]int{3, 5} {
		t.Fatalf("got %v", ranges)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	b := NewWithContents(Dialogue, []Item{
		TextItem("Hello"),
		StyleItem(Italics),
		TextItem("World"),
		StyleItem(LineBreak),
	})
	enc, err := b.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, n, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d of %d bytes", n, len(enc))
	}
	if dec.BlockType != b.BlockType || len(dec.Contents) != len(b.Contents) {
		t.Fatalf("got %+v", dec)
	}
	for i := range b.Contents {
		if dec.Contents[i] != b.Contents[i] {
			t.Fatalf("item %d: got %+v want %+v", i, dec.Contents[i], b.Contents[i])
		}
	}
}

func contentsString(b *Block) string {
	s := ""
	for _, it := range b.Contents {
		if it.isText() {
			s += it.Text
		}
	}
	return s
}
