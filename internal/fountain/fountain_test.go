package fountain

import (
	"testing"

	"github.com/fountainhead/scriptsync/internal/block"
)

func TestWriteReadRoundTripsBlockTypes(t *testing.T) {
	original := []*block.Block{
		block.NewWithContents(block.SceneHeading, []block.Item{block.TextItem("INT. KITCHEN - DAY")}),
		block.NewWithContents(block.Action, []block.Item{block.TextItem("She stares at the kettle.")}),
		block.NewWithContents(block.Character, []block.Item{block.TextItem("MARA")}),
		block.NewWithContents(block.Parenthetical, []block.Item{block.TextItem("quietly")}),
		block.NewWithContents(block.Dialogue, []block.Item{block.TextItem("It's never going to boil.")}),
		block.NewWithContents(block.Transition, []block.Item{block.TextItem("CUT TO:")}),
	}

	data, err := Write(original)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Read(data)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(original) {
		t.Fatalf("got %d blocks, want %d:\n%s", len(got), len(original), data)
	}
	for i, b := range got {
		if b.BlockType != original[i].BlockType {
			t.Fatalf("block %d: got type %v want %v", i, b.BlockType, original[i].BlockType)
		}
	}
}

func TestReadIgnoresBlankLines(t *testing.T) {
	got, err := Read([]byte("INT. ROOM - DAY\n\n\nShe sits.\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d blocks", len(got))
	}
}
