package client

import (
	"testing"

	"github.com/fountainhead/scriptsync/internal/block"
	"github.com/fountainhead/scriptsync/internal/endpoint"
	"github.com/fountainhead/scriptsync/internal/patch"
)

type fakeSender struct {
	sent []endpoint.PatchUpload
}

func (f *fakeSender) Send(id endpoint.ID, payload any) error {
	if id == endpoint.SCRIPT_PATCH {
		f.sent = append(f.sent, payload.(endpoint.PatchUpload))
	}
	return nil
}

func seedSnapshot(text string) endpoint.SyncDoc {
	b := block.NewWithContents(block.Action, []block.Item{block.TextItem(text)})
	return endpoint.SyncDoc{FileID: "doc1", DocumentTimestamp: 0, Blocks: []*block.Block{b}}
}

func addData(blockID, start int, s string) *patch.AddDataChange {
	return &patch.AddDataChange{BlockID: blockID, Start: start, Items: []block.Item{block.TextItem(s)}}
}

func TestSendChangeAppliesLocallyAndUploads(t *testing.T) {
	snap := seedSnapshot("hello")
	sender := &fakeSender{}
	c := New(sender, snap)

	p := patch.New()
	p.Add(0, addData(0, 5, " world"))

	if err := c.SendChange(p); err != nil {
		t.Fatalf("send change: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(sender.sent))
	}
	upload := sender.sent[0]
	if upload.BranchID != 0 || upload.DocumentTimestamp != 0 {
		t.Fatalf("unexpected upload header: %+v", upload)
	}

	advanced := c.Blocks()
	if got := plainTextOf(advanced[0]); got != "hello world" {
		t.Fatalf("blocks_advanced = %q, want %q", got, "hello world")
	}
	confirmed := c.ConfirmedBlocks()
	if got := plainTextOf(confirmed[0]); got != "hello" {
		t.Fatalf("blocks should not change until ack, got %q", got)
	}
	if c.DocumentTimestamp() != 1 {
		t.Fatalf("document_timestamp = %d, want 1", c.DocumentTimestamp())
	}
}

func TestAckChangeConfirmsAndPopsPendingFIFO(t *testing.T) {
	snap := seedSnapshot("hello")
	sender := &fakeSender{}
	c := New(sender, snap)

	p1 := patch.New()
	p1.Add(0, addData(0, 5, " world"))
	c.SendChange(p1)

	p2 := patch.New()
	p2.Add(0, addData(0, 11, "!"))
	c.SendChange(p2)

	if len(c.advancePatch.Entries) != 2 {
		t.Fatalf("expected 2 pending entries, got %d", len(c.advancePatch.Entries))
	}

	// Server acks the first upload; its entries came back stamped with
	// change_id 0.
	ack1 := p1.Copy()
	ack1.StampChangeIDs(0)
	c.AckChange(endpoint.PatchAck{FileID: "doc1", Patch: ack1})

	if len(c.advancePatch.Entries) != 1 {
		t.Fatalf("expected 1 pending entry remaining, got %d", len(c.advancePatch.Entries))
	}
	confirmed := c.ConfirmedBlocks()
	if got := plainTextOf(confirmed[0]); got != "hello world" {
		t.Fatalf("confirmed blocks = %q, want %q", got, "hello world")
	}

	ack2 := p2.Copy()
	ack2.StampChangeIDs(1)
	c.AckChange(endpoint.PatchAck{FileID: "doc1", Patch: ack2})
	if len(c.advancePatch.Entries) != 0 {
		t.Fatalf("expected pending queue empty, got %d entries", len(c.advancePatch.Entries))
	}
	confirmed = c.ConfirmedBlocks()
	if got := plainTextOf(confirmed[0]); got != "hello world!" {
		t.Fatalf("confirmed blocks = %q, want %q", got, "hello world!")
	}
}

func TestGotChangeAheadOfPendingJustFolds(t *testing.T) {
	snap := seedSnapshot("hello")
	sender := &fakeSender{}
	c := New(sender, snap)

	p := patch.New()
	p.Add(0, addData(0, 5, " world"))
	c.SendChange(p) // documentTimestamp 0 -> 1

	remote := patch.New()
	remote.Add(1, addData(0, 0, ">> "))
	if err := c.GotChange(endpoint.PatchBroadcast{FileID: "doc1", DocumentTimestamp: 1, Patch: remote}); err != nil {
		t.Fatalf("got change: %v", err)
	}

	if c.BranchID() != 0 {
		t.Fatalf("branch should not advance for a change that isn't behind pending work, got %d", c.BranchID())
	}
	advanced := c.Blocks()
	if got := plainTextOf(advanced[0]); got != ">> hello world" {
		t.Fatalf("blocks_advanced = %q, want %q", got, ">> hello world")
	}
}

func TestGotChangeBehindPendingRebasesAndAdvancesBranch(t *testing.T) {
	snap := seedSnapshot("hello")
	sender := &fakeSender{}
	c := New(sender, snap)

	p := patch.New()
	p.Add(0, addData(0, 5, " world"))
	c.SendChange(p) // local documentTimestamp advances to 1 speculatively

	// A remote change actually lands at server timestamp 0 (i.e. it was
	// concurrent with, and precedes, our own upload) — behind our locally
	// advanced timestamp, forcing a rebase.
	remote := patch.New()
	remote.Add(7, addData(0, 0, ">> "))
	if err := c.GotChange(endpoint.PatchBroadcast{FileID: "doc1", DocumentTimestamp: 0, Patch: remote}); err != nil {
		t.Fatalf("got change: %v", err)
	}

	if c.BranchID() != 1 {
		t.Fatalf("branch should advance, got %d", c.BranchID())
	}
	confirmed := c.ConfirmedBlocks()
	if got := plainTextOf(confirmed[0]); got != ">> hello" {
		t.Fatalf("confirmed blocks = %q, want %q", got, ">> hello")
	}
	advanced := c.Blocks()
	if got := plainTextOf(advanced[0]); got != ">> hello world" {
		t.Fatalf("blocks_advanced after rebase = %q, want %q", got, ">> hello world")
	}
}

func plainTextOf(b *block.Block) string {
	var s string
	for _, it := range b.Contents {
		if it.Kind == block.ItemText {
			s += it.Text
		}
	}
	return s
}
