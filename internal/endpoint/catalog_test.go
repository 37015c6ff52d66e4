package endpoint

import (
	"testing"

	"github.com/fountainhead/scriptsync/internal/block"
	"github.com/fountainhead/scriptsync/internal/patch"
)

func roundTrip(t *testing.T, c *Catalog, id ID, payload any) any {
	t.Helper()
	ep, ok := c.Lookup(id)
	if !ok {
		t.Fatalf("endpoint %d not registered", id)
	}
	buf, err := ep.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) > ep.MaxDataSize {
		t.Fatalf("encoded payload %d exceeds MaxDataSize %d", len(buf), ep.MaxDataSize)
	}
	got, err := ep.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestZeroPayloadEndpoints(t *testing.T) {
	c := Default()
	for _, id := range []ID{PING, PONG, ARE_U_ALIVE, I_AM_ALIVE, CLOSE} {
		ep, ok := c.Lookup(id)
		if !ok {
			t.Fatalf("endpoint %d missing", id)
		}
		buf, err := ep.Encode(struct{}{})
		if err != nil || len(buf) != 0 {
			t.Fatalf("expected empty encode for %d, got %v %v", id, buf, err)
		}
	}
}

func TestLoginRoundTrip(t *testing.T) {
	c := Default()
	got := roundTrip(t, c, LOGIN, LoginRequest{Username: "abe", Password: "hunter2"})
	lr := got.(LoginRequest)
	if lr.Username != "abe" || lr.Password != "hunter2" {
		t.Fatalf("got %+v", lr)
	}
}

func TestLoginResultSuccessRoundTrip(t *testing.T) {
	c := Default()
	want := LoginResult{
		ErrorCode: 0,
		Projects: []ProjectSummary{
			{ID: "abcdefabcdefabcdefabcdef", Name: "Pilot"},
		},
		User: UserPublicForm{Username: "abe", VisibleName: "Abe Froman"},
	}
	got := roundTrip(t, c, LOGIN_RESULT, want).(LoginResult)
	if got.ErrorCode != 0 || len(got.Projects) != 1 || got.Projects[0].Name != "Pilot" || got.User.VisibleName != "Abe Froman" {
		t.Fatalf("got %+v", got)
	}
}

func TestLoginResultErrorRoundTrip(t *testing.T) {
	c := Default()
	got := roundTrip(t, c, LOGIN_RESULT, LoginResult{ErrorCode: 3}).(LoginResult)
	if got.ErrorCode != 3 || len(got.Projects) != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestIDAndNameRoundTrip(t *testing.T) {
	c := Default()
	want := IDAndName{ID: "abcdefabcdefabcdefabcdef", Name: "Episode 2"}
	got := roundTrip(t, c, CREATED_PROJECT, want).(IDAndName)
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestIDPayloadRoundTrip(t *testing.T) {
	c := Default()
	want := IDPayload{ID: "abcdefabcdefabcdefabcdef"}
	got := roundTrip(t, c, JOIN_DOC, want).(IDPayload)
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestSyncDocRoundTrip(t *testing.T) {
	c := Default()
	blocks := []*block.Block{
		block.NewWithContents(block.SceneHeading, []block.Item{block.TextItem("INT. ROOM - DAY")}),
		block.NewWithContents(block.Action, []block.Item{block.TextItem("She waits.")}),
	}
	want := SyncDoc{FileID: "abcdefabcdefabcdefabcdef", DocumentTimestamp: 42, Blocks: blocks}
	got := roundTrip(t, c, SYNC_DOC, want).(SyncDoc)
	if got.FileID != want.FileID || got.DocumentTimestamp != 42 || len(got.Blocks) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got.Blocks[0].BlockType != block.SceneHeading {
		t.Fatalf("block type mismatch: %v", got.Blocks[0].BlockType)
	}
}

func TestPatchUploadRoundTrip(t *testing.T) {
	c := Default()
	p := patch.New()
	p.Add(7, &patch.AddDataChange{BlockID: 0, Start: 0, Items: []block.Item{block.TextItem("hi")}})
	want := PatchUpload{FileID: "abcdefabcdefabcdefabcdef", BranchID: 3, DocumentTimestamp: 9, Patch: p}
	got := roundTrip(t, c, SCRIPT_PATCH, want).(PatchUpload)
	if got.FileID != want.FileID || got.BranchID != 3 || got.DocumentTimestamp != 9 || len(got.Patch.Entries) != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestMaxDataSizeEnforcedByCaller(t *testing.T) {
	c := Default()
	ep, _ := c.Lookup(SYNC_DOC)
	if ep.MaxDataSize != largeMax {
		t.Fatalf("expected SYNC_DOC to be the large endpoint, got %d", ep.MaxDataSize)
	}
	ep2, _ := c.Lookup(PING)
	if ep2.MaxDataSize != 0 {
		t.Fatalf("expected PING to be zero-payload, got %d", ep2.MaxDataSize)
	}
}
