// Package realtime implements the server-authoritative document timeline
// (spec §4.3/§4.4): per-document serialization of patch application, the
// branch/freeze discipline that reconciles stale client uploads, and the
// project/server hub that owns the document map.
package realtime

import (
	"fmt"
	"sync"

	"github.com/fountainhead/scriptsync/internal/block"
	"github.com/fountainhead/scriptsync/internal/endpoint"
	"github.com/fountainhead/scriptsync/internal/patch"
)

// ClientHandle is the send-side of a joined session's socket. RealTimeUser
// and RealTimeDocument depend only on this interface, not on internal/wire
// directly, so the reconciliation logic can be exercised by tests with a
// fake handle.
type ClientHandle interface {
	Send(id endpoint.ID, payload any) error
	Username() string
	VisibleName() string
}

// RealTimeDocument is the authoritative in-memory state of one open
// document: its block list, monotonic document_timestamp, and the set of
// currently-joined users. All three are covered by one mutex (spec's
// "document lock"); Go's sync.Mutex is not re-entrant, so every method
// below acquires it at most once per call and never calls back into
// another locking method while held — the non-blocking-send discipline of
// §5 is honored by collecting recipients under the lock and sending only
// after releasing it.
type RealTimeDocument struct {
	mu sync.Mutex

	FileID            string
	blocks            patch.Blocks
	documentTimestamp uint32
	editingUsers      map[*RealTimeUser]struct{}
}

// NewDocument constructs a RealTimeDocument seeded with the given blocks
// (typically loaded from disk via internal/fountain, or empty for a new
// document).
func NewDocument(fileID string, blocks patch.Blocks) *RealTimeDocument {
	return &RealTimeDocument{
		FileID:       fileID,
		blocks:       blocks,
		editingUsers: make(map[*RealTimeUser]struct{}),
	}
}

// Timestamp returns the document's current document_timestamp.
func (rtd *RealTimeDocument) Timestamp() uint32 {
	rtd.mu.Lock()
	defer rtd.mu.Unlock()
	return rtd.documentTimestamp
}

// EditorCount reports how many users are currently joined.
func (rtd *RealTimeDocument) EditorCount() int {
	rtd.mu.Lock()
	defer rtd.mu.Unlock()
	return len(rtd.editingUsers)
}

// pushPatchLocked stamps every entry of p with the current
// document_timestamp, applies it, advances the timestamp, and returns the
// stamped patch together with the new timestamp and the list of editing
// users other than source. Caller must hold rtd.mu.
func (rtd *RealTimeDocument) pushPatchLocked(p *patch.Patch, source *RealTimeUser) (stamped *patch.Patch, newTimestamp uint32, recipients []*RealTimeUser) {
	stamped = p.Copy()
	stamped.StampChangeIDs(rtd.documentTimestamp)
	stamped.Apply(&rtd.blocks)
	rtd.documentTimestamp++
	newTimestamp = rtd.documentTimestamp

	for u := range rtd.editingUsers {
		if u != source {
			recipients = append(recipients, u)
		}
	}
	return stamped, newTimestamp, recipients
}

// PushPatch applies p on behalf of source and broadcasts the result to
// every other editing user. It is the verbatim-apply path used once an
// Upload has determined the client's patch needs no further rebase.
func (rtd *RealTimeDocument) PushPatch(p *patch.Patch, source *RealTimeUser) *patch.Patch {
	rtd.mu.Lock()
	stamped, newTimestamp, recipients := rtd.pushPatchLocked(p, source)
	rtd.mu.Unlock()

	for _, u := range recipients {
		u.broadcastPatch(rtd.FileID, stamped, newTimestamp)
	}
	return stamped
}

// JoinClient registers a new session as an editor of this document: it
// receives a consistent SyncDoc snapshot, existing editors are told about
// the joiner, and the joiner is told about each existing editor.
func (rtd *RealTimeDocument) JoinClient(handle ClientHandle) (*RealTimeUser, error) {
	user := newRealTimeUser(handle)

	rtd.mu.Lock()
	snapshot := endpoint.SyncDoc{
		FileID:            rtd.FileID,
		DocumentTimestamp: rtd.documentTimestamp,
		Blocks:            patch.CloneBlocks(rtd.blocks),
	}
	existing := make([]*RealTimeUser, 0, len(rtd.editingUsers))
	for u := range rtd.editingUsers {
		existing = append(existing, u)
	}
	rtd.editingUsers[user] = struct{}{}
	rtd.mu.Unlock()

	if err := handle.Send(endpoint.SYNC_DOC, snapshot); err != nil {
		return nil, fmt.Errorf("realtime: send sync_doc: %w", err)
	}

	joinerForm := endpoint.UserPublicForm{Username: handle.Username(), VisibleName: handle.VisibleName()}
	for _, peer := range existing {
		if err := peer.handle.Send(endpoint.JOINED_DOC, joinerForm); err != nil {
			return nil, fmt.Errorf("realtime: notify peer of join: %w", err)
		}
		peerForm := endpoint.UserPublicForm{Username: peer.handle.Username(), VisibleName: peer.handle.VisibleName()}
		if err := handle.Send(endpoint.JOINED_DOC, peerForm); err != nil {
			return nil, fmt.Errorf("realtime: notify joiner of peer: %w", err)
		}
	}
	return user, nil
}

// BroadcastLeaveClient unregisters user and notifies remaining editors.
func (rtd *RealTimeDocument) BroadcastLeaveClient(user *RealTimeUser) {
	rtd.mu.Lock()
	delete(rtd.editingUsers, user)
	remaining := make([]*RealTimeUser, 0, len(rtd.editingUsers))
	for u := range rtd.editingUsers {
		remaining = append(remaining, u)
	}
	rtd.mu.Unlock()

	leftForm := endpoint.UserPublicForm{Username: user.handle.Username(), VisibleName: user.handle.VisibleName()}
	for _, peer := range remaining {
		peer.handle.Send(endpoint.LEFT_DOC, leftForm)
	}
}

// Save serializes the current block list with encode and hands the bytes
// to persist. Both run under the document lock so a concurrent patch
// cannot apply between snapshot and encode.
func (rtd *RealTimeDocument) Save(encode func([]*block.Block) ([]byte, error), persist func([]byte) error) error {
	rtd.mu.Lock()
	defer rtd.mu.Unlock()

	data, err := encode(rtd.blocks)
	if err != nil {
		return fmt.Errorf("realtime: encode document: %w", err)
	}
	if err := persist(data); err != nil {
		return fmt.Errorf("realtime: persist document: %w", err)
	}
	return nil
}
