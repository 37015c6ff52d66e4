// Package client implements the Client Replica (spec §4.5): the dual
// confirmed/advanced block lists, the locally-pending patch queue, and the
// branch/ack/rebase bookkeeping that lets a user keep typing ahead of
// unacknowledged edits while remote patches rebase that pending work.
package client

import (
	"fmt"
	"sync"

	"github.com/fountainhead/scriptsync/internal/endpoint"
	"github.com/fountainhead/scriptsync/internal/patch"
)

// Sender is the send-side of the framed socket a Client drives.
type Sender interface {
	Send(id endpoint.ID, payload any) error
}

// Client is one session's replica of a single open document.
//
// Open Question 1 resolution (see DESIGN.md): the source's change ids are
// overwritten with a server-assigned transaction stamp at apply time, so a
// client cannot predict the id an upload will come back under and ack
// removal cannot be matched by id content. This replica instead tracks, in
// order, how many entries each SendChange call contributed to advancePatch
// and pops that many off the front on the next AckChange — correct because
// uploads from one session are necessarily acked in the order the server
// received them (single per-document lock).
type Client struct {
	mu sync.Mutex

	fileID string
	socket Sender

	blocks         patch.Blocks // server-confirmed
	blocksAdvanced patch.Blocks // confirmed + local pending

	advancePatch       *patch.Patch
	pendingEntryCounts []int

	branchID          uint32
	documentTimestamp uint32

	// OnRebase, if set, is invoked after GotChange forces a rebase of
	// blocksAdvanced, signaling the editor to rebase any UI-held cursors
	// through the same transform (spec §4.5's "signal the editor").
	OnRebase func()
}

// New constructs a Client from the SyncDoc snapshot received on join.
func New(socket Sender, snapshot endpoint.SyncDoc) *Client {
	confirmed := make(patch.Blocks, len(snapshot.Blocks))
	copy(confirmed, snapshot.Blocks)
	return &Client{
		fileID:            snapshot.FileID,
		socket:            socket,
		blocks:            confirmed,
		blocksAdvanced:    patch.CloneBlocks(confirmed),
		advancePatch:      patch.New(),
		documentTimestamp: snapshot.DocumentTimestamp,
	}
}

// Blocks returns the current speculative (advanced) block list, the one an
// editor should render.
func (c *Client) Blocks() patch.Blocks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return patch.CloneBlocks(c.blocksAdvanced)
}

// ConfirmedBlocks returns the last server-confirmed block list.
func (c *Client) ConfirmedBlocks() patch.Blocks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return patch.CloneBlocks(c.blocks)
}

// SendChange applies p to the advanced replica, enqueues it as pending, and
// uploads it. The caller owns p's construction (e.g. from editor input
// translated into change primitives); p is applied here rather than by the
// caller, consolidating the two steps spec §4.5 describes separately
// ("caller has already applied... append to advance_patch") into one
// atomic client-side call.
func (c *Client) SendChange(p *patch.Patch) error {
	c.mu.Lock()
	p.Apply(&c.blocksAdvanced)
	c.advancePatch.Entries = append(c.advancePatch.Entries, p.Copy().Entries...)
	c.pendingEntryCounts = append(c.pendingEntryCounts, p.Len())
	branchID := c.branchID
	ts := c.documentTimestamp
	c.documentTimestamp++
	c.mu.Unlock()

	return c.socket.Send(endpoint.SCRIPT_PATCH, endpoint.PatchUpload{
		FileID:            c.fileID,
		BranchID:          branchID,
		DocumentTimestamp: ts,
		Patch:             p,
	})
}

// AckChange applies the server's acknowledgment to the confirmed replica
// and retires the oldest pending upload from advancePatch.
func (c *Client) AckChange(ack endpoint.PatchAck) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ack.Patch.Apply(&c.blocks)

	if len(c.pendingEntryCounts) == 0 {
		return
	}
	n := c.pendingEntryCounts[0]
	c.pendingEntryCounts = c.pendingEntryCounts[1:]
	if n > len(c.advancePatch.Entries) {
		n = len(c.advancePatch.Entries)
	}
	c.advancePatch.Entries = c.advancePatch.Entries[n:]
}

// GotChange applies a patch broadcast from another session. If it is
// ordered before this client's own pending work (the server's timestamp is
// behind what this client already anticipated), the pending queue is
// rebased onto a fresh branch; otherwise it is simply folded into the
// advanced replica alongside the pending work.
func (c *Client) GotChange(msg endpoint.PatchBroadcast) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg.Patch.Apply(&c.blocks)

	if msg.DocumentTimestamp < c.documentTimestamp {
		c.branchID++
		c.blocksAdvanced = patch.CloneBlocks(c.blocks)

		if err := c.advancePatch.RebaseTo(msg.Patch.Copy()); err != nil {
			return fmt.Errorf("client: rebase pending patch: %w", err)
		}
		c.advancePatch.Apply(&c.blocksAdvanced)

		if c.OnRebase != nil {
			c.OnRebase()
		}
	} else {
		msg.Patch.Apply(&c.blocksAdvanced)
	}

	c.documentTimestamp++
	return nil
}

// BranchID returns the client's current branch id.
func (c *Client) BranchID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.branchID
}

// DocumentTimestamp returns the client's locally-tracked document_timestamp.
func (c *Client) DocumentTimestamp() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.documentTimestamp
}
