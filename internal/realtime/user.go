package realtime

import (
	"fmt"
	"sync"

	"github.com/fountainhead/scriptsync/internal/endpoint"
	"github.com/fountainhead/scriptsync/internal/patch"
)

// RealTimeUser is one session's per-document bookkeeping: the branch/freeze
// state that lets the server reconcile an upload produced against a now-
// stale view of the document (spec §4.4).
type RealTimeUser struct {
	mu sync.Mutex

	handle ClientHandle

	currentBranch uint32
	// frozenBranchesTimestamps values are signed: document_timestamp-1 can
	// be -1 when a branch is frozen at the very first upload (document_
	// timestamp 0, meaning the client had incorporated zero prior patches).
	// -1 then correctly means "drop nothing" once compared as int64 below;
	// a uint32 would wrap and drop everything.
	frozenBranchesTimestamps map[uint32]int64
	patchFromOldToNew        *patch.Patch
}

func newRealTimeUser(handle ClientHandle) *RealTimeUser {
	return &RealTimeUser{
		handle:                   handle,
		frozenBranchesTimestamps: make(map[uint32]int64),
		patchFromOldToNew:        patch.New(),
	}
}

// Handle exposes the underlying client handle, e.g. so a hub can send
// errors to it outside the document lock.
func (u *RealTimeUser) Handle() ClientHandle { return u.handle }

// Upload reconciles an uploaded patch against rtd per the three cases of
// spec §4.4 and returns the patch to ack back to the uploader.
func (u *RealTimeUser) Upload(rtd *RealTimeDocument, p *patch.Patch, branchID, documentTimestamp uint32) (*patch.Patch, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	rtd.mu.Lock()
	current := rtd.documentTimestamp
	rtd.mu.Unlock()

	switch {
	case branchID == u.currentBranch && documentTimestamp == current:
		// Case 1: up-to-date upload, apply verbatim.
		u.patchFromOldToNew = patch.New()
		return rtd.PushPatch(p, u), nil

	case branchID == u.currentBranch && documentTimestamp < current:
		// Case 2: stale upload on the current branch. Freeze it, then fall
		// through to the frozen-branch handling below using the branch id
		// the client actually sent (== the branch we just froze).
		u.frozenBranchesTimestamps[u.currentBranch] = int64(documentTimestamp) - 1
		u.currentBranch++
		return u.uploadOnFrozenBranch(rtd, p, branchID)

	case branchID != u.currentBranch:
		// Case 3: frozen branch upload.
		return u.uploadOnFrozenBranch(rtd, p, branchID)

	default:
		return nil, fmt.Errorf("realtime: upload with branch %d ahead of server branch %d", branchID, u.currentBranch)
	}
}

// uploadOnFrozenBranch implements case 3 of §4.4: the patch was produced
// against a state the server has since moved past. patch_from_old_to_new
// entries that predate the freeze point are dropped (already incorporated
// server-side by definition of when the freeze occurred), frozen-branch
// bookkeeping older than branchID is garbage collected, and the incoming
// patch is rebased against what remains before being applied.
func (u *RealTimeUser) uploadOnFrozenBranch(rtd *RealTimeDocument, p *patch.Patch, branchID uint32) (*patch.Patch, error) {
	threshold, ok := u.frozenBranchesTimestamps[branchID]
	if !ok {
		return nil, fmt.Errorf("realtime: upload references unknown frozen branch %d", branchID)
	}

	kept := make([]patch.Entry, 0, len(u.patchFromOldToNew.Entries))
	for _, e := range u.patchFromOldToNew.Entries {
		if int64(e.ChangeID) >= threshold {
			kept = append(kept, e)
		}
	}
	u.patchFromOldToNew.Entries = kept

	for b := range u.frozenBranchesTimestamps {
		if b < branchID {
			delete(u.frozenBranchesTimestamps, b)
		}
	}

	rebased := p.Copy()
	if err := rebased.RebaseTo(u.patchFromOldToNew.Copy()); err != nil {
		return nil, fmt.Errorf("realtime: rebase frozen-branch upload: %w", err)
	}

	u.patchFromOldToNew = patch.New()
	return rtd.PushPatch(rebased, u), nil
}

// broadcastPatch records p into this user's patch_from_old_to_new (so a
// future frozen-branch upload from this same user can rebase against it)
// and forwards a PatchedScript notification over the wire.
func (u *RealTimeUser) broadcastPatch(fileID string, p *patch.Patch, newTimestamp uint32) {
	u.mu.Lock()
	u.patchFromOldToNew.Entries = append(u.patchFromOldToNew.Entries, p.Copy().Entries...)
	u.mu.Unlock()

	u.handle.Send(endpoint.SCRIPT_PATCHED, endpoint.PatchBroadcast{
		FileID:            fileID,
		DocumentTimestamp: newTimestamp,
		Patch:             p,
	})
}
