package patch

// Entry pairs a Change with its change_id, the branch/freeze marker used by
// the server's upload reconciliation (§4.4). The client (§4.5) matches acks
// by position, not by change_id.
type Entry struct {
	ChangeID uint32
	Change   Change
}

// Patch is an ordered list of changes sharing a transactional boundary.
// Changes within a Patch are applied in order.
type Patch struct {
	Entries []Entry
}

// New returns an empty patch.
func New() *Patch { return &Patch{} }

// Add appends a change to the patch verbatim (no transform against the
// patch's own prior entries). Used when the caller already computed
// positions against the pre-patch document state for every change.
func (p *Patch) Add(id uint32, c Change) {
	p.Entries = append(p.Entries, Entry{ChangeID: id, Change: c})
}

// Len reports the number of entries.
func (p *Patch) Len() int { return len(p.Entries) }

// Copy returns a deep copy of the patch.
func (p *Patch) Copy() *Patch {
	out := &Patch{Entries: make([]Entry, len(p.Entries))}
	for i, e := range p.Entries {
		out.Entries[i] = Entry{ChangeID: e.ChangeID, Change: e.Change.Copy()}
	}
	return out
}

// StampChangeIDs overwrites every entry's change_id, used by the server's
// push_patch when it takes ownership of a client patch (§4.3).
func (p *Patch) StampChangeIDs(id uint32) {
	for i := range p.Entries {
		p.Entries[i].ChangeID = id
	}
}

// ChangeIDSet returns the set of change_ids present in the patch. The
// client's ack removal (§4.5) does not use it: it matches acks positionally
// (Open Question 1, see DESIGN.md).
func (p *Patch) ChangeIDSet() map[uint32]struct{} {
	set := make(map[uint32]struct{}, len(p.Entries))
	for _, e := range p.Entries {
		set[e.ChangeID] = struct{}{}
	}
	return set
}

// AddAdapting transforms c against every change already in the patch (so
// its positions remain consistent with the pre-patch document state) and
// appends the result. Used by selection-based edits that internally
// produce multiple deletions (§4.2).
func (p *Patch) AddAdapting(id uint32, c Change) error {
	list := []Change{c}
	for _, e := range p.Entries {
		var next []Change
		for _, x := range list {
			mapped, err := e.Change.Map(x)
			if err != nil {
				return err
			}
			next = append(next, mapped...)
		}
		list = next
	}
	for _, m := range list {
		p.Entries = append(p.Entries, Entry{ChangeID: id, Change: m})
	}
	return nil
}

// Apply resets every block's contents_modified flag, applies each change in
// order, then normalizes every block (coalesce text runs, drop empties).
// Per §7, an out-of-range change is a silent no-op; the rest of the patch
// still applies.
func (p *Patch) Apply(blocks *Blocks) {
	for _, b := range *blocks {
		b.ClearModified()
	}
	for _, e := range p.Entries {
		e.Change.Apply(blocks)
	}
	for _, b := range *blocks {
		b.Normalize()
	}
}

// MapPoint threads the position pair through each change's MapPoint in
// order, used to follow a cursor across a patch.
func (p *Patch) MapPoint(b, pos int) (int, int) {
	for _, e := range p.Entries {
		b, pos = e.Change.MapPoint(b, pos)
	}
	return b, pos
}

// RebaseTo rewrites p so it can be applied after base. base is itself
// mutated in the process: every change of p, after being transformed
// against base, is fed back through base so base accounts for the fact
// that change now precedes it (the mutual rebase that keeps base
// consistent when multiple entries of p each touch positions base also
// touches).
func (p *Patch) RebaseTo(base *Patch) error {
	newEntries := make([]Entry, 0, len(p.Entries))

	for _, entry := range p.Entries {
		list := []Change{entry.Change}
		for _, b := range base.Entries {
			var next []Change
			for _, x := range list {
				mapped, err := b.Change.Map(x)
				if err != nil {
					return err
				}
				next = append(next, mapped...)
			}
			list = next
		}

		for _, mc := range list {
			newEntries = append(newEntries, Entry{ChangeID: entry.ChangeID, Change: mc})
			if err := base.rebaseToChange(mc); err != nil {
				return err
			}
		}
	}

	p.Entries = newEntries
	return nil
}

// rebaseToChange rewrites every entry of base as if mc had already been
// applied, expanding any entry that splits into two while preserving its
// original change_id.
func (base *Patch) rebaseToChange(mc Change) error {
	newEntries := make([]Entry, 0, len(base.Entries))
	for _, e := range base.Entries {
		mapped, err := mc.Map(e.Change)
		if err != nil {
			return err
		}
		for _, m := range mapped {
			newEntries = append(newEntries, Entry{ChangeID: e.ChangeID, Change: m})
		}
	}
	base.Entries = newEntries
	return nil
}

// ApplyCopy applies the patch to a fresh deep copy of blocks and returns the
// result, leaving the input untouched. Convenient for convergence tests.
func ApplyCopy(blocks Blocks, p *Patch) Blocks {
	out := make(Blocks, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	p.Apply(&out)
	return out
}

// CloneBlocks deep-copies a block list.
func CloneBlocks(blocks Blocks) Blocks {
	out := make(Blocks, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}
