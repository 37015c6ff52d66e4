package patch

import (
	"encoding/binary"
	"fmt"

	"github.com/fountainhead/scriptsync/internal/block"
)

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// EncodeChangeTo appends a single Change's wire encoding to buf.
func EncodeChangeTo(buf []byte, c Change) ([]byte, error) {
	return c.EncodeTo(buf)
}

func (c *AddBlockChange) EncodeTo(buf []byte) ([]byte, error) {
	buf = append(buf, TagAddBlock)
	buf = appendU32(buf, uint32(c.Index))
	return c.Blk.EncodeTo(buf)
}

func (c *RemoveBlockChange) EncodeTo(buf []byte) ([]byte, error) {
	buf = append(buf, TagRemoveBlock)
	buf = appendU32(buf, uint32(c.Index))
	return buf, nil
}

func (c *AddDataChange) EncodeTo(buf []byte) ([]byte, error) {
	buf = append(buf, TagAddText)
	buf = appendU32(buf, uint32(c.BlockID))
	buf = appendU16(buf, uint16(c.Start))
	return block.EncodeItemsTo(buf, c.Items)
}

func (c *RemoveDataChange) EncodeTo(buf []byte) ([]byte, error) {
	buf = append(buf, TagRemoveText)
	buf = appendU32(buf, uint32(c.BlockID))
	buf = appendU16(buf, uint16(c.Start))
	buf = appendU16(buf, uint16(c.Length))
	return buf, nil
}

func (c *ChangeTypeChange) EncodeTo(buf []byte) ([]byte, error) {
	buf = append(buf, TagChangedType)
	buf = appendU32(buf, uint32(c.BlockID))
	buf = append(buf, byte(c.NewType))
	return buf, nil
}

// DecodeChange reads one Change from buf, returning the change and the
// number of bytes consumed.
func DecodeChange(buf []byte) (Change, int, error) {
	if len(buf) < 1 {
		return nil, 0, fmt.Errorf("patch: empty change buffer")
	}
	tag := buf[0]
	off := 1

	switch tag {
	case TagAddBlock:
		if off+4 > len(buf) {
			return nil, 0, fmt.Errorf("patch: truncated add_block")
		}
		idx := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		blk, n, err := block.Decode(buf[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("patch: add_block block: %w", err)
		}
		off += n
		return &AddBlockChange{Index: idx, Blk: blk}, off, nil

	case TagRemoveBlock:
		if off+4 > len(buf) {
			return nil, 0, fmt.Errorf("patch: truncated remove_block")
		}
		idx := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		return &RemoveBlockChange{Index: idx}, off, nil

	case TagAddText:
		if off+6 > len(buf) {
			return nil, 0, fmt.Errorf("patch: truncated add_text header")
		}
		id := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		start := int(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2
		items, n, err := block.DecodeItems(buf[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("patch: add_text items: %w", err)
		}
		off += n
		return &AddDataChange{BlockID: id, Start: start, Items: items}, off, nil

	case TagRemoveText:
		if off+8 > len(buf) {
			return nil, 0, fmt.Errorf("patch: truncated remove_text")
		}
		id := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		start := int(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2
		length := int(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2
		return &RemoveDataChange{BlockID: id, Start: start, Length: length}, off, nil

	case TagChangedType:
		if off+5 > len(buf) {
			return nil, 0, fmt.Errorf("patch: truncated changed_type")
		}
		id := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		t := block.Type(buf[off])
		off++
		if !block.ValidType(t) {
			return nil, 0, fmt.Errorf("patch: invalid block type %d", t)
		}
		return &ChangeTypeChange{BlockID: id, NewType: t}, off, nil

	default:
		return nil, 0, fmt.Errorf("patch: unknown change tag %d", tag)
	}
}

// EncodeTo appends the patch's wire encoding to buf: u16 change_count, then
// change_count x {u32 change_id, Change.bytes}.
func (p *Patch) EncodeTo(buf []byte) ([]byte, error) {
	if len(p.Entries) > 0xFFFF {
		return nil, fmt.Errorf("patch: too many entries (%d)", len(p.Entries))
	}
	buf = appendU16(buf, uint16(len(p.Entries)))
	for _, e := range p.Entries {
		buf = appendU32(buf, e.ChangeID)
		var err error
		buf, err = e.Change.EncodeTo(buf)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Encode returns the patch's wire encoding.
func (p *Patch) Encode() ([]byte, error) { return p.EncodeTo(nil) }

// Decode reads a patch from buf, returning the patch and the number of
// bytes consumed.
func Decode(buf []byte) (*Patch, int, error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("patch: short buffer")
	}
	count := binary.BigEndian.Uint16(buf[:2])
	off := 2

	p := &Patch{Entries: make([]Entry, 0, count)}
	for i := 0; i < int(count); i++ {
		if off+4 > len(buf) {
			return nil, 0, fmt.Errorf("patch: truncated change_id")
		}
		id := binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
		c, n, err := DecodeChange(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		p.Entries = append(p.Entries, Entry{ChangeID: id, Change: c})
	}
	return p, off, nil
}
