package block

import (
	"encoding/binary"
	"fmt"
)

// Wire tags for style markers and the text sentinel, per spec.md §6
// styled_items layout: tag 4 is TEXT, else tag is the style code.
const (
	tagItalics   = 0
	tagBold      = 1
	tagUnderline = 2
	tagLineBreak = 3
	tagText      = 4
)

func styleToTag(s StyleKind) (uint8, error) {
	switch s {
	case Italics:
		return tagItalics, nil
	case Bold:
		return tagBold, nil
	case Underline:
		return tagUnderline, nil
	case LineBreak:
		return tagLineBreak, nil
	default:
		return 0, fmt.Errorf("block: unknown style kind %d", s)
	}
}

func tagToStyle(tag uint8) (StyleKind, error) {
	switch tag {
	case tagItalics:
		return Italics, nil
	case tagBold:
		return Bold, nil
	case tagUnderline:
		return Underline, nil
	case tagLineBreak:
		return LineBreak, nil
	default:
		return 0, fmt.Errorf("block: unknown style tag %d", tag)
	}
}

// EncodeTo appends the binary encoding of b to buf and returns the result.
// Layout: u8 block_type, u16 count, then each item either a one-byte style
// tag or (TEXT=4, u16 len, bytes). Big-endian throughout.
func (b *Block) EncodeTo(buf []byte) ([]byte, error) {
	if !ValidType(b.BlockType) {
		return nil, fmt.Errorf("block: invalid block type %d", b.BlockType)
	}
	buf = append(buf, byte(b.BlockType))
	if len(b.Contents) > 0xFFFF {
		return nil, fmt.Errorf("block: too many items (%d)", len(b.Contents))
	}
	buf = appendU16(buf, uint16(len(b.Contents)))
	for _, it := range b.Contents {
		switch it.Kind {
		case ItemText:
			txt := []byte(it.Text)
			if len(txt) > 0xFFFF {
				return nil, fmt.Errorf("block: text run too long (%d bytes)", len(txt))
			}
			buf = append(buf, tagText)
			buf = appendU16(buf, uint16(len(txt)))
			buf = append(buf, txt...)
		case ItemStyle:
			tag, err := styleToTag(it.Style)
			if err != nil {
				return nil, err
			}
			buf = append(buf, tag)
		default:
			return nil, fmt.Errorf("block: unknown item kind %d", it.Kind)
		}
	}
	return buf, nil
}

// Encode returns the binary encoding of b.
func (b *Block) Encode() ([]byte, error) {
	return b.EncodeTo(nil)
}

// Decode reads one block from buf, returning the block and the number of
// bytes consumed.
func Decode(buf []byte) (*Block, int, error) {
	if len(buf) < 3 {
		return nil, 0, fmt.Errorf("block: short buffer (%d bytes)", len(buf))
	}
	t := Type(buf[0])
	if !ValidType(t) {
		return nil, 0, fmt.Errorf("block: invalid block type %d", t)
	}
	count := binary.BigEndian.Uint16(buf[1:3])
	off := 3

	items := make([]Item, 0, count)
	for i := 0; i < int(count); i++ {
		if off >= len(buf) {
			return nil, 0, fmt.Errorf("block: truncated item stream")
		}
		tag := buf[off]
		off++
		if tag == tagText {
			if off+2 > len(buf) {
				return nil, 0, fmt.Errorf("block: truncated text length")
			}
			l := int(binary.BigEndian.Uint16(buf[off : off+2]))
			off += 2
			if off+l > len(buf) {
				return nil, 0, fmt.Errorf("block: truncated text body")
			}
			items = append(items, TextItem(string(buf[off:off+l])))
			off += l
		} else {
			style, err := tagToStyle(tag)
			if err != nil {
				return nil, 0, err
			}
			items = append(items, StyleItem(style))
		}
	}

	return &Block{BlockType: t, Contents: items}, off, nil
}

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

// EncodeItemsTo appends the binary encoding of a bare item list (no leading
// block_type byte) to buf: u16 count followed by each item. Used by the
// patch wire codec for AddData/RemoveData payloads (spec's "styled_items").
func EncodeItemsTo(buf []byte, items []Item) ([]byte, error) {
	if len(items) > 0xFFFF {
		return nil, fmt.Errorf("block: too many items (%d)", len(items))
	}
	buf = appendU16(buf, uint16(len(items)))
	for _, it := range items {
		switch it.Kind {
		case ItemText:
			txt := []byte(it.Text)
			if len(txt) > 0xFFFF {
				return nil, fmt.Errorf("block: text run too long (%d bytes)", len(txt))
			}
			buf = append(buf, tagText)
			buf = appendU16(buf, uint16(len(txt)))
			buf = append(buf, txt...)
		case ItemStyle:
			tag, err := styleToTag(it.Style)
			if err != nil {
				return nil, err
			}
			buf = append(buf, tag)
		default:
			return nil, fmt.Errorf("block: unknown item kind %d", it.Kind)
		}
	}
	return buf, nil
}

// DecodeItems reads a bare item list (u16 count + items) from buf, returning
// the items and the number of bytes consumed.
func DecodeItems(buf []byte) ([]Item, int, error) {
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("block: short item list buffer")
	}
	count := binary.BigEndian.Uint16(buf[:2])
	off := 2
	items := make([]Item, 0, count)
	for i := 0; i < int(count); i++ {
		if off >= len(buf) {
			return nil, 0, fmt.Errorf("block: truncated item stream")
		}
		tag := buf[off]
		off++
		if tag == tagText {
			if off+2 > len(buf) {
				return nil, 0, fmt.Errorf("block: truncated text length")
			}
			l := int(binary.BigEndian.Uint16(buf[off : off+2]))
			off += 2
			if off+l > len(buf) {
				return nil, 0, fmt.Errorf("block: truncated text body")
			}
			items = append(items, TextItem(string(buf[off:off+l])))
			off += l
		} else {
			style, err := tagToStyle(tag)
			if err != nil {
				return nil, 0, err
			}
			items = append(items, StyleItem(style))
		}
	}
	return items, off, nil
}

// CloneItems returns a copy of an item slice, for callers that need to avoid
// aliasing a change's payload with the block's own storage.
func CloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
