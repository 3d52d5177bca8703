// Package page decodes a single B-tree page: its header, cell pointer
// array, and (for interior pages) rightmost child pointer.
package page

import (
	"encoding/binary"

	"github.com/ndyer/sqlitekit/internal/dberr"
)

// Kind identifies one of the four B-tree page types SQLite writes.
type Kind uint8

const (
	KindInteriorIndex Kind = 0x02
	KindInteriorTable Kind = 0x05
	KindLeafIndex     Kind = 0x0A
	KindLeafTable     Kind = 0x0D
)

func (k Kind) IsInterior() bool { return k == KindInteriorIndex || k == KindInteriorTable }
func (k Kind) IsLeaf() bool     { return k == KindLeafIndex || k == KindLeafTable }
func (k Kind) IsTable() bool    { return k == KindInteriorTable || k == KindLeafTable }
func (k Kind) IsIndex() bool    { return k == KindInteriorIndex || k == KindLeafIndex }

// Page is a decoded B-tree page. Cells holds, per cell, the byte offset
// (relative to the start of raw, not to headerOffset) at which that cell's
// content begins.
type Page struct {
	Kind        Kind
	CellCount   uint16
	Cells       []uint16
	RightChild  uint32 // only meaningful when Kind.IsInterior()
	HeaderStart int
}

// Decode parses the B-tree page header and cell pointer array out of raw.
// headerOffset is 100 for page 1 (the page header follows the 100-byte
// database header) and 0 for every other page.
func Decode(raw []byte, headerOffset int) (*Page, error) {
	if len(raw) < headerOffset+8 {
		return nil, dberr.Corrupt("page.Decode", "page of %d bytes too small for header at offset %d", len(raw), headerOffset)
	}

	kind := Kind(raw[headerOffset])
	var headerSize int
	switch kind {
	case KindInteriorIndex, KindInteriorTable:
		headerSize = 12
	case KindLeafIndex, KindLeafTable:
		headerSize = 8
	default:
		return nil, dberr.Corrupt("page.Decode", "unknown page type byte 0x%02x at offset %d", raw[headerOffset], headerOffset)
	}
	if len(raw) < headerOffset+headerSize {
		return nil, dberr.Corrupt("page.Decode", "page of %d bytes too small for %d-byte header", len(raw), headerSize)
	}

	cellCount := binary.BigEndian.Uint16(raw[headerOffset+3 : headerOffset+5])

	var rightChild uint32
	if kind.IsInterior() {
		rightChild = binary.BigEndian.Uint32(raw[headerOffset+8 : headerOffset+12])
	}

	pointerStart := headerOffset + headerSize
	if len(raw) < pointerStart+int(cellCount)*2 {
		return nil, dberr.Corrupt("page.Decode", "page of %d bytes too small for %d cell pointers", len(raw), cellCount)
	}
	cells := make([]uint16, cellCount)
	for i := 0; i < int(cellCount); i++ {
		off := pointerStart + i*2
		cells[i] = binary.BigEndian.Uint16(raw[off : off+2])
	}

	return &Page{
		Kind:        kind,
		CellCount:   cellCount,
		Cells:       cells,
		RightChild:  rightChild,
		HeaderStart: headerOffset,
	}, nil
}
