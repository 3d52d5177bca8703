// Package btree walks the table and index B-trees that make up a SQLite
// database: decoding interior pages to route to the correct child and
// leaf pages to yield cells.
package btree

import (
	"context"

	"github.com/ndyer/sqlitekit/internal/dberr"
	"github.com/ndyer/sqlitekit/internal/page"
	"github.com/ndyer/sqlitekit/internal/record"
	"github.com/ndyer/sqlitekit/internal/varint"
)

// PageSource is the subset of *pager.Pager the walkers need. Decoupling
// from the concrete pager type keeps this package testable against
// synthetic in-memory pages.
type PageSource interface {
	ReadPage(ctx context.Context, n uint32) ([]byte, error)
}

func headerOffsetFor(pageNum uint32) int {
	if pageNum == 1 {
		return 100
	}
	return 0
}

func readPage(ctx context.Context, src PageSource, pageNum uint32) (*page.Page, []byte, error) {
	raw, err := src.ReadPage(ctx, pageNum)
	if err != nil {
		return nil, nil, err
	}
	p, err := page.Decode(raw, headerOffsetFor(pageNum))
	if err != nil {
		return nil, nil, err
	}
	return p, raw, nil
}

// readPayload extracts a record payload at offset within raw, given that
// its length is prefixed by a varint. It reports Unsupported rather than
// following overflow page chains when the declared payload runs past the
// end of the page, since this reader does not implement overflow pages.
func readPayload(raw []byte, offset int) (payload []byte, next int, err error) {
	size, n, err := varint.Decode(raw, offset)
	if err != nil {
		return nil, 0, dberr.Corrupt("btree.readPayload", "read payload size varint: %v", err)
	}
	offset += n
	if offset+int(size) > len(raw) {
		return nil, 0, dberr.Unsupported("btree.readPayload", "payload of %d bytes at offset %d spills onto an overflow page", size, offset)
	}
	return raw[offset : offset+int(size)], offset + int(size), nil
}

// TableCell is a decoded row from a table B-tree leaf.
type TableCell struct {
	RowID  uint64
	Record record.Record
}

// ScanTable walks the entire table B-tree rooted at rootPage in key order
// and returns every leaf cell. Decoding is sequential: once a page is
// resident in memory there is no I/O left to overlap, so there is nothing
// for per-cell concurrency to buy.
func ScanTable(ctx context.Context, src PageSource, rootPage uint32) ([]TableCell, error) {
	var out []TableCell
	if err := scanTableInto(ctx, src, rootPage, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanTableInto(ctx context.Context, src PageSource, pageNum uint32, out *[]TableCell) error {
	if err := ctx.Err(); err != nil {
		return dberr.IO("btree.ScanTable", err)
	}

	p, raw, err := readPage(ctx, src, pageNum)
	if err != nil {
		return err
	}
	if !p.Kind.IsTable() {
		return dberr.Corrupt("btree.ScanTable", "page %d is not a table b-tree page", pageNum)
	}

	if p.Kind.IsLeaf() {
		for _, cellOffset := range p.Cells {
			cell, err := decodeTableLeafCell(raw, int(cellOffset))
			if err != nil {
				return err
			}
			*out = append(*out, cell)
		}
		return nil
	}

	for _, cellOffset := range p.Cells {
		childPage, _, err := decodeTableInteriorCell(raw, int(cellOffset))
		if err != nil {
			return err
		}
		if err := scanTableInto(ctx, src, childPage, out); err != nil {
			return err
		}
	}
	return scanTableInto(ctx, src, p.RightChild, out)
}

// FindByRowid looks up the single cell whose key equals rowid by routing
// down interior pages and binary searching within the target leaf. It
// returns ok=false, nil error when no cell has that rowid.
func FindByRowid(ctx context.Context, src PageSource, rootPage uint32, rowid uint64) (TableCell, bool, error) {
	pageNum := rootPage
	for {
		if err := ctx.Err(); err != nil {
			return TableCell{}, false, dberr.IO("btree.FindByRowid", err)
		}
		p, raw, err := readPage(ctx, src, pageNum)
		if err != nil {
			return TableCell{}, false, err
		}
		if !p.Kind.IsTable() {
			return TableCell{}, false, dberr.Corrupt("btree.FindByRowid", "page %d is not a table b-tree page", pageNum)
		}

		if p.Kind.IsLeaf() {
			lo, hi := 0, len(p.Cells)
			for lo < hi {
				mid := (lo + hi) / 2
				cell, err := decodeTableLeafCell(raw, int(p.Cells[mid]))
				if err != nil {
					return TableCell{}, false, err
				}
				switch {
				case cell.RowID == rowid:
					return cell, true, nil
				case cell.RowID < rowid:
					lo = mid + 1
				default:
					hi = mid
				}
			}
			return TableCell{}, false, nil
		}

		next := p.RightChild
		for _, cellOffset := range p.Cells {
			childPage, key, err := decodeTableInteriorCell(raw, int(cellOffset))
			if err != nil {
				return TableCell{}, false, err
			}
			if rowid <= key {
				next = childPage
				break
			}
		}
		pageNum = next
	}
}

// decodeTableLeafCell parses the table leaf cell format: varint
// payload_size, varint rowid, payload.
func decodeTableLeafCell(raw []byte, offset int) (TableCell, error) {
	payloadSize, n, err := varint.Decode(raw, offset)
	if err != nil {
		return TableCell{}, dberr.Corrupt("btree.decodeTableLeafCell", "read payload size varint: %v", err)
	}
	offset += n

	rowid, n, err := varint.Decode(raw, offset)
	if err != nil {
		return TableCell{}, dberr.Corrupt("btree.decodeTableLeafCell", "read rowid varint: %v", err)
	}
	offset += n

	if offset+int(payloadSize) > len(raw) {
		return TableCell{}, dberr.Unsupported("btree.decodeTableLeafCell", "payload of %d bytes at offset %d spills onto an overflow page", payloadSize, offset)
	}
	payload := raw[offset : offset+int(payloadSize)]

	rec, err := record.Decode(payload)
	if err != nil {
		return TableCell{}, err
	}
	return TableCell{RowID: rowid, Record: rec}, nil
}

func decodeTableInteriorCell(raw []byte, offset int) (childPage uint32, key uint64, err error) {
	if offset+4 > len(raw) {
		return 0, 0, dberr.Corrupt("btree.decodeTableInteriorCell", "cell offset %d exceeds page bounds", offset)
	}
	childPage = beUint32(raw[offset : offset+4])
	key, _, err = varint.Decode(raw, offset+4)
	if err != nil {
		return 0, 0, dberr.Corrupt("btree.decodeTableInteriorCell", "read key varint: %v", err)
	}
	return childPage, key, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
