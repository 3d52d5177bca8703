package btree

import (
	"context"

	"github.com/ndyer/sqlitekit/internal/dberr"
	"github.com/ndyer/sqlitekit/internal/page"
	"github.com/ndyer/sqlitekit/internal/record"
)

// IndexCell is a decoded entry from an index B-tree leaf: the indexed
// column values (every record field except the trailing rowid) plus the
// rowid of the table row they point at.
type IndexCell struct {
	Key   []record.Value
	RowID uint64
}

// ScanIndex walks the entire index B-tree rooted at rootPage in key order.
func ScanIndex(ctx context.Context, src PageSource, rootPage uint32) ([]IndexCell, error) {
	var out []IndexCell
	if err := scanIndexInto(ctx, src, rootPage, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanIndexInto(ctx context.Context, src PageSource, pageNum uint32, out *[]IndexCell) error {
	if err := ctx.Err(); err != nil {
		return dberr.IO("btree.ScanIndex", err)
	}
	p, raw, err := readPage(ctx, src, pageNum)
	if err != nil {
		return err
	}
	if !p.Kind.IsIndex() {
		return dberr.Corrupt("btree.ScanIndex", "page %d is not an index b-tree page", pageNum)
	}

	if p.Kind.IsLeaf() {
		for _, cellOffset := range p.Cells {
			cell, err := decodeIndexCellPayload(raw, int(cellOffset))
			if err != nil {
				return err
			}
			*out = append(*out, cell)
		}
		return nil
	}

	// An interior cell's payload is a genuine index entry (key + rowid),
	// not a copy of something stored in a leaf, so it is emitted in its
	// in-order position: after its left child's subtree, before its
	// right neighbor's.
	for _, cellOffset := range p.Cells {
		childPage, cell, err := decodeIndexInteriorCell(raw, int(cellOffset))
		if err != nil {
			return err
		}
		if err := scanIndexInto(ctx, src, childPage, out); err != nil {
			return err
		}
		*out = append(*out, cell)
	}
	return scanIndexInto(ctx, src, p.RightChild, out)
}

// ancestorFrame records an interior page visited on the way down and how
// far through its children the walk has progressed, so a leaf that runs
// out of matching keys can climb back up and continue into the next
// sibling subtree without restarting the search from the root.
type ancestorFrame struct {
	pageNum uint32
	nextIdx int // index of the next not-yet-taken cell; len(cells) means "take RightChild next", len(cells)+1 means exhausted
}

// FindByIndexKey returns every entry whose leading key columns equal key,
// by descending to the first candidate leaf and then walking forward
// across leaf boundaries to pick up duplicate keys that SQLite may split
// across adjacent pages. The teacher's index search stops at the first
// leaf it reaches and misses duplicates spilling onto a sibling page;
// this keeps an ancestor path so it can continue the walk rightward.
func FindByIndexKey(ctx context.Context, src PageSource, rootPage uint32, key []record.Value) ([]IndexCell, error) {
	var path []ancestorFrame
	pageNum := rootPage
	var matches []IndexCell

	for {
		p, raw, err := readPage(ctx, src, pageNum)
		if err != nil {
			return nil, err
		}
		if !p.Kind.IsIndex() {
			return nil, dberr.Corrupt("btree.FindByIndexKey", "page %d is not an index b-tree page", pageNum)
		}

		if p.Kind.IsLeaf() {
			stop := false
			for _, cellOffset := range p.Cells {
				cell, err := decodeIndexCellPayload(raw, int(cellOffset))
				if err != nil {
					return nil, err
				}
				cmp := compareKeyPrefix(cell.Key, key)
				if cmp == 0 {
					matches = append(matches, cell)
				} else if cmp > 0 {
					stop = true
					break
				}
			}
			if stop {
				return matches, nil
			}
			next, ok, err := climbToNextLeaf(ctx, src, &path, key, &matches)
			if err != nil {
				return nil, err
			}
			if !ok {
				return matches, nil
			}
			pageNum = next
			continue
		}

		childPage, idx, cell, hasCell, err := firstChildAtOrAfter(raw, p, key)
		if err != nil {
			return nil, err
		}
		// The separator cell itself is a genuine index entry, not a
		// routing copy of something stored in a leaf, so an exact match
		// here is a result in its own right.
		if hasCell && compareKeyPrefix(cell.Key, key) == 0 {
			matches = append(matches, cell)
		}
		path = append(path, ancestorFrame{pageNum: pageNum, nextIdx: idx + 1})
		pageNum = childPage
	}
}

// firstChildAtOrAfter returns the child to descend into for key: the
// child left of the first cell whose key is >= the search key, or the
// rightmost child if every cell's key is smaller. idx is that cell's
// index (len(p.Cells) when RightChild was chosen). hasCell is false
// when RightChild was chosen, since there is no separator cell to test.
func firstChildAtOrAfter(raw []byte, p *page.Page, key []record.Value) (childPage uint32, idx int, cell IndexCell, hasCell bool, err error) {
	for i, cellOffset := range p.Cells {
		cp, c, err := decodeIndexInteriorCell(raw, int(cellOffset))
		if err != nil {
			return 0, 0, IndexCell{}, false, err
		}
		if compareKeyPrefix(c.Key, key) >= 0 {
			return cp, i, c, true, nil
		}
	}
	return p.RightChild, len(p.Cells), IndexCell{}, false, nil
}

// climbToNextLeaf walks back up path looking for an ancestor with an
// unvisited child, then descends that child's leftmost spine to reach
// the next leaf in key order. The separator cell at each hop taken along
// the way is a genuine index entry and is collected into matches when it
// equals key. ok is false once the path is exhausted.
func climbToNextLeaf(ctx context.Context, src PageSource, path *[]ancestorFrame, key []record.Value, matches *[]IndexCell) (uint32, bool, error) {
	for len(*path) > 0 {
		top := (*path)[len(*path)-1]
		*path = (*path)[:len(*path)-1]

		p, raw, err := readPage(ctx, src, top.pageNum)
		if err != nil {
			return 0, false, err
		}

		var childPage uint32
		var nextIdx int
		switch {
		case top.nextIdx < len(p.Cells):
			cp, cell, err := decodeIndexInteriorCell(raw, int(p.Cells[top.nextIdx]))
			if err != nil {
				return 0, false, err
			}
			if compareKeyPrefix(cell.Key, key) == 0 {
				*matches = append(*matches, cell)
			}
			childPage = cp
			nextIdx = top.nextIdx + 1
		case top.nextIdx == len(p.Cells):
			childPage = p.RightChild
			nextIdx = len(p.Cells) + 1
		default:
			continue // this ancestor is exhausted, keep climbing
		}

		*path = append(*path, ancestorFrame{pageNum: top.pageNum, nextIdx: nextIdx})
		return descendLeftmost(ctx, src, childPage, path, key, matches)
	}
	return 0, false, nil
}

// descendLeftmost follows the first child at every interior page starting
// at pageNum, pushing an ancestorFrame for each, until it reaches a leaf.
// Each leftmost separator cell passed over is checked against key and
// collected into matches when equal, same as climbToNextLeaf's own hop.
func descendLeftmost(ctx context.Context, src PageSource, pageNum uint32, path *[]ancestorFrame, key []record.Value, matches *[]IndexCell) (uint32, bool, error) {
	for {
		p, raw, err := readPage(ctx, src, pageNum)
		if err != nil {
			return 0, false, err
		}
		if p.Kind.IsLeaf() {
			return pageNum, true, nil
		}
		if len(p.Cells) == 0 {
			*path = append(*path, ancestorFrame{pageNum: pageNum, nextIdx: 1})
			pageNum = p.RightChild
			continue
		}
		childPage, cell, err := decodeIndexInteriorCell(raw, int(p.Cells[0]))
		if err != nil {
			return 0, false, err
		}
		if compareKeyPrefix(cell.Key, key) == 0 {
			*matches = append(*matches, cell)
		}
		*path = append(*path, ancestorFrame{pageNum: pageNum, nextIdx: 1})
		pageNum = childPage
	}
}

func decodeIndexCellPayload(raw []byte, offset int) (IndexCell, error) {
	payload, _, err := readPayload(raw, offset)
	if err != nil {
		return IndexCell{}, err
	}
	rec, err := record.Decode(payload)
	if err != nil {
		return IndexCell{}, err
	}
	if len(rec.Values) == 0 {
		return IndexCell{}, dberr.Corrupt("btree.decodeIndexCellPayload", "index record has no fields")
	}
	rowidValue := rec.Values[len(rec.Values)-1]
	return IndexCell{Key: rec.Values[:len(rec.Values)-1], RowID: uint64(rowidValue.Int)}, nil
}

// decodeIndexInteriorCell parses the interior index cell format: 4-byte
// child page number, varint payload_size, payload (key columns + rowid).
// The returned cell is a real index entry in its own right, not a routing
// copy of a leaf entry, so callers must treat it as a candidate match.
func decodeIndexInteriorCell(raw []byte, offset int) (childPage uint32, cell IndexCell, err error) {
	if offset+4 > len(raw) {
		return 0, IndexCell{}, dberr.Corrupt("btree.decodeIndexInteriorCell", "cell offset %d exceeds page bounds", offset)
	}
	childPage = beUint32(raw[offset : offset+4])
	cell, err = decodeIndexCellPayload(raw, offset+4)
	if err != nil {
		return 0, IndexCell{}, err
	}
	return childPage, cell, nil
}

// compareKeyPrefix compares the leading len(search) columns of key
// against search, returning <0, 0, >0. Columns compare by kind: integers
// and reals numerically, text and blob byte-wise.
func compareKeyPrefix(key, search []record.Value) int {
	n := len(search)
	if len(key) < n {
		n = len(key)
	}
	for i := 0; i < n; i++ {
		if c := compareValue(key[i], search[i]); c != 0 {
			return c
		}
	}
	return 0
}

func compareValue(a, b record.Value) int {
	switch {
	case a.Kind == record.KindInt && b.Kind == record.KindInt:
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	case isNumeric(a) && isNumeric(b):
		av, bv := numericValue(a), numericValue(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case a.Kind == record.KindText && b.Kind == record.KindText:
		return compareString(a.Text, b.Text)
	case a.Kind == record.KindBlob && b.Kind == record.KindBlob:
		return compareBytes(a.Blob, b.Blob)
	default:
		return int(a.Kind) - int(b.Kind)
	}
}

func isNumeric(v record.Value) bool {
	return v.Kind == record.KindInt || v.Kind == record.KindReal
}

func numericValue(v record.Value) float64 {
	if v.Kind == record.KindInt {
		return float64(v.Int)
	}
	return v.Real
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}
