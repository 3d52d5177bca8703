package btree_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndyer/sqlitekit/internal/btree"
	"github.com/ndyer/sqlitekit/internal/page"
	"github.com/ndyer/sqlitekit/internal/record"
	"github.com/ndyer/sqlitekit/internal/varint"
)

// encodeIndexRecord builds a record payload for a single TEXT key column
// followed by an INTEGER rowid, matching the on-disk shape of an index
// entry (sqlite stores the rowid as the trailing record field).
func encodeIndexRecord(key string, rowid uint64) []byte {
	keySerial := uint64(13 + 2*len(key))
	rowidBytes := minimalIntBytes(rowid)
	rowidSerial := serialTypeForIntWidth(len(rowidBytes))

	headerTail := append(varint.Encode(keySerial), varint.Encode(rowidSerial)...)
	headerSize := uint64(len(headerTail)) + 1
	for len(varint.Encode(headerSize)) != 1 {
		headerSize++
	}
	out := append([]byte{}, varint.Encode(headerSize)...)
	out = append(out, headerTail...)
	out = append(out, []byte(key)...)
	out = append(out, rowidBytes...)
	return out
}

func minimalIntBytes(v uint64) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func serialTypeForIntWidth(n int) uint64 {
	switch n {
	case 1:
		return 1
	case 2:
		return 2
	case 4:
		return 4
	default:
		return 6
	}
}

func writeIndexLeafCell(buf []byte, offset int, payload []byte) {
	sizeVarint := varint.Encode(uint64(len(payload)))
	copy(buf[offset:], sizeVarint)
	copy(buf[offset+len(sizeVarint):], payload)
}

func TestScanIndexSingleLeafPage(t *testing.T) {
	buf := make([]byte, pageSize)
	p1 := encodeIndexRecord("apple", 1)
	p2 := encodeIndexRecord("banana", 2)
	off1, off2 := 300, 200
	writeIndexLeafCell(buf, off1, p1)
	writeIndexLeafCell(buf, off2, p2)
	newPage(buf, page.KindLeafIndex, []uint16{uint16(off2), uint16(off1)})

	src := fakeSource{2: buf}
	cells, err := btree.ScanIndex(context.Background(), src, 2)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, "banana", cells[0].Key[0].Text)
	assert.Equal(t, uint64(2), cells[0].RowID)
	assert.Equal(t, "apple", cells[1].Key[0].Text)
	assert.Equal(t, uint64(1), cells[1].RowID)
}

func buildIndexLeaf(entries []struct {
	key   string
	rowid uint64
}) []byte {
	buf := make([]byte, pageSize)
	offsets := make([]uint16, len(entries))
	cursor := pageSize - 10
	for i, e := range entries {
		payload := encodeIndexRecord(e.key, e.rowid)
		cursor -= len(payload) + 1 // + the 1-byte payload size varint
		writeIndexLeafCell(buf, cursor, payload)
		offsets[i] = uint16(cursor)
	}
	newPage(buf, page.KindLeafIndex, offsets)
	return buf
}

func TestFindByIndexKeyExactMatch(t *testing.T) {
	leaf := buildIndexLeaf([]struct {
		key   string
		rowid uint64
	}{{"apple", 1}, {"banana", 2}, {"cherry", 3}})

	src := fakeSource{2: leaf}
	matches, err := btree.FindByIndexKey(context.Background(), src, 2, []record.Value{record.TextValue("banana")})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint64(2), matches[0].RowID)
}

func TestFindByIndexKeySpansLeafBoundaryForDuplicates(t *testing.T) {
	// The separator entry (dup, rowid=2) lives only in the interior cell,
	// as a real index b-tree stores it: each entry appears exactly once,
	// never duplicated onto a leaf. So {1,2,3} is only reachable if the
	// interior separator itself is collected as a match.
	leafA := buildIndexLeaf([]struct {
		key   string
		rowid uint64
	}{{"dup", 1}})
	leafB := buildIndexLeaf([]struct {
		key   string
		rowid uint64
	}{{"dup", 3}, {"zzz", 4}})

	root := make([]byte, pageSize)
	cellOff := 100
	binary.BigEndian.PutUint32(root[cellOff:], 3)
	payload := encodeIndexRecord("dup", 2)
	copy(root[cellOff+4:], append(varint.Encode(uint64(len(payload))), payload...))
	binary.BigEndian.PutUint32(root[8:12], 4) // right child
	newPage(root, page.KindInteriorIndex, []uint16{uint16(cellOff)})

	src := fakeSource{2: root, 3: leafA, 4: leafB}
	matches, err := btree.FindByIndexKey(context.Background(), src, 2, []record.Value{record.TextValue("dup")})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	rowids := []uint64{matches[0].RowID, matches[1].RowID, matches[2].RowID}
	assert.ElementsMatch(t, []uint64{1, 2, 3}, rowids)
}

func TestFindByIndexKeyNoMatchReturnsEmpty(t *testing.T) {
	leaf := buildIndexLeaf([]struct {
		key   string
		rowid uint64
	}{{"apple", 1}, {"banana", 2}})

	src := fakeSource{2: leaf}
	matches, err := btree.FindByIndexKey(context.Background(), src, 2, []record.Value{record.TextValue("zzz")})
	require.NoError(t, err)
	assert.Empty(t, matches)
}
