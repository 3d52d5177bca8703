package btree_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndyer/sqlitekit/internal/btree"
	"github.com/ndyer/sqlitekit/internal/page"
	"github.com/ndyer/sqlitekit/internal/varint"
)

const pageSize = 512

type fakeSource map[uint32][]byte

func (f fakeSource) ReadPage(_ context.Context, n uint32) ([]byte, error) {
	return f[n], nil
}

// encodeTextRecord builds a minimal record payload for a single TEXT column.
func encodeTextRecord(s string) []byte {
	serialType := uint64(13 + 2*len(s))
	headerTail := varint.Encode(serialType)
	headerSize := uint64(len(headerTail)) + 1
	for len(varint.Encode(headerSize)) != 1 {
		headerSize++
	}
	out := append([]byte{}, varint.Encode(headerSize)...)
	out = append(out, headerTail...)
	out = append(out, []byte(s)...)
	return out
}

func newPage(buf []byte, kind page.Kind, cellOffsets []uint16) {
	buf[0] = byte(kind)
	binary.BigEndian.PutUint16(buf[3:5], uint16(len(cellOffsets)))
	headerLen := 8
	if kind.IsInterior() {
		headerLen = 12
	}
	for i, off := range cellOffsets {
		binary.BigEndian.PutUint16(buf[headerLen+i*2:headerLen+i*2+2], off)
	}
}

func writeTableLeafCell(buf []byte, offset int, rowid uint64, payload []byte) {
	sizeVarint := varint.Encode(uint64(len(payload)))
	rowidVarint := varint.Encode(rowid)
	copy(buf[offset:], sizeVarint)
	copy(buf[offset+len(sizeVarint):], rowidVarint)
	copy(buf[offset+len(sizeVarint)+len(rowidVarint):], payload)
}

func TestScanTableSingleLeafPage(t *testing.T) {
	buf := make([]byte, pageSize)
	payloadA := encodeTextRecord("alice")
	payloadB := encodeTextRecord("bob")
	offA, offB := 400, 300
	writeTableLeafCell(buf, offA, 1, payloadA)
	writeTableLeafCell(buf, offB, 2, payloadB)
	newPage(buf, page.KindLeafTable, []uint16{uint16(offA), uint16(offB)})

	src := fakeSource{2: buf}
	cells, err := btree.ScanTable(context.Background(), src, 2)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, uint64(1), cells[0].RowID)
	assert.Equal(t, "alice", cells[0].Record.Values[0].Text)
	assert.Equal(t, uint64(2), cells[1].RowID)
	assert.Equal(t, "bob", cells[1].Record.Values[0].Text)
}

func buildLeafWithOneCell(rowid uint64, text string) []byte {
	buf := make([]byte, pageSize)
	payload := encodeTextRecord(text)
	off := pageSize - len(payload) - 10
	writeTableLeafCell(buf, off, rowid, payload)
	newPage(buf, page.KindLeafTable, []uint16{uint16(off)})
	return buf
}

func TestScanTableInteriorPageVisitsAllChildrenAndRightChild(t *testing.T) {
	leaf2 := buildLeafWithOneCell(10, "ten")
	leaf3 := buildLeafWithOneCell(20, "twenty")
	leaf4 := buildLeafWithOneCell(30, "thirty")

	root := make([]byte, pageSize)
	cellOff := 100
	binary.BigEndian.PutUint32(root[cellOff:], 3)
	keyVarint := varint.Encode(10)
	copy(root[cellOff+4:], keyVarint)

	cellOff2 := 150
	binary.BigEndian.PutUint32(root[cellOff2:], 4)
	keyVarint2 := varint.Encode(20)
	copy(root[cellOff2+4:], keyVarint2)

	binary.BigEndian.PutUint32(root[8:12], 5) // right child
	newPage(root, page.KindInteriorTable, []uint16{uint16(cellOff), uint16(cellOff2)})

	src := fakeSource{2: root, 3: leaf2, 4: leaf3, 5: leaf4}
	cells, err := btree.ScanTable(context.Background(), src, 2)
	require.NoError(t, err)
	require.Len(t, cells, 3)
	assert.Equal(t, []uint64{10, 20, 30}, []uint64{cells[0].RowID, cells[1].RowID, cells[2].RowID})
}

func TestFindByRowidLocatesMatchingLeafCell(t *testing.T) {
	buf := make([]byte, pageSize)
	p1 := encodeTextRecord("one")
	p2 := encodeTextRecord("two")
	off1, off2 := 400, 300
	writeTableLeafCell(buf, off1, 1, p1)
	writeTableLeafCell(buf, off2, 2, p2)
	newPage(buf, page.KindLeafTable, []uint16{uint16(off1), uint16(off2)})

	src := fakeSource{2: buf}
	cell, ok, err := btree.FindByRowid(context.Background(), src, 2, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", cell.Record.Values[0].Text)
}

func TestFindByRowidMissingReturnsNotOk(t *testing.T) {
	buf := buildLeafWithOneCell(5, "five")
	src := fakeSource{2: buf}
	_, ok, err := btree.FindByRowid(context.Background(), src, 2, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}
