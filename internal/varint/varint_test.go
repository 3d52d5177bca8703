package varint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndyer/sqlitekit/internal/varint"
)

func TestDecodeSingleByte(t *testing.T) {
	value, n, err := varint.Decode([]byte{0x05}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), value)
	assert.Equal(t, 1, n)
}

func TestDecodeMultiByte(t *testing.T) {
	// 0x81 0x00 => continuation bit set then a zero byte: value = (1<<7)|0 = 128
	value, n, err := varint.Decode([]byte{0x81, 0x00}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(128), value)
	assert.Equal(t, 2, n)
}

func TestDecodeNinthByteUsesFullByte(t *testing.T) {
	buf := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	value, n, err := varint.Decode(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, uint64(0xffffffffffffffff), value)
}

func TestDecodeAtOffset(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x7f}
	value, n, err := varint.Decode(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7f), value)
	assert.Equal(t, 1, n)
}

func TestDecodeTruncatedBufferIsCorrupt(t *testing.T) {
	_, _, err := varint.Decode([]byte{0x80, 0x80}, 0)
	require.Error(t, err)
}

func TestDecodeStartOutOfRange(t *testing.T) {
	_, _, err := varint.Decode([]byte{0x01}, 5)
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127, 128, 129, 255, 256,
		1 << 13, 1 << 14, 1<<21 - 1, 1 << 21,
		1<<28 - 1, 1 << 28, 1<<35 - 1, 1 << 35,
		1<<42 - 1, 1 << 42, 1<<49 - 1, 1 << 49,
		1<<56 - 1, 1 << 56, 1<<56 + 1,
		1<<63 - 1, 1 << 63, 0xffffffffffffffff,
	}
	for _, v := range values {
		encoded := varint.Encode(v)
		require.LessOrEqual(t, len(encoded), varint.MaxLen)
		decoded, n, err := varint.Decode(encoded, 0)
		require.NoError(t, err)
		assert.Equal(t, v, decoded, "value %d", v)
		assert.Equal(t, len(encoded), n, "value %d", v)
	}
}

func TestEncodeMinimalLength(t *testing.T) {
	assert.Len(t, varint.Encode(0), 1)
	assert.Len(t, varint.Encode(127), 1)
	assert.Len(t, varint.Encode(128), 2)
	assert.Len(t, varint.Encode(1<<56-1), 8)
	assert.Len(t, varint.Encode(1<<56), 9)
}
