// Package varint decodes and encodes the SQLite file format's variable
// length integer: 1 to 9 big-endian bytes, the high bit of each of the
// first eight bytes is a continuation flag, and a ninth byte (if reached)
// contributes all eight of its bits.
package varint

import "github.com/ndyer/sqlitekit/internal/dberr"

// MaxLen is the longest a varint can be.
const MaxLen = 9

// Decode reads a varint starting at buf[start] and returns its value and
// the number of bytes consumed (1..9). It fails with a Corrupt dberr.Error
// if buf is too short to hold the varint it started reading.
func Decode(buf []byte, start int) (value uint64, consumed int, err error) {
	if start < 0 || start >= len(buf) {
		return 0, 0, dberr.Corrupt("varint.Decode", "start %d out of range for %d-byte buffer", start, len(buf))
	}

	var result uint64
	for i := 0; i < MaxLen; i++ {
		idx := start + i
		if idx >= len(buf) {
			return 0, 0, dberr.Corrupt("varint.Decode", "buffer truncated after %d of up to %d varint bytes", i, MaxLen)
		}
		b := buf[idx]
		if i == MaxLen-1 {
			result = (result << 8) | uint64(b)
			return result, i + 1, nil
		}
		result = (result << 7) | uint64(b&0x7f)
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
	}
	// unreachable: the loop always returns by i == MaxLen-1
	return result, MaxLen, nil
}

// Encode produces the canonical varint encoding of v. It is the inverse of
// Decode and exists to support the round-trip law in spec.md §8: for all
// v, Decode(Encode(v)) == (v, len(Encode(v))).
func Encode(v uint64) []byte {
	const low56Mask = (uint64(1) << 56) - 1

	// Once v needs more than 56 bits, the format always spends the full
	// 9 bytes. Decode treats the first 8 bytes as 7-bit groups folded
	// into a running value and the 9th byte as 8 more bits folded in the
	// same way, so the top 56 bits of v go out as 8 continuation-set
	// septets and the low 8 bits go verbatim into the final byte.
	if v > low56Mask {
		high56 := v >> 8
		out := make([]byte, MaxLen)
		for i := 7; i >= 0; i-- {
			out[i] = byte(high56&0x7f) | 0x80
			high56 >>= 7
		}
		out[8] = byte(v)
		return out
	}

	var tmp [8]byte
	n := 0
	for {
		tmp[n] = byte(v & 0x7f)
		v >>= 7
		n++
		if v == 0 {
			break
		}
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b := tmp[n-1-i]
		if i != n-1 {
			b |= 0x80
		}
		out[i] = b
	}
	return out
}
