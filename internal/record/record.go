// Package record decodes SQLite record payloads: a varint-prefixed header
// of serial types followed by a body of typed field values (spec.md §4.3).
package record

import (
	"math"
	"strconv"

	"github.com/ndyer/sqlitekit/internal/dberr"
	"github.com/ndyer/sqlitekit/internal/varint"
)

// Kind tags the dynamic type a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindReal
	KindText
	KindBlob
)

// Value is the tagged value variant spec.md's design notes §9 call for,
// replacing the teacher's "materialize everything to a lossy UTF-8 string"
// approach (app/values.go's SQLiteValue.String using from_utf8_lossy-style
// conversion even for integer columns).
type Value struct {
	Kind Kind
	Int  int64
	Real float64
	Text string
	Blob []byte
}

// Null is the zero Value.
var Null = Value{Kind: KindNull}

func IntValue(v int64) Value    { return Value{Kind: KindInt, Int: v} }
func RealValue(v float64) Value { return Value{Kind: KindReal, Real: v} }
func TextValue(v string) Value  { return Value{Kind: KindText, Text: v} }
func BlobValue(v []byte) Value  { return Value{Kind: KindBlob, Blob: v} }

// String renders a Value the way the CLI prints it: no quoting, no type
// markers, NULL as an empty field. Formatting lives at this one boundary
// per spec.md design notes §9 ("formats to string only at the CLI
// boundary").
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case KindText:
		return v.Text
	case KindBlob:
		return string(v.Blob)
	default:
		return ""
	}
}

// Record is a decoded record: the serial type declared for each field and
// the materialized value for each field, in declaration order.
type Record struct {
	HeaderSize  uint64
	SerialTypes []uint64
	Values      []Value
}

// SerialTypeSize returns the body size in bytes for a declared serial
// type, per the table in spec.md §3. Serial types 10 and 11 are reserved
// and reported via the ok=false / caller must treat as Unsupported.
func SerialTypeSize(serialType uint64) (size int, ok bool) {
	switch {
	case serialType <= 4:
		return int(serialType), true
	case serialType == 5:
		return 6, true
	case serialType == 6, serialType == 7:
		return 8, true
	case serialType == 8, serialType == 9:
		return 0, true
	case serialType == 10 || serialType == 11:
		return 0, false
	case serialType >= 12 && serialType%2 == 0:
		return int((serialType - 12) / 2), true
	default: // >= 13, odd
		return int((serialType - 13) / 2), true
	}
}

// Decode parses a record payload (header + body) per spec.md §4.3.
func Decode(payload []byte) (Record, error) {
	headerSize, n, err := varint.Decode(payload, 0)
	if err != nil {
		return Record{}, dberr.Corrupt("record.Decode", "read header_size varint: %v", err)
	}
	if headerSize > uint64(len(payload)) {
		return Record{}, dberr.Corrupt("record.Decode", "header_size %d exceeds payload length %d", headerSize, len(payload))
	}

	var serialTypes []uint64
	offset := n
	for uint64(offset) < headerSize {
		st, consumed, err := varint.Decode(payload, offset)
		if err != nil {
			return Record{}, dberr.Corrupt("record.Decode", "read serial type varint: %v", err)
		}
		serialTypes = append(serialTypes, st)
		offset += consumed
	}
	if uint64(offset) != headerSize {
		return Record{}, dberr.Corrupt("record.Decode", "header consumed %d bytes, header_size declared %d", offset, headerSize)
	}

	values := make([]Value, len(serialTypes))
	bodyOffset := offset
	for i, st := range serialTypes {
		size, ok := SerialTypeSize(st)
		if !ok {
			return Record{}, dberr.Unsupported("record.Decode", "reserved serial type %d", st)
		}
		if bodyOffset+size > len(payload) {
			return Record{}, dberr.Corrupt("record.Decode", "field %d needs %d bytes at offset %d, payload has %d", i, size, bodyOffset, len(payload))
		}
		values[i] = decodeField(st, payload[bodyOffset:bodyOffset+size])
		bodyOffset += size
	}

	if bodyOffset != len(payload) {
		return Record{}, dberr.Corrupt("record.Decode", "record body consumed %d of %d payload bytes", bodyOffset, len(payload))
	}

	return Record{HeaderSize: headerSize, SerialTypes: serialTypes, Values: values}, nil
}

func decodeField(serialType uint64, data []byte) Value {
	switch {
	case serialType == 0:
		return Null
	case serialType == 8:
		return IntValue(0)
	case serialType == 9:
		return IntValue(1)
	case serialType == 7:
		bits := beUint64(data, 8)
		return RealValue(math.Float64frombits(bits))
	case serialType >= 1 && serialType <= 6:
		return IntValue(signExtend(data))
	case serialType >= 12 && serialType%2 == 0:
		return BlobValue(append([]byte(nil), data...))
	default: // >= 13, odd: TEXT
		return TextValue(string(data))
	}
}

// signExtend interprets data (1, 2, 3, 4, 6, or 8 bytes) as a big-endian
// two's-complement integer and sign-extends it to int64.
func signExtend(data []byte) int64 {
	if len(data) == 0 {
		return 0
	}
	var u uint64
	for _, b := range data {
		u = (u << 8) | uint64(b)
	}
	bits := uint(len(data)) * 8
	signBit := uint64(1) << (bits - 1)
	if u&signBit != 0 {
		u |= ^uint64(0) << bits
	}
	return int64(u)
}

func beUint64(data []byte, n int) uint64 {
	var u uint64
	for i := 0; i < n; i++ {
		u = (u << 8) | uint64(data[i])
	}
	return u
}
