package chidb

import (
	"fmt"
)

// StorageClass tags a Value's underlying representation, the three storage
// classes spec.md allows inside a record: SQL NULL, a 32-bit signed
// integer, and a UTF-8 string.
type StorageClass byte

const (
	ClassNull StorageClass = iota
	ClassInteger
	ClassText
)

// Value is a single column's worth of data, as it travels through
// registers and record payloads.
type Value struct {
	Class StorageClass
	Int   int32
	Text  string
}

func NullValue() Value            { return Value{Class: ClassNull} }
func IntValue(v int32) Value      { return Value{Class: ClassInteger, Int: v} }
func TextValue(v string) Value    { return Value{Class: ClassText, Text: v} }
func (v Value) IsNull() bool      { return v.Class == ClassNull }

// Record is the decoded form of a table leaf cell's payload: an ordered
// tuple of column values. A serial type precedes each value so a record can be
// decoded without external schema knowledge, mirroring the "declare its own
// shape" approach spec.md calls for.
type Record struct {
	Values []Value
}

// Serial type tags, each one byte, prefixed before the encoded bytes of the
// value it describes.
const (
	serialNull    byte = 0x00
	serialInteger byte = 0x01
	serialText    byte = 0x02
)

// Encode serializes the record into the byte form a TableLeafCell.Data
// holds: a 1-byte column count followed by (1-byte serial type, value
// bytes) per column. Index cells don't hold records at all — they carry a
// bare uint32 PK — so this codec is table-leaf only.
func (r *Record) Encode() []byte {
	buf := []byte{byte(len(r.Values))}
	for _, v := range r.Values {
		switch v.Class {
		case ClassNull:
			buf = append(buf, serialNull)
		case ClassInteger:
			var tmp [4]byte
			putBE32(tmp[:], uint32(v.Int))
			buf = append(buf, serialInteger)
			buf = append(buf, tmp[:]...)
		case ClassText:
			s := []byte(v.Text)
			var tmp [4]byte
			putBE32(tmp[:], uint32(len(s)))
			buf = append(buf, serialText)
			buf = append(buf, tmp[:]...)
			buf = append(buf, s...)
		}
	}
	return buf
}

// DecodeRecord parses a record payload produced by Record.Encode.
func DecodeRecord(buf []byte) (*Record, error) {
	if len(buf) == 0 {
		return &Record{}, nil
	}
	n := int(buf[0])
	r := &Record{Values: make([]Value, 0, n)}
	pos := 1
	for i := 0; i < n; i++ {
		if pos >= len(buf) {
			return nil, fmt.Errorf("%w: truncated record", ErrInvalidCell)
		}
		tag := buf[pos]
		pos++
		switch tag {
		case serialNull:
			r.Values = append(r.Values, NullValue())
		case serialInteger:
			if pos+4 > len(buf) {
				return nil, fmt.Errorf("%w: truncated integer column", ErrInvalidCell)
			}
			r.Values = append(r.Values, IntValue(int32(be32(buf[pos:]))))
			pos += 4
		case serialText:
			if pos+4 > len(buf) {
				return nil, fmt.Errorf("%w: truncated text column length", ErrInvalidCell)
			}
			size := int(be32(buf[pos:]))
			pos += 4
			if pos+size > len(buf) {
				return nil, fmt.Errorf("%w: truncated text column", ErrInvalidCell)
			}
			r.Values = append(r.Values, TextValue(string(buf[pos:pos+size])))
			pos += size
		default:
			return nil, fmt.Errorf("%w: unknown serial type 0x%02x", ErrInvalidCell, tag)
		}
	}
	return r, nil
}
