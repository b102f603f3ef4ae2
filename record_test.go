package chidb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEncodeDecodeRoundtrip(t *testing.T) {
	rec := &Record{Values: []Value{
		IntValue(7),
		TextValue("hello"),
		NullValue(),
	}}

	buf := rec.Encode()
	decoded, err := DecodeRecord(buf)
	require.Nil(t, err)

	require.Len(t, decoded.Values, 3)
	assert.Equal(t, int32(7), decoded.Values[0].Int)
	assert.Equal(t, "hello", decoded.Values[1].Text)
	assert.True(t, decoded.Values[2].IsNull())
}

func TestDecodeRecordEmptyBuffer(t *testing.T) {
	rec, err := DecodeRecord(nil)
	require.Nil(t, err)
	assert.Empty(t, rec.Values)
}

func TestDecodeRecordTruncatedFails(t *testing.T) {
	buf := []byte{1, serialInteger, 0x00, 0x00}
	_, err := DecodeRecord(buf)
	assert.ErrorIs(t, err, ErrInvalidCell)
}
