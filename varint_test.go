package chidb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarint32RoundtripAlwaysFourBytes(t *testing.T) {
	for _, v := range []uint32{0, 1, 42, 127, 128, 16384, 1 << 20, 0x0FFFFFFF} {
		buf := make([]byte, 4)
		n := putVarint32(buf, v)
		assert.Equal(t, 4, n)
		assert.Equal(t, 4, varint32Size(v))

		got, read := getVarint32(buf)
		assert.Equal(t, v, got)
		assert.Equal(t, 4, read)
	}
}

func TestVarint32ForcesContinuationBitOnFirstThreeBytes(t *testing.T) {
	buf := make([]byte, 4)
	putVarint32(buf, 1)
	assert.EqualValues(t, 0x80, buf[0]&0x80)
	assert.EqualValues(t, 0x80, buf[1]&0x80)
	assert.EqualValues(t, 0x80, buf[2]&0x80)
	assert.EqualValues(t, 0x00, buf[3]&0x80)
}
