package chidb

// Table cells store their key using the same 7-bit-per-byte encoding sqlite
// varints use, but chidb's original C fixes the width at exactly 4 bytes
// rather than letting it shrink for small keys: the continuation bit on the
// first three bytes is forced on unconditionally, regardless of the value's
// magnitude (original_source/src/libchidb/btree.c's TABLEINTCELL/
// TABLELEAFCELL key decode always reads 4 bytes and always shifts
// (byte & 0x7f) into bits 21/14/7/0). Table-internal and table-leaf cells
// are fixed width as a result (spec.md §4.2: table-internal = 8,
// table-leaf = 8 + data-size), matching the fixed widths every other cell
// variant already has.

// putVarint32 encodes v into the 4 bytes at buf[0:4] using chidb's
// always-4-byte continuation encoding.
func putVarint32(buf []byte, v uint32) int {
	buf[0] = byte((v>>21)&0x7f) | 0x80
	buf[1] = byte((v>>14)&0x7f) | 0x80
	buf[2] = byte((v>>7)&0x7f) | 0x80
	buf[3] = byte(v & 0x7f)
	return 4
}

// getVarint32 decodes the 4 bytes at buf[0:4] encoded by putVarint32.
func getVarint32(buf []byte) (uint32, int) {
	v := uint32(buf[0]&0x7f)<<21 |
		uint32(buf[1]&0x7f)<<14 |
		uint32(buf[2]&0x7f)<<7 |
		uint32(buf[3]&0x7f)
	return v, 4
}

// varint32Size is always 4: chidb's table-cell key encoding never varies
// with the key's magnitude.
func varint32Size(uint32) int {
	return 4
}
