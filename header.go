package chidb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// MagicBytes is the 16-byte string every chidb file begins with, its NUL
// terminator included.
var MagicBytes = []byte("SQLite format 3\x00")

// PageCacheSizeInitial is the page-cache-size value every header carries.
const PageCacheSizeInitial = 20000

var ErrCorruptHeader = errors.New("corrupt header")

// File header layout, all multi-byte fields big-endian, mirroring the
// on-disk format chidb_Btree_open validates byte-for-byte.
const (
	headerMagicOffset            = 0
	headerMagicLen                = 16
	headerPageSizeOffset          = 16
	headerFileFormatWriteOffset   = 18
	headerFileFormatReadOffset    = 19
	headerReservedSpaceOffset     = 20
	headerMaxPayloadFracOffset    = 21
	headerMinPayloadFracOffset    = 22
	headerLeafPayloadFracOffset   = 23
	headerFileChangeCounterOffset = 24
	headerDatabaseSizeOffset      = 28
	headerSchemaVersionOffset     = 40
	headerSchemaFormatOffset      = 44
	headerPageCacheSizeOffset     = 48
	headerUserCookieOffset        = 60
	headerTextEncodingOffset      = 56
)

// Constants the header validates against, matching the original C's
// compile-time defaults; a header that disagrees with any of these is
// corrupt, not merely a different chidb dialect.
const (
	fileFormatWrite = 1
	fileFormatRead  = 1
	reservedSpace   = 0
	maxPayloadFrac  = 0x40
	minPayloadFrac  = 0x20
	leafPayloadFrac = 0x20
	schemaFormat    = 1
	textEncodingUTF8 = 1
)

// BTreeHeader is the decoded 100-byte file header every chidb file begins
// with. Bytes re-encodes it in the exact on-disk layout.
type BTreeHeader struct {
	PageSize          uint16
	FileChangeCounter uint32
	DatabaseSizePages uint32
	SchemaVersion     uint32
	SchemaFormat      uint32
	PageCacheSize     uint32
	UserCookie        uint32
}

// DefaultBTreeHeader returns the header written for a freshly created,
// empty database file.
func DefaultBTreeHeader() *BTreeHeader {
	return &BTreeHeader{
		PageSize:      DefaultPageSize,
		DatabaseSizePages: 1,
		SchemaFormat:  schemaFormat,
		PageCacheSize: PageCacheSizeInitial,
	}
}

// Bytes encodes the header into its on-disk 100-byte representation.
func (h *BTreeHeader) Bytes() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[headerMagicOffset:headerMagicOffset+headerMagicLen], MagicBytes)
	buf[headerMagicLen-1] = 0x00

	binary.BigEndian.PutUint16(buf[headerPageSizeOffset:], h.PageSize)
	buf[headerFileFormatWriteOffset] = fileFormatWrite
	buf[headerFileFormatReadOffset] = fileFormatRead
	buf[headerReservedSpaceOffset] = reservedSpace
	buf[headerMaxPayloadFracOffset] = maxPayloadFrac
	buf[headerMinPayloadFracOffset] = minPayloadFrac
	buf[headerLeafPayloadFracOffset] = leafPayloadFrac
	binary.BigEndian.PutUint32(buf[headerFileChangeCounterOffset:], h.FileChangeCounter)
	binary.BigEndian.PutUint32(buf[headerDatabaseSizeOffset:], h.DatabaseSizePages)
	binary.BigEndian.PutUint32(buf[headerSchemaVersionOffset:], h.SchemaVersion)
	binary.BigEndian.PutUint32(buf[headerSchemaFormatOffset:], h.SchemaFormat)
	binary.BigEndian.PutUint32(buf[headerPageCacheSizeOffset:], h.PageCacheSize)
	buf[headerTextEncodingOffset] = 0
	buf[headerTextEncodingOffset+3] = textEncodingUTF8
	binary.BigEndian.PutUint32(buf[headerUserCookieOffset:], h.UserCookie)

	return buf, nil
}

// NewBtreeHeader decodes and validates a 100-byte on-disk header, returning
// ErrCorruptHeader (wrapped with the offending field) for any constant that
// doesn't match what every chidb file is required to carry.
func NewBtreeHeader(raw []byte) (*BTreeHeader, error) {
	if len(raw) != HeaderSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCorruptHeader, HeaderSize, len(raw))
	}
	if !bytes.Equal(raw[headerMagicOffset:headerMagicOffset+headerMagicLen], MagicBytes) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptHeader)
	}
	if raw[headerMagicLen-1] != 0x00 {
		return nil, fmt.Errorf("%w: bad magic terminator", ErrCorruptHeader)
	}
	if raw[headerFileFormatWriteOffset] != fileFormatWrite || raw[headerFileFormatReadOffset] != fileFormatRead {
		return nil, fmt.Errorf("%w: unsupported file format version", ErrCorruptHeader)
	}
	if raw[headerReservedSpaceOffset] != reservedSpace {
		return nil, fmt.Errorf("%w: unexpected reserved space", ErrCorruptHeader)
	}
	if raw[headerMaxPayloadFracOffset] != maxPayloadFrac ||
		raw[headerMinPayloadFracOffset] != minPayloadFrac ||
		raw[headerLeafPayloadFracOffset] != leafPayloadFrac {
		return nil, fmt.Errorf("%w: unexpected payload fraction constants", ErrCorruptHeader)
	}
	if binary.BigEndian.Uint32(raw[headerSchemaFormatOffset:]) != schemaFormat {
		return nil, fmt.Errorf("%w: unexpected schema format", ErrCorruptHeader)
	}
	if binary.BigEndian.Uint32(raw[headerTextEncodingOffset:]) != textEncodingUTF8 {
		return nil, fmt.Errorf("%w: unexpected text encoding", ErrCorruptHeader)
	}
	pageCacheSize := binary.BigEndian.Uint32(raw[headerPageCacheSizeOffset:])
	if pageCacheSize != PageCacheSizeInitial {
		return nil, fmt.Errorf("%w: page cache size %d, expected %d", ErrCorruptHeader, pageCacheSize, PageCacheSizeInitial)
	}

	return &BTreeHeader{
		PageSize:          binary.BigEndian.Uint16(raw[headerPageSizeOffset:]),
		FileChangeCounter: binary.BigEndian.Uint32(raw[headerFileChangeCounterOffset:]),
		DatabaseSizePages: binary.BigEndian.Uint32(raw[headerDatabaseSizeOffset:]),
		SchemaVersion:     binary.BigEndian.Uint32(raw[headerSchemaVersionOffset:]),
		SchemaFormat:      binary.BigEndian.Uint32(raw[headerSchemaFormatOffset:]),
		PageCacheSize:     pageCacheSize,
		UserCookie:        binary.BigEndian.Uint32(raw[headerUserCookieOffset:]),
	}, nil
}
