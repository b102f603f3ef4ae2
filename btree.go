package chidb

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Node type tags, stored in the first byte of every node. These match the
// four node kinds a chidb file can contain: table nodes form the row
// storage b-tree (keyed by row number), index nodes form secondary
// structures (keyed by indexed column value), and each comes in an
// internal (has children) and leaf (holds data) flavor.
type NodeType byte

const (
	TypeTableInternal NodeType = 0x05
	TypeTableLeaf     NodeType = 0x0D
	TypeIndexInternal NodeType = 0x02
	TypeIndexLeaf     NodeType = 0x0A
)

func (t NodeType) String() string {
	switch t {
	case TypeTableInternal:
		return "table-internal"
	case TypeTableLeaf:
		return "table-leaf"
	case TypeIndexInternal:
		return "index-internal"
	case TypeIndexLeaf:
		return "index-leaf"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

func (t NodeType) IsInternal() bool {
	return t == TypeTableInternal || t == TypeIndexInternal
}

func (t NodeType) IsTable() bool {
	return t == TypeTableInternal || t == TypeTableLeaf
}

// Node header offsets, relative to the start of the node's region of the
// page (page 1's node region starts after the 100-byte file header).
const (
	nodeTypeOffset        = 0
	nodeFreeOffsetOffset  = 1
	nodeNCellsOffset      = 3
	nodeCellsOffsetOffset = 5
	nodeReservedOffset    = 7
	nodeRightPageOffset   = 8

	leafHeaderSize     = 8
	internalHeaderSize = 12

	cellPointerSize = 2

	// Fixed cell sizes. Only table-leaf varies, by its payload size; every
	// other cell variant is a fixed-width struct of page numbers and keys.
	tableInternalCellSize   = 8  // child page (4) + key (4)
	tableLeafCellHeaderSize = 8  // payload size (4) + key (4), data follows
	indexLeafCellSize       = 12 // header (4) + IdxKey (4) + PK (4)
	indexInternalCellSize   = 16 // child page (4) + pad (4) + IdxKey (4) + PK (4)
)

var cellPadding = [4]byte{0x0B, 0x03, 0x04, 0x04}

var (
	ErrInvalidPage  = errors.New("invalid page")
	ErrInvalidCell  = errors.New("invalid cell")
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate key")
	ErrEmptyBTree   = errors.New("empty b-tree")
)

// Node is an in-memory, decoded view of a single b-tree page. All
// modifications happen on this struct; BTree.writeNode serializes it back
// into the underlying MemPage.
type Node struct {
	page *MemPage

	Type        NodeType
	FreeOffset  uint16
	NCells      uint16
	CellsOffset uint16
	RightPage   uint32

	headerSize uint16
}

func (n *Node) PageNumber() uint32 { return n.page.Number() }

// Cell is a decoded tagged union over the four cell layouts. Exactly one of
// TableInternal/TableLeaf/IndexInternal/IndexLeaf is populated, selected by
// the owning node's Type.
type Cell struct {
	TableInternal *TableInternalCell
	TableLeaf     *TableLeafCell
	IndexInternal *IndexInternalCell
	IndexLeaf     *IndexLeafCell
}

func (c *Cell) Key() uint32 {
	switch {
	case c.TableInternal != nil:
		return c.TableInternal.Key
	case c.TableLeaf != nil:
		return c.TableLeaf.Key
	case c.IndexInternal != nil:
		return c.IndexInternal.Key
	case c.IndexLeaf != nil:
		return c.IndexLeaf.Key
	default:
		return 0
	}
}

func (c *Cell) ChildPage() uint32 {
	switch {
	case c.TableInternal != nil:
		return c.TableInternal.ChildPage
	case c.IndexInternal != nil:
		return c.IndexInternal.ChildPage
	default:
		return 0
	}
}

// IndexPK returns the row number an index cell's entry points at, or 0 for
// a table cell.
func (c *Cell) IndexPK() uint32 {
	switch {
	case c.IndexLeaf != nil:
		return c.IndexLeaf.PK
	case c.IndexInternal != nil:
		return c.IndexInternal.PK
	default:
		return 0
	}
}

type TableInternalCell struct {
	ChildPage uint32
	Key       uint32
}

type TableLeafCell struct {
	Key  uint32
	Data []byte
}

// IndexInternalCell's Key is the indexed column's value (IdxKey); PK is the
// row number in the associated table the index entry points at.
type IndexInternalCell struct {
	ChildPage uint32
	Key       uint32
	PK        uint32
}

// IndexLeafCell's Key is the indexed column's value (IdxKey); PK is the row
// number in the associated table the index entry points at.
type IndexLeafCell struct {
	Key uint32
	PK  uint32
}

// size returns the on-disk byte length of the cell, used both to place it
// in the cell-content area and to know how far a cell pointer's target
// extends. Every cell variant here is fixed width except table-leaf, whose
// width follows its payload.
func (c *Cell) size() uint16 {
	switch {
	case c.TableInternal != nil:
		return tableInternalCellSize
	case c.TableLeaf != nil:
		return tableLeafCellHeaderSize + uint16(len(c.TableLeaf.Data))
	case c.IndexInternal != nil:
		return indexInternalCellSize
	case c.IndexLeaf != nil:
		return indexLeafCellSize
	default:
		return 0
	}
}

// BTree is the file-level handle spec.md's BTree module describes: it owns
// a PageStore and exposes node load/store plus the find/insert/split
// algorithms that operate over it. It knows nothing about rows or records;
// TableLeafCell.Data is opaque to this layer, and Index*Cell.PK is a bare
// row pointer rather than a record it interprets.
type BTree struct {
	pager PageStore
	log   *logrus.Entry
}

// OpenFile is the convenient entry point most callers want: it opens (or
// creates) filename through the plain pass-through Pager and wraps it in a
// BTree. Use Open directly to supply a CachingPager or DirectPager instead.
func OpenFile(filename string, opts ...PagerOption) (*BTree, error) {
	pager, err := OpenPager(filename, opts...)
	if err != nil {
		return nil, err
	}
	return Open(pager, nil)
}

// Open wraps store in a BTree and ensures the file behind it carries a
// valid header and a root table-leaf node, initializing both when the file
// is empty.
func Open(store PageStore, log *logrus.Entry) (*BTree, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	bt := &BTree{pager: store, log: log}

	empty, err := store.IsEmpty()
	if err != nil {
		return nil, err
	}
	if empty {
		if err := bt.initializeHeader(); err != nil {
			return nil, err
		}
		if err := bt.initializeRoot(); err != nil {
			return nil, err
		}
		return bt, nil
	}

	if err := bt.validateHeader(); err != nil {
		return nil, err
	}
	return bt, nil
}

func (bt *BTree) initializeHeader() error {
	h := DefaultBTreeHeader()
	raw, err := h.Bytes()
	if err != nil {
		return err
	}
	return bt.pager.WriteHeader(raw)
}

func (bt *BTree) validateHeader() error {
	raw, err := bt.pager.ReadHeader()
	if err != nil {
		return err
	}
	h, err := NewBtreeHeader(raw)
	if err != nil {
		return err
	}
	// SetPageSize changes the divisor ReadPage/WritePage use to locate a
	// page within the file, so the pager's page count (computed at Open
	// time against the default page size) must be redone against the
	// real one before any page is addressed.
	if err := bt.pager.SetPageSize(h.PageSize); err != nil {
		return err
	}
	if recomputer, ok := bt.pager.(interface{ RecomputePageCount() error }); ok {
		return recomputer.RecomputePageCount()
	}
	return nil
}

func (bt *BTree) initializeRoot() error {
	page, err := bt.pager.ReadPage(1)
	if errors.Is(err, ErrIncorrectPageNumber) {
		bt.pager.AllocatePage()
		page, err = bt.pager.ReadPage(1)
	}
	if err != nil {
		return err
	}
	node := bt.newNode(page, TypeTableLeaf)
	return bt.writeNode(node)
}

// newNode initializes an in-memory node of the given type over page,
// leaving it empty (zero cells).
func (bt *BTree) newNode(page *MemPage, typ NodeType) *Node {
	headerSize := uint16(leafHeaderSize)
	if typ.IsInternal() {
		headerSize = internalHeaderSize
	}
	return &Node{
		page:        page,
		Type:        typ,
		FreeOffset:  0,
		NCells:      0,
		CellsOffset: uint16(len(page.Read())),
		headerSize:  headerSize,
	}
}

// GetNodeByPage loads and decodes the node stored in npage.
func (bt *BTree) GetNodeByPage(npage uint32) (*Node, error) {
	page, err := bt.pager.ReadPage(npage)
	if err != nil {
		return nil, fmt.Errorf("get node %d: %w", npage, err)
	}
	return bt.decodeNode(page)
}

func (bt *BTree) decodeNode(page *MemPage) (*Node, error) {
	buf := page.Read()
	if len(buf) < leafHeaderSize {
		return nil, fmt.Errorf("%w: page %d too small for node header", ErrInvalidPage, page.Number())
	}

	typ := NodeType(buf[nodeTypeOffset])
	headerSize := uint16(leafHeaderSize)
	var rightPage uint32
	if typ.IsInternal() {
		headerSize = internalHeaderSize
		rightPage = be32(buf[nodeRightPageOffset:])
	}

	return &Node{
		page:        page,
		Type:        typ,
		FreeOffset:  be16(buf[nodeFreeOffsetOffset:]),
		NCells:      be16(buf[nodeNCellsOffset:]),
		CellsOffset: be16(buf[nodeCellsOffsetOffset:]),
		RightPage:   rightPage,
		headerSize:  headerSize,
	}, nil
}

// writeNode serializes n's header fields into its backing page (the cell
// pointer array and cell bytes are already in place there) and writes the
// page through the pager.
func (bt *BTree) writeNode(n *Node) error {
	buf := n.page.Read()
	buf[nodeTypeOffset] = byte(n.Type)
	putBE16(buf[nodeFreeOffsetOffset:], n.FreeOffset)
	putBE16(buf[nodeNCellsOffset:], n.NCells)
	putBE16(buf[nodeCellsOffsetOffset:], n.CellsOffset)
	buf[nodeReservedOffset] = 0
	if n.Type.IsInternal() {
		putBE32(buf[nodeRightPageOffset:], n.RightPage)
	}
	return bt.pager.WritePage(n.page)
}

func (bt *BTree) Close() error {
	return bt.pager.Close()
}

// cellPointer returns the offset (relative to the node's region) stored in
// the i'th slot of the cell pointer array.
func (n *Node) cellPointer(i uint16) uint16 {
	off := n.headerSize + i*cellPointerSize
	return be16(n.page.Read()[off:])
}

func (n *Node) setCellPointer(i uint16, offset uint16) {
	off := n.headerSize + i*cellPointerSize
	putBE16(n.page.Read()[off:], offset)
}

// GetCell decodes the i'th cell of the node.
func (n *Node) GetCell(i uint16) (*Cell, error) {
	if i >= n.NCells {
		return nil, fmt.Errorf("%w: cell %d of %d", ErrInvalidCell, i, n.NCells)
	}
	off := n.cellPointer(i)
	buf := n.page.Read()[off:]

	switch n.Type {
	case TypeTableLeaf:
		size := be32(buf[0:])
		key, _ := getVarint32(buf[4:])
		data := make([]byte, size)
		copy(data, buf[tableLeafCellHeaderSize:int(tableLeafCellHeaderSize)+int(size)])
		return &Cell{TableLeaf: &TableLeafCell{Key: key, Data: data}}, nil

	case TypeTableInternal:
		child := be32(buf[0:])
		key, _ := getVarint32(buf[4:])
		return &Cell{TableInternal: &TableInternalCell{ChildPage: child, Key: key}}, nil

	case TypeIndexLeaf:
		key := be32(buf[4:])
		pk := be32(buf[8:])
		return &Cell{IndexLeaf: &IndexLeafCell{Key: key, PK: pk}}, nil

	case TypeIndexInternal:
		child := be32(buf[0:])
		key := be32(buf[8:])
		pk := be32(buf[12:])
		return &Cell{IndexInternal: &IndexInternalCell{ChildPage: child, Key: key, PK: pk}}, nil

	default:
		return nil, fmt.Errorf("%w: unknown node type 0x%02x", ErrInvalidPage, byte(n.Type))
	}
}

// encodeCell serializes c into buf using the layout matching its type.
func encodeCell(buf []byte, c *Cell) {
	switch {
	case c.TableLeaf != nil:
		putBE32(buf[0:], uint32(len(c.TableLeaf.Data)))
		putVarint32(buf[4:], c.TableLeaf.Key)
		copy(buf[tableLeafCellHeaderSize:], c.TableLeaf.Data)

	case c.TableInternal != nil:
		putBE32(buf[0:], c.TableInternal.ChildPage)
		putVarint32(buf[4:], c.TableInternal.Key)

	case c.IndexLeaf != nil:
		putBE32(buf[0:], 0)
		putBE32(buf[4:], c.IndexLeaf.Key)
		putBE32(buf[8:], c.IndexLeaf.PK)

	case c.IndexInternal != nil:
		putBE32(buf[0:], c.IndexInternal.ChildPage)
		copy(buf[4:8], cellPadding[:])
		putBE32(buf[8:], c.IndexInternal.Key)
		putBE32(buf[12:], c.IndexInternal.PK)
	}
}

// InsertCell inserts c as the i'th cell of n, shifting the cell pointer
// array and growing the cell-content area downward from the current
// low-water mark, exactly mirroring chidb_Btree_insertCell.
func (n *Node) InsertCell(i uint16, c *Cell) error {
	size := c.size()
	if uint32(n.CellsOffset)-uint32(size) < uint32(n.headerSize)+uint32(n.NCells+1)*cellPointerSize {
		return fmt.Errorf("%w: node full", ErrInvalidCell)
	}

	buf := n.page.Read()
	for j := n.NCells; j > i; j-- {
		n.setCellPointer(j, n.cellPointer(j-1))
	}

	newOffset := n.CellsOffset - size
	encodeCell(buf[newOffset:], c)
	n.setCellPointer(i, newOffset)
	n.CellsOffset = newOffset
	n.NCells++
	return nil
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func putBE16(b []byte, v uint16) { b[0] = byte(v >> 8); b[1] = byte(v) }
func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
