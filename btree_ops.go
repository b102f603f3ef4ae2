package chidb

import (
	"fmt"
)

// Find locates the cell with the given key starting from npage's subtree,
// descending via table-internal "key <= cell.key" branching or
// index-internal "key <= cell.key" branching, and returns ErrNotFound if no
// leaf cell carries an exact match. Mirrors chidb_Btree_find.
func (bt *BTree) Find(npage uint32, key uint32) (*Cell, error) {
	node, err := bt.GetNodeByPage(npage)
	if err != nil {
		return nil, err
	}

	if !node.Type.IsInternal() {
		for i := uint16(0); i < node.NCells; i++ {
			cell, err := node.GetCell(i)
			if err != nil {
				return nil, err
			}
			if cell.Key() == key {
				return cell, nil
			}
			if key < cell.Key() {
				break
			}
		}
		return nil, fmt.Errorf("%w: key %d", ErrNotFound, key)
	}

	for i := uint16(0); i < node.NCells; i++ {
		cell, err := node.GetCell(i)
		if err != nil {
			return nil, err
		}
		if key <= cell.Key() {
			return bt.Find(cell.ChildPage(), key)
		}
	}
	return bt.Find(node.RightPage, key)
}

// InsertInTable inserts (key, data) into the table rooted at npage.
func (bt *BTree) InsertInTable(npage uint32, key uint32, data []byte) error {
	return bt.insert(npage, &Cell{TableLeaf: &TableLeafCell{Key: key, Data: data}})
}

// InsertInIndex inserts (key, pk) into the index rooted at npage: key is
// the indexed column's value, pk is the row number in the associated table
// the entry points at.
func (bt *BTree) InsertInIndex(npage uint32, key uint32, pk uint32) error {
	return bt.insert(npage, &Cell{IndexLeaf: &IndexLeafCell{Key: key, PK: pk}})
}

// insert is the root-split entry point: if the root is full it is split in
// place (the root page number never changes, so every other reference to
// this table/index in the schema stays valid), otherwise it recurses
// straight into insertNonFull. Mirrors chidb_Btree_insert.
func (bt *BTree) insert(rootPage uint32, cell *Cell) error {
	root, err := bt.GetNodeByPage(rootPage)
	if err != nil {
		return err
	}

	if !nodeIsFull(root, cell) {
		return bt.insertNonFull(root, cell)
	}

	leftPage := bt.pager.AllocatePage()
	rightPage := bt.pager.AllocatePage()

	leftMem, err := bt.pager.ReadPage(leftPage)
	if err != nil {
		return err
	}
	rightMem, err := bt.pager.ReadPage(rightPage)
	if err != nil {
		return err
	}
	leafType := root.Type
	left := bt.newNode(leftMem, leafType)
	right := bt.newNode(rightMem, leafType)

	midIndex := (root.NCells - 1) / 2
	if root.Type == TypeIndexInternal || root.Type == TypeIndexLeaf {
		if midIndex > 0 {
			midIndex--
		}
	}

	for i := uint16(0); i < root.NCells; i++ {
		c, err := root.GetCell(i)
		if err != nil {
			return err
		}
		switch {
		case i < midIndex:
			if err := left.InsertCell(left.NCells, c); err != nil {
				return err
			}
		case i > midIndex:
			if err := right.InsertCell(right.NCells, c); err != nil {
				return err
			}
		default:
			if root.Type.IsTable() {
				if err := left.InsertCell(left.NCells, c); err != nil {
					return err
				}
			}
		}
	}

	median, err := root.GetCell(midIndex)
	if err != nil {
		return err
	}

	if root.Type.IsInternal() {
		left.RightPage = median.ChildPage()
		right.RightPage = root.RightPage
	}

	if err := bt.writeNode(left); err != nil {
		return err
	}
	if err := bt.writeNode(right); err != nil {
		return err
	}

	newRootType := TypeTableInternal
	if !root.Type.IsTable() {
		newRootType = TypeIndexInternal
	}
	newRoot := bt.newNode(root.page, newRootType)
	newRoot.RightPage = rightPage

	var sepCell *Cell
	if newRootType == TypeTableInternal {
		sepCell = &Cell{TableInternal: &TableInternalCell{ChildPage: leftPage, Key: median.Key()}}
	} else {
		sepCell = &Cell{IndexInternal: &IndexInternalCell{ChildPage: leftPage, Key: median.Key(), PK: median.IndexPK()}}
	}
	if err := newRoot.InsertCell(0, sepCell); err != nil {
		return err
	}
	if err := bt.writeNode(newRoot); err != nil {
		return err
	}

	if cell.Key() <= median.Key() {
		return bt.insertNonFull(left, cell)
	}
	return bt.insertNonFull(right, cell)
}

// insertNonFull inserts cell into the subtree rooted at node, assuming node
// itself has room (its children are split on demand as the recursion
// descends into them). Mirrors chidb_Btree_insertNonFull.
func (bt *BTree) insertNonFull(node *Node, cell *Cell) error {
	if !node.Type.IsInternal() {
		pos, dup := findInsertPosition(node, cell.Key())
		if dup {
			return fmt.Errorf("%w: key %d", ErrDuplicate, cell.Key())
		}
		if err := node.InsertCell(pos, cell); err != nil {
			return err
		}
		return bt.writeNode(node)
	}

	childPage, childIndex, isRight := findChild(node, cell.Key())

	child, err := bt.GetNodeByPage(childPage)
	if err != nil {
		return err
	}

	if nodeIsFull(child, cell) {
		promoted, newLeftPage, err := bt.split(child)
		if err != nil {
			return err
		}
		if isRight {
			sep := separatorCell(node.Type, newLeftPage, promoted)
			if err := node.InsertCell(node.NCells, sep); err != nil {
				return err
			}
			node.RightPage = childPage
		} else {
			sep := separatorCell(node.Type, newLeftPage, promoted)
			if err := node.InsertCell(childIndex, sep); err != nil {
				return err
			}
		}
		if err := bt.writeNode(node); err != nil {
			return err
		}
		if cell.Key() <= promoted.Key() {
			childPage = newLeftPage
		}
		child, err = bt.GetNodeByPage(childPage)
		if err != nil {
			return err
		}
	}

	return bt.insertNonFull(child, cell)
}

func separatorCell(parentType NodeType, leftPage uint32, promoted *Cell) *Cell {
	if parentType == TypeTableInternal {
		return &Cell{TableInternal: &TableInternalCell{ChildPage: leftPage, Key: promoted.Key()}}
	}
	return &Cell{IndexInternal: &IndexInternalCell{ChildPage: leftPage, Key: promoted.Key(), PK: promoted.IndexPK()}}
}

// split splits a full, non-root node in place: a fresh page is allocated
// for the left half, the input page is reinitialized as the right half, and
// the median cell is returned for the caller to promote into the parent.
// Mirrors chidb_Btree_split.
func (bt *BTree) split(node *Node) (median *Cell, leftPage uint32, err error) {
	leftPage = bt.pager.AllocatePage()
	leftMem, err := bt.pager.ReadPage(leftPage)
	if err != nil {
		return nil, 0, err
	}
	left := bt.newNode(leftMem, node.Type)

	origPage := node.page
	rightMem, err := bt.pager.ReadPage(origPage.Number())
	if err != nil {
		return nil, 0, err
	}
	right := bt.newNode(rightMem, node.Type)

	midIndex := (node.NCells - 1) / 2
	if !node.Type.IsTable() {
		if midIndex > 0 {
			midIndex--
		}
	}

	for i := uint16(0); i < node.NCells; i++ {
		c, cerr := node.GetCell(i)
		if cerr != nil {
			return nil, 0, cerr
		}
		switch {
		case i < midIndex:
			if err := left.InsertCell(left.NCells, c); err != nil {
				return nil, 0, err
			}
		case i > midIndex:
			if err := right.InsertCell(right.NCells, c); err != nil {
				return nil, 0, err
			}
		default:
			median = c
			if node.Type.IsTable() {
				if err := left.InsertCell(left.NCells, c); err != nil {
					return nil, 0, err
				}
			}
		}
	}

	if node.Type.IsInternal() {
		left.RightPage = median.ChildPage()
		right.RightPage = node.RightPage
	}

	if err := bt.writeNode(left); err != nil {
		return nil, 0, err
	}
	if err := bt.writeNode(right); err != nil {
		return nil, 0, err
	}

	return median, leftPage, nil
}

// CreateTable allocates a fresh page and initializes it as an empty
// table-leaf node, returning its page number for use as a new table's root.
func (bt *BTree) CreateTable() (uint32, error) {
	return bt.createRoot(TypeTableLeaf)
}

// CreateIndex allocates a fresh page and initializes it as an empty
// index-leaf node, returning its page number for use as a new index's root.
func (bt *BTree) CreateIndex() (uint32, error) {
	return bt.createRoot(TypeIndexLeaf)
}

func (bt *BTree) createRoot(typ NodeType) (uint32, error) {
	npage := bt.pager.AllocatePage()
	page, err := bt.pager.ReadPage(npage)
	if err != nil {
		return 0, err
	}
	node := bt.newNode(page, typ)
	if err := bt.writeNode(node); err != nil {
		return 0, err
	}
	return npage, nil
}

// findChild returns which child of an internal node a key routes to: the
// page number, the cell index it was found at (meaningless when isRight is
// true), and whether it routes through the right-page pointer.
func findChild(node *Node, key uint32) (page uint32, index uint16, isRight bool) {
	for i := uint16(0); i < node.NCells; i++ {
		cell, err := node.GetCell(i)
		if err != nil {
			return node.RightPage, 0, true
		}
		if node.Type == TypeTableInternal {
			if key <= cell.Key() {
				return cell.ChildPage(), i, false
			}
		} else {
			if key < cell.Key() {
				return cell.ChildPage(), i, false
			}
		}
	}
	return node.RightPage, node.NCells, true
}

// findInsertPosition scans a leaf for the sorted position a new key
// belongs at, reporting a duplicate if an identical key already exists.
func findInsertPosition(node *Node, key uint32) (pos uint16, duplicate bool) {
	for i := uint16(0); i < node.NCells; i++ {
		cell, err := node.GetCell(i)
		if err != nil {
			return node.NCells, false
		}
		if cell.Key() == key {
			return i, true
		}
		if key < cell.Key() {
			return i, false
		}
	}
	return node.NCells, false
}

// nodeIsFull reports whether inserting cell would not fit in node's
// remaining cell-content space.
func nodeIsFull(node *Node, cell *Cell) bool {
	needed := uint32(cell.size()) + cellPointerSize
	available := uint32(node.CellsOffset) - uint32(node.headerSize) - uint32(node.NCells)*cellPointerSize
	return needed > available
}
