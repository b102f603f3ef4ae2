package chidb

import "fmt"

type CursorType int

const (
	CursorUnspecified CursorType = iota
	CursorRead
	CursorWrite
)

// cursorFrame is one level of the path stack a Cursor maintains from the
// root of its b-tree down to the leaf its current cell lives in.
type cursorFrame struct {
	node    *Node
	ncell   uint16
	isRight bool
	parent  *cursorFrame
}

// Cursor walks a single table or index b-tree in key order. It holds no
// lock and assumes nothing else mutates the tree while it's live, matching
// spec's non-goal of concurrent multi-cursor mutation.
type Cursor struct {
	bt     *BTree
	typ    CursorType
	root   uint32
	colNum uint32

	top *cursorFrame
}

// OpenCursor creates a cursor over the tree rooted at root, positioned
// nowhere until Rewind or one of the Seek variants is called.
func OpenCursor(bt *BTree, typ CursorType, root uint32, colNum uint32) *Cursor {
	return &Cursor{bt: bt, typ: typ, root: root, colNum: colNum}
}

func (c *Cursor) Close() {
	c.top = nil
}

func (c *Cursor) push(node *Node, ncell uint16, isRight bool) {
	c.top = &cursorFrame{node: node, ncell: ncell, isRight: isRight, parent: c.top}
}

func (c *Cursor) pop() *cursorFrame {
	f := c.top
	if f != nil {
		c.top = f.parent
	}
	return f
}

// Rewind positions the cursor on the first (leftmost) cell of the tree.
// Mirrors chidb_cursor_rewind.
func (c *Cursor) Rewind() error {
	c.top = nil
	npage := c.root

	for {
		node, err := c.bt.GetNodeByPage(npage)
		if err != nil {
			return err
		}
		if node.NCells == 0 {
			c.push(node, 0, false)
			return ErrEmptyBTree
		}
		c.push(node, 0, false)
		if !node.Type.IsInternal() {
			return nil
		}
		cell, err := node.GetCell(0)
		if err != nil {
			return err
		}
		npage = cell.ChildPage()
	}
}

// Cell returns the cell the cursor currently rests on.
func (c *Cursor) Cell() (*Cell, error) {
	if c.top == nil {
		return nil, fmt.Errorf("%w: cursor not positioned", ErrInvalidCell)
	}
	return c.top.node.GetCell(c.top.ncell)
}

// descendLeftmost pushes frames from npage down to the leftmost leaf, used
// after Next moves into a new subtree.
func (c *Cursor) descendLeftmost(npage uint32) error {
	for {
		node, err := c.bt.GetNodeByPage(npage)
		if err != nil {
			return err
		}
		c.push(node, 0, false)
		if !node.Type.IsInternal() {
			return nil
		}
		cell, err := node.GetCell(0)
		if err != nil {
			return err
		}
		npage = cell.ChildPage()
	}
}

// descendRightmost pushes frames from npage down to the rightmost leaf,
// used after Prev moves into a new subtree.
func (c *Cursor) descendRightmost(npage uint32) error {
	for {
		node, err := c.bt.GetNodeByPage(npage)
		if err != nil {
			return err
		}
		if !node.Type.IsInternal() {
			if node.NCells > 0 {
				c.push(node, node.NCells-1, false)
			} else {
				c.push(node, 0, false)
			}
			return nil
		}
		c.push(node, node.NCells, true)
		npage = node.RightPage
	}
}

// Next advances the cursor to the following cell in key order. Mirrors
// chidb_cursor_next.
func (c *Cursor) Next() error {
	if c.top == nil {
		return fmt.Errorf("%w: cursor not positioned", ErrInvalidCell)
	}

	if c.top.ncell+1 < c.top.node.NCells {
		c.top.ncell++
		if c.top.node.Type.IsInternal() {
			cell, err := c.top.node.GetCell(c.top.ncell)
			if err != nil {
				return err
			}
			return c.descendLeftmost(cell.ChildPage())
		}
		return nil
	}

	for {
		f := c.pop()
		if f == nil {
			return fmt.Errorf("%w: past end", ErrNotFound)
		}
		if f.isRight {
			continue
		}
		if f.node.Type.IsInternal() {
			if f.ncell+1 < f.node.NCells {
				c.push(f.node, f.ncell+1, false)
				cell, err := f.node.GetCell(f.ncell + 1)
				if err != nil {
					return err
				}
				return c.descendLeftmost(cell.ChildPage())
			}
			c.push(f.node, f.node.NCells, true)
			return c.descendLeftmost(f.node.RightPage)
		}
	}
}

// Prev retreats the cursor to the preceding cell in key order. Mirrors
// chidb_cursor_prev.
func (c *Cursor) Prev() error {
	if c.top == nil {
		return fmt.Errorf("%w: cursor not positioned", ErrInvalidCell)
	}

	if c.top.ncell > 0 {
		c.top.ncell--
		if c.top.node.Type.IsInternal() {
			cell, err := c.top.node.GetCell(c.top.ncell)
			if err != nil {
				return err
			}
			return c.descendRightmost(cell.ChildPage())
		}
		return nil
	}

	for {
		f := c.pop()
		if f == nil {
			return fmt.Errorf("%w: before start", ErrNotFound)
		}
		if f.node.Type.IsInternal() && f.ncell > 0 {
			c.push(f.node, f.ncell-1, false)
			cell, err := f.node.GetCell(f.ncell - 1)
			if err != nil {
				return err
			}
			return c.descendRightmost(cell.ChildPage())
		}
	}
}

// Seek positions the cursor on the cell with an exact key match, returning
// ErrNotFound if none exists.
func (c *Cursor) Seek(key uint32) error {
	if err := c.Rewind(); err != nil && err != ErrEmptyBTree {
		return err
	}
	for {
		cell, err := c.Cell()
		if err != nil {
			return err
		}
		if cell.Key() == key {
			return nil
		}
		if err := c.Next(); err != nil {
			return fmt.Errorf("%w: key %d", ErrNotFound, key)
		}
	}
}

// SeekGT positions the cursor on the first cell with key strictly greater
// than key.
func (c *Cursor) SeekGT(key uint32) error {
	if err := c.Rewind(); err != nil && err != ErrEmptyBTree {
		return err
	}
	for {
		cell, err := c.Cell()
		if err != nil {
			return err
		}
		if key < cell.Key() {
			return nil
		}
		if err := c.Next(); err != nil {
			return fmt.Errorf("%w: no key greater than %d", ErrNotFound, key)
		}
	}
}

// SeekGE positions the cursor on the first cell with key greater than or
// equal to key.
func (c *Cursor) SeekGE(key uint32) error {
	if err := c.Rewind(); err != nil && err != ErrEmptyBTree {
		return err
	}
	for {
		cell, err := c.Cell()
		if err != nil {
			return err
		}
		if cell.Key() == key {
			return nil
		}
		if key < cell.Key() {
			return nil
		}
		if err := c.Next(); err != nil {
			return fmt.Errorf("%w: no key greater than or equal to %d", ErrNotFound, key)
		}
	}
}

// SeekLT positions the cursor on the last cell with key strictly less than
// key.
func (c *Cursor) SeekLT(key uint32) error {
	if err := c.Rewind(); err != nil && err != ErrEmptyBTree {
		return err
	}
	for {
		cell, err := c.Cell()
		if err != nil {
			return err
		}
		if key <= cell.Key() {
			if err := c.Prev(); err != nil {
				return fmt.Errorf("%w: no key less than %d", ErrNotFound, key)
			}
			return nil
		}
		last := cell.Key()
		if err := c.Next(); err != nil {
			return c.Seek(last)
		}
	}
}

// SeekLE positions the cursor on the last cell with key less than or equal
// to key.
func (c *Cursor) SeekLE(key uint32) error {
	if err := c.Rewind(); err != nil && err != ErrEmptyBTree {
		return err
	}
	for {
		cell, err := c.Cell()
		if err != nil {
			return err
		}
		if cell.Key() == key {
			return nil
		}
		if key < cell.Key() {
			if err := c.Prev(); err != nil {
				return fmt.Errorf("%w: no key less than or equal to %d", ErrNotFound, key)
			}
			return nil
		}
		last := cell.Key()
		if err := c.Next(); err != nil {
			return c.Seek(last)
		}
	}
}
