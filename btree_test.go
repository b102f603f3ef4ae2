package chidb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openBtree(tb testing.TB) *BTree {
	tb.Helper()
	f, err := os.CreateTemp(os.TempDir(), tb.Name())
	require.Nil(tb, err)
	tb.Cleanup(func() { os.Remove(f.Name()) })

	bt, err := OpenFile(f.Name())
	require.Nil(tb, err)
	tb.Cleanup(func() { bt.Close() })
	return bt
}

func TestOpenCreatesEmptyTableLeafRoot(t *testing.T) {
	bt := openBtree(t)

	node, err := bt.GetNodeByPage(1)
	require.Nil(t, err)
	assert.Equal(t, TypeTableLeaf, node.Type)
	assert.EqualValues(t, 0, node.NCells)
}

func TestInsertAndFindSingleRow(t *testing.T) {
	bt := openBtree(t)

	require.Nil(t, bt.InsertInTable(1, 1, []byte("row-one")))

	cell, err := bt.Find(1, 1)
	require.Nil(t, err)
	require.NotNil(t, cell.TableLeaf)
	assert.Equal(t, []byte("row-one"), cell.TableLeaf.Data)
}

func TestFindMissingKeyReturnsNotFound(t *testing.T) {
	bt := openBtree(t)
	require.Nil(t, bt.InsertInTable(1, 1, []byte("a")))

	_, err := bt.Find(1, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	bt := openBtree(t)
	require.Nil(t, bt.InsertInTable(1, 1, []byte("a")))

	err := bt.InsertInTable(1, 1, []byte("b"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestInsertManyRowsTriggersSplitAndStaysFindable(t *testing.T) {
	bt := openBtree(t)

	const n = 400
	for i := uint32(1); i <= n; i++ {
		data := make([]byte, 64)
		copy(data, []byte("payload"))
		require.Nil(t, bt.InsertInTable(1, i, data))
	}

	for i := uint32(1); i <= n; i++ {
		_, err := bt.Find(1, i)
		require.Nil(t, err, "key %d should be findable after splits", i)
	}
}

func TestCursorRewindNextVisitsInOrder(t *testing.T) {
	bt := openBtree(t)

	const n = 200
	for i := uint32(1); i <= n; i++ {
		require.Nil(t, bt.InsertInTable(1, n-i+1, []byte("x")))
	}

	c := OpenCursor(bt, CursorRead, 1, 0)
	require.Nil(t, c.Rewind())

	var last uint32
	count := 0
	for {
		cell, err := c.Cell()
		require.Nil(t, err)
		if count > 0 {
			assert.Greater(t, cell.Key(), last)
		}
		last = cell.Key()
		count++
		if err := c.Next(); err != nil {
			break
		}
	}
	assert.Equal(t, n, count)
}

func TestCursorSeekVariants(t *testing.T) {
	bt := openBtree(t)
	for _, k := range []uint32{10, 20, 30, 40, 50} {
		require.Nil(t, bt.InsertInTable(1, k, []byte("x")))
	}

	c := OpenCursor(bt, CursorRead, 1, 0)
	require.Nil(t, c.Seek(30))
	cell, err := c.Cell()
	require.Nil(t, err)
	assert.EqualValues(t, 30, cell.Key())

	require.Nil(t, c.SeekGT(30))
	cell, err = c.Cell()
	require.Nil(t, err)
	assert.EqualValues(t, 40, cell.Key())

	require.Nil(t, c.SeekLT(30))
	cell, err = c.Cell()
	require.Nil(t, err)
	assert.EqualValues(t, 20, cell.Key())
}

func TestCursorSeekGEAndSeekLEFloorCeiling(t *testing.T) {
	bt := openBtree(t)
	for _, k := range []uint32{1, 2, 5, 7, 9} {
		require.Nil(t, bt.InsertInTable(1, k, []byte("x")))
	}

	c := OpenCursor(bt, CursorRead, 1, 0)

	require.Nil(t, c.SeekGE(6))
	cell, err := c.Cell()
	require.Nil(t, err)
	assert.EqualValues(t, 7, cell.Key())

	require.Nil(t, c.SeekLE(6))
	cell, err = c.Cell()
	require.Nil(t, err)
	assert.EqualValues(t, 5, cell.Key())

	require.Nil(t, c.SeekGE(5))
	cell, err = c.Cell()
	require.Nil(t, err)
	assert.EqualValues(t, 5, cell.Key())

	require.Nil(t, c.SeekLE(9))
	cell, err = c.Cell()
	require.Nil(t, err)
	assert.EqualValues(t, 9, cell.Key())
}

func TestCreateTableAllocatesIndependentRoot(t *testing.T) {
	bt := openBtree(t)

	root, err := bt.CreateTable()
	require.Nil(t, err)
	assert.NotEqual(t, uint32(1), root)

	require.Nil(t, bt.InsertInTable(root, 1, []byte("second-table")))
	cell, err := bt.Find(root, 1)
	require.Nil(t, err)
	assert.Equal(t, []byte("second-table"), cell.TableLeaf.Data)

	_, err = bt.Find(1, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
