package chidb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageWriteReadHeader(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)
	defer os.Remove(db.Name())

	pager, err := OpenPager(db.Name())
	require.Nil(t, err)

	header := DefaultBTreeHeader()
	written, err := header.Bytes()
	require.Nil(t, err)

	require.Nil(t, pager.WriteHeader(written))

	read, err := pager.ReadHeader()
	require.Nil(t, err)

	assert.Equal(t, HeaderSize, len(read))
	assert.Equal(t, written, read)
}

func TestPagerReadHeaderEmptyFile(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)
	defer os.Remove(db.Name())

	pager, err := OpenPager(db.Name())
	require.Nil(t, err)

	_, err = pager.ReadHeader()
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestPagerAllocatePageIsMonotonic(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)
	defer os.Remove(db.Name())

	pager, err := OpenPager(db.Name())
	require.Nil(t, err)

	first := pager.AllocatePage()
	second := pager.AllocatePage()
	assert.Equal(t, first+1, second)
}

func TestPagerWriteReadPageRoundtrip(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)
	defer os.Remove(db.Name())

	pager, err := OpenPager(db.Name())
	require.Nil(t, err)

	npage := pager.AllocatePage()
	page, err := pager.ReadPage(npage)
	require.Nil(t, err)

	require.Nil(t, page.WriteAt([]byte("hello"), 0))
	require.Nil(t, pager.WritePage(page))

	reread, err := pager.ReadPage(npage)
	require.Nil(t, err)
	assert.Equal(t, []byte("hello"), reread.Read()[:5])
}

func TestPagerSetPageSizeRejectsOutOfRange(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)
	defer os.Remove(db.Name())

	pager, err := OpenPager(db.Name())
	require.Nil(t, err)

	assert.ErrorIs(t, pager.SetPageSize(100), ErrInvalidPageSize)
	assert.ErrorIs(t, pager.SetPageSize(70000), ErrInvalidPageSize)
	assert.Nil(t, pager.SetPageSize(2048))
}

func TestCachingPagerWriteThroughVisibleOnReopen(t *testing.T) {
	db, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)
	defer os.Remove(db.Name())

	pager, err := NewCachingPager(db.Name(), 4)
	require.Nil(t, err)

	npage := pager.AllocatePage()
	page, err := pager.ReadPage(npage)
	require.Nil(t, err)
	require.Nil(t, page.WriteAt([]byte("cached"), 0))
	require.Nil(t, pager.WritePage(page))

	reread, err := pager.ReadPage(npage)
	require.Nil(t, err)
	assert.Equal(t, []byte("cached"), reread.Read()[:6])

	reopened, err := OpenPager(db.Name())
	require.Nil(t, err)
	defer reopened.Close()
	fromDisk, err := reopened.ReadPage(npage)
	require.Nil(t, err)
	assert.Equal(t, []byte("cached"), fromDisk.Read()[:6])
}
