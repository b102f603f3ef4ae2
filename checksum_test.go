package chidb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumPagerDetectsOutOfBandMutation(t *testing.T) {
	f, err := os.CreateTemp(os.TempDir(), t.Name())
	require.Nil(t, err)
	defer os.Remove(f.Name())

	base, err := OpenPager(f.Name())
	require.Nil(t, err)
	store := NewChecksumPager(base)

	npage := store.AllocatePage()
	page, err := store.ReadPage(npage)
	require.Nil(t, err)
	require.Nil(t, page.WriteAt([]byte("tracked"), 0))
	require.Nil(t, store.WritePage(page))

	reread, err := store.ReadPage(npage)
	require.Nil(t, err)
	assert.Equal(t, []byte("tracked"), reread.Read()[:7])

	corrupted, err := base.ReadPage(npage)
	require.Nil(t, err)
	require.Nil(t, corrupted.WriteAt([]byte("altered"), 0))
	require.Nil(t, base.WritePage(corrupted))

	_, err = store.ReadPage(npage)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}
