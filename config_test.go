package chidb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.Nil(t, err)
	assert.EqualValues(t, DefaultPageSize, cfg.PageSize)
	assert.True(t, cfg.CacheEnabled)
}

func TestLoadConfigRejectsBadPageSize(t *testing.T) {
	t.Setenv("CHIDB_PAGE_SIZE", "37")
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, ErrInvalidPageSize)
}
