package chidb

import (
	"fmt"
	"os"

	"github.com/ncw/directio"
)

// DirectPager is the optional direct-I/O backend from spec's Pager section:
// a Pager variant that opens its backing file with O_DIRECT so page reads
// and writes bypass the OS page cache, for hosts that want to manage their
// own buffering. CachingPager always wraps a plain Pager, so the two are
// not combined.
//
// It reuses Pager for every concern except the open call and the alignment
// requirement O_DIRECT imposes: the configured page size must be a multiple
// of directio.AlignSize, checked once at open time rather than per I/O.
type DirectPager struct {
	*Pager
}

// OpenDirect opens filename for direct I/O. It fails fast with
// ErrInvalidPageSize if the pager's page size is not aligned for O_DIRECT,
// since that mismatch would otherwise surface as a confusing I/O error on
// the first read.
func OpenDirect(filename string, opts ...PagerOption) (*DirectPager, error) {
	f, err := directio.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open direct-io pager file: %w", err)
	}

	p := &Pager{
		file: f,
	}
	base, err := wrapOpenedFile(p, opts...)
	if err != nil {
		return nil, err
	}
	if int(base.pageSize)%directio.AlignSize != 0 {
		base.file.Close()
		return nil, fmt.Errorf("%w: page size %d is not a multiple of directio.AlignSize (%d)",
			ErrInvalidPageSize, base.pageSize, directio.AlignSize)
	}

	return &DirectPager{Pager: base}, nil
}

var _ PageStore = (*DirectPager)(nil)
