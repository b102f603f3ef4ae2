package chidb

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bits-and-blooms/bitset"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPageSize is the page size used for newly created files.
	DefaultPageSize = 1024
	// MinPageSize and MaxPageSize bound the page sizes the pager will accept.
	MinPageSize = 512
	MaxPageSize = 65536

	// HeaderSize is the size, in bytes, of the file header that precedes
	// the page-1 node body.
	HeaderSize = 100
)

var (
	ErrIncorrectPageNumber = errors.New("incorrect page number")
	ErrInvalidPageSize     = errors.New("invalid page size")
	ErrNoHeader            = errors.New("no header: file is empty")
)

// PageStore is the page-addressed surface the B-tree layer depends on. The
// trivial pass-through *Pager satisfies it directly; *CachingPager wraps one
// with an LRU cache per spec's "legitimate drop-in" pager clause.
type PageStore interface {
	ReadPage(npage uint32) (*MemPage, error)
	WritePage(page *MemPage) error
	AllocatePage() uint32
	ReadHeader() ([]byte, error)
	WriteHeader(header []byte) error
	IsEmpty() (bool, error)
	SetPageSize(size uint16) error
	PageSize() uint16
	GetRealDBSize() (uint32, error)
	Close() error
}

var _ PageStore = (*Pager)(nil)

// MemPage is an in-memory copy of a single on-disk page, returned by the
// Pager. Modifications made through Read's buffer or WriteAt are only
// effective on disk once the page is written back through a PageStore's
// WritePage (BTree.writeNode does this for nodes).
type MemPage struct {
	// number is the 1-indexed page number this buffer was read from (or
	// will be written to).
	number uint32

	// offset is non-zero only for page 1, where the first HeaderSize bytes
	// belong to the file header rather than the node.
	offset uint16

	data []byte
}

// Number returns the page number this page was loaded from.
func (m *MemPage) Number() uint32 {
	return m.number
}

// Read returns the node-visible bytes of the page (the file header, for
// page 1, is excluded).
func (m *MemPage) Read() []byte {
	return m.data[m.offset:]
}

// WriteAt overwrites the node-visible region of the page starting at at,
// leaving every other byte untouched.
func (m *MemPage) WriteAt(b []byte, at uint16) error {
	start := int(m.offset) + int(at)
	if start+len(b) > len(m.data) {
		return fmt.Errorf("page write out of bounds: offset %d len %d page size %d", at, len(b), len(m.data))
	}
	copy(m.data[start:start+len(b)], b)
	return nil
}

// Len returns the number of node-visible bytes in the page.
func (m *MemPage) Len() int {
	return len(m.Read())
}

// Pager owns the backing file of a chidb database and exposes page-addressed
// reads and writes. It knows nothing about B-tree semantics; it is the sole
// component that touches the file handle.
type Pager struct {
	file       *os.File
	pageSize   uint16
	totalPages uint32

	// allocated records which page numbers have been handed out by
	// AllocatePage (and, on open, which pages the file already holds).
	// GetRealDBSize does not consult it: it counts whole pages in the file,
	// so a page that was allocated but never written is not counted there.
	allocated *bitset.BitSet

	log *logrus.Entry
}

// PagerOption configures a Pager at open time.
type PagerOption func(*Pager)

// WithLogger attaches a structured logger to the pager.
func WithLogger(log *logrus.Entry) PagerOption {
	return func(p *Pager) { p.log = log }
}

// OpenPager attaches to an existing file or creates a new, empty one. The
// page size is not known until the header is read (or initialized), so
// OpenPager never fails solely because the file is empty: IsEmpty()/
// ReadHeader() communicate that condition to the B-tree layer, which
// performs initialization.
func OpenPager(filename string, opts ...PagerOption) (*Pager, error) {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open pager file: %w", err)
	}

	return wrapOpenedFile(&Pager{file: f}, opts...)
}

// wrapOpenedFile finishes initializing a Pager around an already-opened
// file handle, shared by OpenPager and OpenDirect so the two backends agree on
// defaults, option application and page-count recovery.
func wrapOpenedFile(p *Pager, opts ...PagerOption) (*Pager, error) {
	p.pageSize = DefaultPageSize
	p.allocated = bitset.New(0)
	p.log = logrus.NewEntry(logrus.StandardLogger())

	for _, opt := range opts {
		opt(p)
	}

	empty, err := p.IsEmpty()
	if err != nil {
		return nil, err
	}
	if !empty {
		if err := p.recomputePageCount(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// IsEmpty reports whether the backing file has zero bytes.
func (p *Pager) IsEmpty() (bool, error) {
	info, err := p.file.Stat()
	if err != nil {
		return false, fmt.Errorf("stat pager file: %w", err)
	}
	return info.Size() == 0, nil
}

// SetPageSize records the page size to use for subsequent page-addressed
// I/O. Must be called before any ReadPage/WritePage once the header has
// been parsed or initialized.
func (p *Pager) SetPageSize(size uint16) error {
	if size < MinPageSize || uint32(size) > MaxPageSize || size&(size-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPageSize, size)
	}
	p.pageSize = size
	return nil
}

// PageSize returns the page size currently in effect.
func (p *Pager) PageSize() uint16 {
	return p.pageSize
}

// GetRealDBSize probes the backing file's length and returns the number of
// whole pages it holds (the authoritative page count).
func (p *Pager) GetRealDBSize() (uint32, error) {
	info, err := p.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat pager file: %w", err)
	}
	return uint32(info.Size() / int64(p.pageSize)), nil
}

// RecomputePageCount re-derives the page count from the file's length
// under the currently configured page size. Callers use this after
// SetPageSize changes the divisor a previous count was computed against.
func (p *Pager) RecomputePageCount() error {
	return p.recomputePageCount()
}

func (p *Pager) recomputePageCount() error {
	n, err := p.GetRealDBSize()
	if err != nil {
		return err
	}
	p.totalPages = n
	for i := uint32(1); i <= n; i++ {
		p.allocated.Set(uint(i))
	}
	return nil
}

// ReadHeader returns the 100-byte file header. It returns ErrNoHeader when
// the file is empty, a condition the B-tree layer uses to trigger
// initialization.
func (p *Pager) ReadHeader() ([]byte, error) {
	empty, err := p.IsEmpty()
	if err != nil {
		return nil, err
	}
	if empty {
		return nil, ErrNoHeader
	}

	buf := make([]byte, HeaderSize)
	if _, err := p.file.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return buf, nil
}

// WriteHeader writes the 100-byte file header.
func (p *Pager) WriteHeader(header []byte) error {
	if len(header) != HeaderSize {
		return fmt.Errorf("invalid header size: %d", len(header))
	}
	if _, err := p.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// ReadPage reads a page from the file, 1-indexed, and returns an in-memory
// copy. Page 1's file header occupies its first HeaderSize bytes; the
// returned MemPage offsets node access past it automatically.
func (p *Pager) ReadPage(npage uint32) (*MemPage, error) {
	if err := p.pageIsValid(npage); err != nil {
		return nil, err
	}

	data := make([]byte, p.pageSize)
	n, err := p.file.ReadAt(data, p.offset(npage))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read page %d: %w", npage, err)
	}
	p.log.WithFields(logrus.Fields{"page": npage, "bytes": n}).Debug("read page")

	offset := uint16(0)
	if npage == 1 {
		offset = HeaderSize
	}

	return &MemPage{number: npage, data: data, offset: offset}, nil
}

// WritePage writes an in-memory page back to disk at its page-addressed
// offset.
func (p *Pager) WritePage(page *MemPage) error {
	if err := p.pageIsValid(page.number); err != nil {
		return err
	}
	if len(page.data) != int(p.pageSize) {
		return fmt.Errorf("invalid page buffer size: expected %d got %d", p.pageSize, len(page.data))
	}

	n, err := p.file.WriteAt(page.data, p.offset(page.number))
	if err != nil {
		return fmt.Errorf("write page %d: %w", page.number, err)
	}
	p.log.WithFields(logrus.Fields{"page": page.number, "bytes": n}).Debug("wrote page")
	return nil
}

// AllocatePage returns the page number one past the current page count (1
// on a file with no pages, so >= 2 once page 1 exists), and marks it used.
// It never reuses a page number, even one orphaned by a failed operation.
func (p *Pager) AllocatePage() uint32 {
	p.totalPages++
	p.allocated.Set(uint(p.totalPages))
	return p.totalPages
}

// Close releases the underlying file handle.
func (p *Pager) Close() error {
	return p.file.Close()
}

func (p *Pager) pageIsValid(npage uint32) error {
	if npage < 1 || npage > p.totalPages {
		return fmt.Errorf("%w: %d (have %d pages)", ErrIncorrectPageNumber, npage, p.totalPages)
	}
	return nil
}

func (p *Pager) offset(npage uint32) int64 {
	return int64(npage-1) * int64(p.pageSize)
}
