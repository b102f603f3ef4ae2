package chidb

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// CachingPager wraps a *Pager with a write-through LRU page cache, the
// "legitimate drop-in" pager spec.md's Pager section allows in place of the
// trivial pass-through implementation. Every WritePage call updates the
// cache entry and writes through to the backing file before returning, so a
// subsequent ReadPage always observes the prior write regardless of whether
// it hits the cache.
//
// The B-tree layer and the VM are single-threaded per spec.md §5, but a host
// embedding the engine may share one CachingPager across goroutines (e.g. to
// prefetch pages); concurrent ReadPage calls for the same page number are
// collapsed with a singleflight.Group so only one disk read is ever
// in-flight per page.
type CachingPager struct {
	*Pager

	mu    sync.Mutex
	cache *lru.Cache
	group singleflight.Group
}

// NewCachingPager opens filename through the pass-through pager and wraps it
// with an LRU cache holding at most capacity pages.
func NewCachingPager(filename string, capacity int, opts ...PagerOption) (*CachingPager, error) {
	base, err := OpenPager(filename, opts...)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("create page cache: %w", err)
	}
	return &CachingPager{Pager: base, cache: cache}, nil
}

// ReadPage returns the cached copy of npage if present, otherwise reads it
// through the wrapped pager and populates the cache. The returned MemPage is
// a private copy; mutating it does not corrupt the cache entry until
// WritePage is called.
func (c *CachingPager) ReadPage(npage uint32) (*MemPage, error) {
	c.mu.Lock()
	if v, ok := c.cache.Get(npage); ok {
		page := v.(*MemPage)
		c.mu.Unlock()
		return page.clone(), nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(fmt.Sprintf("page:%d", npage), func() (interface{}, error) {
		page, err := c.Pager.ReadPage(npage)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache.Add(npage, page.clone())
		c.mu.Unlock()
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*MemPage).clone(), nil
}

// WritePage writes page through to the backing file and refreshes the cache
// entry, in that order, so a failed write never leaves a stale cache hit.
func (c *CachingPager) WritePage(page *MemPage) error {
	if err := c.Pager.WritePage(page); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache.Add(page.number, page.clone())
	c.mu.Unlock()
	return nil
}

func (m *MemPage) clone() *MemPage {
	data := make([]byte, len(m.data))
	copy(data, m.data)
	return &MemPage{number: m.number, offset: m.offset, data: data}
}

var _ PageStore = (*CachingPager)(nil)
