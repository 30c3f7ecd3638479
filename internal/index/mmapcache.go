package index

import (
	"container/list"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// mmapEntry is a single cached memory mapping. refs tracks in-flight
// readers so Release never unmaps bytes a grep iterator is still reading.
type mmapEntry struct {
	path string
	data mmap.MMap
	file *os.File
	size int64
	refs int
}

// MmapCache is a size-bounded, reference-counted LRU of memory-mapped
// files, shared across grep calls to avoid repeatedly mapping hot files.
// Modeled on the same container/list LRU shape used elsewhere in this
// codebase for bounded caches, generalized here to own OS-level unmap.
type MmapCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	ll       *list.List
	index    map[string]*list.Element
}

// NewMmapCache creates a cache bounded by maxBytes total mapped size.
func NewMmapCache(maxBytes int64) *MmapCache {
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	return &MmapCache{
		maxBytes: maxBytes,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Acquire returns the mapped bytes for path, opening and mapping the file
// if not already cached, and increments its reference count. The caller
// must call Release exactly once when done reading.
func (c *MmapCache) Acquire(path string) (mmap.MMap, error) {
	c.mu.Lock()
	if el, ok := c.index[path]; ok {
		e := el.Value.(*mmapEntry)
		e.refs++
		c.ll.MoveToFront(el)
		c.mu.Unlock()
		return e.data, nil
	}
	c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		_ = f.Close()
		return mmap.MMap{}, nil
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[path]; ok {
		// Lost the race against a concurrent Acquire; drop ours.
		_ = data.Unmap()
		_ = f.Close()
		e := el.Value.(*mmapEntry)
		e.refs++
		c.ll.MoveToFront(el)
		return e.data, nil
	}

	e := &mmapEntry{path: path, data: data, file: f, size: info.Size(), refs: 1}
	el := c.ll.PushFront(e)
	c.index[path] = el
	c.curBytes += e.size
	c.evictLocked()
	return data, nil
}

// Release decrements path's reference count, making it eligible for
// eviction once it reaches zero.
func (c *MmapCache) Release(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[path]
	if !ok {
		return
	}
	e := el.Value.(*mmapEntry)
	if e.refs > 0 {
		e.refs--
	}
}

// Touch marks path as most-recently-used, e.g. after track_access, even
// if no mapping is currently held.
func (c *MmapCache) Touch(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[path]; ok {
		c.ll.MoveToFront(el)
	}
}

// evictLocked drops least-recently-used, zero-refcount entries until the
// cache is back under budget. Entries still in use are skipped and
// retried on the next eviction pass.
func (c *MmapCache) evictLocked() {
	for el := c.ll.Back(); el != nil && c.curBytes > c.maxBytes; {
		prev := el.Prev()
		e := el.Value.(*mmapEntry)
		if e.refs == 0 {
			c.ll.Remove(el)
			delete(c.index, e.path)
			c.curBytes -= e.size
			_ = e.data.Unmap()
			_ = e.file.Close()
		}
		// In-use entries stay where they are; try the next-oldest.
		el = prev
	}
}

// Close releases every mapping regardless of refcount, for index
// shutdown.
func (c *MmapCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.ll.Front(); el != nil; el = el.Next() {
		e := el.Value.(*mmapEntry)
		_ = e.data.Unmap()
		_ = e.file.Close()
	}
	c.ll.Init()
	c.index = make(map[string]*list.Element)
	c.curBytes = 0
}
