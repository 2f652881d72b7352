package cache

import "os"

// Handle is a readable handle returned by Open: either a real cached file
// or one of the three warning files. Read is serialized under the cache's
// process-wide lock so that the lseek+read pair behind a positioned read
// is atomic with respect to other readers sharing the same descriptor.
type Handle struct {
	cache *Cache
	file  *os.File
}

func newHandle(c *Cache, f *os.File) *Handle {
	return &Handle{cache: c, file: f}
}

// ReadAt performs a positioned read of up to len(p) bytes starting at
// offset.
func (h *Handle) ReadAt(p []byte, offset int64) (int, error) {
	h.cache.ioLock.Lock()
	defer h.cache.ioLock.Unlock()

	if _, err := h.file.Seek(offset, 0); err != nil {
		return 0, err
	}
	return h.file.Read(p)
}

// Close releases the underlying file descriptor.
func (h *Handle) Close() error {
	return h.file.Close()
}

// Name returns the path of the file backing this handle (the real cached
// file, or one of the warning files).
func (h *Handle) Name() string {
	return h.file.Name()
}
