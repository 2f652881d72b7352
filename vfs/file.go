package vfs

import (
	"context"
	"io"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/bewt85/genbankfs/cache"
)

// File is a concrete accession file: either already cached on disk, or
// materialized lazily on first Open via the download cache.
type File struct {
	fsys         *FS
	relativePath string // "<accessionSlug>/<filename>"
}

var _ fs.Node = (*File)(nil)
var _ fs.NodeOpener = (*File)(nil)

// Attr reports the file's size where known, and a synthetic placeholder
// otherwise; either way the file is read-only.
func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	attrs, err := f.fsys.cache.GetAttr(f.relativePath)
	if err != nil {
		return err
	}
	a.Mode = attrs.Mode
	a.Size = uint64(attrs.Size)
	a.Mtime = attrs.ModTime
	return nil
}

// Open triggers the cache's fetch-or-serve protocol and returns a handle
// over whatever it settles on: the real file, or one of the warning files.
func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	h, err := f.fsys.cache.Open(f.relativePath, int(req.Flags))
	if err != nil {
		return nil, err
	}
	resp.Flags |= fuse.OpenKeepCache
	return &fileHandle{h: h}, nil
}

type fileHandle struct {
	h *cache.Handle
}

var _ fs.Handle = (*fileHandle)(nil)
var _ fs.HandleReader = (*fileHandle)(nil)
var _ fs.HandleReleaser = (*fileHandle)(nil)

func (fh *fileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := fh.h.ReadAt(buf, req.Offset)
	if err != nil && err != io.EOF {
		return err
	}
	resp.Data = buf[:n]
	return nil
}

func (fh *fileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return fh.h.Close()
}
