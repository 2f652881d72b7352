// Package vfs translates FUSE requests (readdir, getattr, open, read,
// statfs) into calls on the catalog, resolver and cache packages. It holds
// no state of its own beyond the path segments accumulated on the way to
// each node: every decision is re-derived from those segments on demand.
package vfs

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/bewt85/genbankfs/cache"
	"github.com/bewt85/genbankfs/catalog"
	"github.com/bewt85/genbankfs/resolver"
)

// FS is the root of the mounted tree.
type FS struct {
	index *catalog.Index
	cache *cache.Cache
	log   *logrus.Entry
}

// New builds an FS over an already-built catalog and a running download
// cache.
func New(index *catalog.Index, c *cache.Cache) *FS {
	return &FS{index: index, cache: c, log: logrus.WithField("component", "vfs")}
}

var _ fs.FS = (*FS)(nil)
var _ fs.FSStatfser = (*FS)(nil)

// Root returns the top-level directory node.
func (f *FS) Root() (fs.Node, error) {
	return &Dir{fsys: f, segments: nil, result: resolver.Parse("")}, nil
}

// Statfs reports the fixed synthetic values for this read-only view over a
// remote catalog: it is not a block device, so these numbers describe
// nothing real, only what tools like `df` expect to see.
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	resp.Bsize = 512
	resp.Blocks = 4096
	resp.Bavail = 2048
	resp.Bfree = 2048
	resp.Frsize = 512
	return nil
}
