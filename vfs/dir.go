package vfs

import (
	"context"
	"os"
	"sort"
	"strings"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/bewt85/genbankfs/catalog"
	"github.com/bewt85/genbankfs/resolver"
)

// Dir is a facet-listing or default-listing directory node. It carries the
// path segments that led to it so that Lookup can re-derive a child's
// meaning by asking the resolver to parse the extended path from scratch.
type Dir struct {
	fsys     *FS
	segments []string
	result   resolver.Result
}

var _ fs.Node = (*Dir)(nil)
var _ fs.HandleReadDirAller = (*Dir)(nil)
var _ fs.NodeStringLookuper = (*Dir)(nil)

// Attr reports a synthetic, read-and-traverse-only directory.
func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0o755
	return nil
}

// listEntries returns the names this directory exposes, and whether those
// names denote files (true, inside an accession directory) or further
// subdirectories (false, a facet name or a facet's distinct values).
func (d *Dir) listEntries() ([]string, bool, error) {
	if d.result.DirName == resolver.DefaultDir {
		if accessionSlug, ok := d.result.Query[catalog.FacetAccession]; ok {
			return accessionFileNames(accessionSlug), true, nil
		}
		var names []string
		for _, f := range catalog.Facets() {
			if _, constrained := d.result.Query[f]; !constrained {
				names = append(names, string(f))
			}
		}
		return names, false, nil
	}

	values, err := d.fsys.index.List(catalog.Facet(d.result.DirName), d.result.Query)
	if err != nil {
		return nil, false, err
	}
	sort.Strings(values)
	return values, false, nil
}

// ReadDirAll lists this directory's contents as required by the resolver's
// current position: either the unconstrained facet names, a facet's
// distinct values, or the fixed accession file set. Every listing starts
// with the "." and ".." entries.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	names, areFiles, err := d.listEntries()
	if err != nil {
		return nil, err
	}

	entries := make([]fuse.Dirent, 0, len(names)+2)
	entries = append(entries,
		fuse.Dirent{Name: ".", Type: fuse.DT_Dir},
		fuse.Dirent{Name: "..", Type: fuse.DT_Dir},
	)
	typ := fuse.DT_Dir
	if areFiles {
		typ = fuse.DT_File
	}
	for _, name := range names {
		entries = append(entries, fuse.Dirent{Name: name, Type: typ})
	}
	return entries, nil
}

// Lookup resolves name as a child of this directory. A name is only valid
// if it is one of the entries ReadDirAll would have listed; anything else
// is ENOENT, regardless of what the resolver's forgiving full-path parse
// would otherwise make of it.
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	names, _, err := d.listEntries()
	if err != nil {
		return nil, err
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fuse.ENOENT
	}

	segments := make([]string, len(d.segments)+1)
	copy(segments, d.segments)
	segments[len(d.segments)] = name

	result := resolver.Parse(strings.Join(segments, "/"))
	if result.IsFile() {
		return &File{fsys: d.fsys, relativePath: result.FilePath}, nil
	}
	return &Dir{fsys: d.fsys, segments: segments, result: result}, nil
}
