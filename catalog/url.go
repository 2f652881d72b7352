package catalog

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrOriginUnknown is returned by Lookup when the accession segment of a
// relative path has no catalog entry.
var ErrOriginUnknown = errors.New("catalog: accession has no known origin")

// ErrBadRelativePath is returned by Lookup when the relative path does not
// split into exactly two segments.
var ErrBadRelativePath = errors.New("catalog: relative path must be accession/filename")

// URLLookup resolves relative cache paths ("<accession>/<filename>") to the
// absolute remote URL they are fetched from. It is built once from an
// Index and is immutable, sharing the index's lock-free read semantics.
type URLLookup struct {
	idx *Index
}

// NewURLLookup constructs a URLLookup backed by idx.
func NewURLLookup(idx *Index) *URLLookup {
	return &URLLookup{idx: idx}
}

// Lookup splits relativePath into exactly two "/"-separated segments,
// accession and filename, and returns "<ftp_path of accession>/<filename>".
func (l *URLLookup) Lookup(relativePath string) (string, error) {
	parts := strings.Split(relativePath, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", errors.Wrapf(ErrBadRelativePath, "%q", relativePath)
	}
	accession, filename := parts[0], parts[1]

	ftpPath, ok := l.idx.LookupURL(accession)
	if !ok {
		return "", errors.Wrapf(ErrOriginUnknown, "%q", accession)
	}
	return strings.TrimRight(ftpPath, "/") + "/" + filename, nil
}
