// Package resolver reduces a slash-separated virtual path into either a
// concrete remote file target or a facet-constrained listing intent. It is
// stateless and deterministic: it never consults the catalog, operating
// only on the closed facet set.
package resolver

import (
	"strings"

	"github.com/bewt85/genbankfs/catalog"
)

// DefaultDir is the sentinel dir_name meaning "show remaining facets or
// their values", as opposed to naming one specific facet.
const DefaultDir = "default"

// Result is the outcome of parsing a path: exactly one of FilePath or
// DirName is set, never both.
type Result struct {
	// FilePath is "<accession>/<filename>" when the path addresses a
	// concrete file.
	FilePath string
	// DirName is a facet name, or DefaultDir, when the path addresses a
	// directory.
	DirName string
	// PathList is the residual unconsumed segments; always empty on a
	// terminal result.
	PathList []string
	// Query is the accumulated facet constraints.
	Query catalog.Query
}

// IsFile reports whether this result addresses a concrete file.
func (r Result) IsFile() bool {
	return r.FilePath != ""
}

// Parse reduces path into a Result. path is slash-separated and rooted at
// "/"; any drive prefix (as on Windows) is stripped first.
func Parse(path string) Result {
	segments := splitPath(path)

	// Terminal-file rule takes precedence over the facet reduction: a
	// trailing "accession/<slug>/<filename>" always denotes a file,
	// regardless of what precedes it, and the returned query is rebuilt
	// from scratch with only the accession constraint.
	if res, ok := matchTerminalFile(segments); ok {
		return res
	}

	return reduce(segments, catalog.Query{})
}

// splitPath strips a Windows-style drive prefix, splits on "/", and drops
// the leading empty segment produced by the root.
func splitPath(path string) []string {
	if i := strings.Index(path, ":"); i >= 0 && !strings.Contains(path[:i], "/") {
		path = path[i+1:]
	}
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchTerminalFile(segments []string) (Result, bool) {
	if len(segments) < 3 {
		return Result{}, false
	}
	tail := segments[len(segments)-3:]
	if tail[0] != string(catalog.FacetAccession) {
		return Result{}, false
	}
	accession, filename := tail[1], tail[2]
	return Result{
		FilePath: accession + "/" + filename,
		Query:    catalog.Query{catalog.FacetAccession: accession},
	}, true
}

// reduce is the iterative left-to-right facet reduction: for each leading
// segment that names a facet, it consumes the next segment as that facet's
// value and recurses on the remainder. The accession facet has a bespoke
// handler (see handleAccession) that always terminates the reduction. A
// non-facet leading segment, or an exhausted segment list, also terminates
// the reduction at dir_name = default.
func reduce(segments []string, query catalog.Query) Result {
	for {
		if len(segments) == 0 {
			return Result{DirName: DefaultDir, Query: query}
		}

		head := segments[0]
		if head == string(catalog.FacetAccession) {
			return handleAccession(segments, query)
		}

		if !catalog.IsFacet(head) {
			return Result{DirName: DefaultDir, Query: query}
		}

		if len(segments) == 1 {
			return Result{DirName: head, Query: query}
		}

		query = withConstraint(query, catalog.Facet(head), segments[1])
		segments = segments[2:]
	}
}

// handleAccession implements the accession facet's bespoke precedence: at
// the name alone it lists accession slugs; at exactly one residual segment
// it is a terminal listing of that accession's own directory. Exactly two
// residual segments never reach here (the terminal-file rule in Parse
// already claims any path ending in accession/<slug>/<filename>). Three or
// more residual segments are unparsable: the accession constraint is
// discarded entirely and reduction stops at dir_name = default, keeping only
// the constraints recorded before the accession name.
func handleAccession(segments []string, query catalog.Query) Result {
	switch len(segments) {
	case 1:
		return Result{DirName: string(catalog.FacetAccession), Query: query}
	case 2:
		query = withConstraint(query, catalog.FacetAccession, segments[1])
		return Result{DirName: DefaultDir, Query: query}
	default:
		return Result{DirName: DefaultDir, Query: query}
	}
}

// withConstraint returns a copy of query with facet set to value; repeated
// facets overwrite prior values, so last occurrence wins.
func withConstraint(query catalog.Query, facet catalog.Facet, value string) catalog.Query {
	out := make(catalog.Query, len(query)+1)
	for k, v := range query {
		out[k] = v
	}
	out[facet] = value
	return out
}
