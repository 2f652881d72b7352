// Package catalog loads the assembly TSV and answers facet-constrained
// listing queries, indexing the remote's directory structure up front so
// that every lookup afterward is an in-memory map access.
package catalog

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bewt85/genbankfs/lib/slug"
)

// Facet is one of the six closed taxonomic dimensions the virtual tree is
// browsed by.
type Facet string

// The closed facet set. Order here is the order new-facet discovery and
// default-directory listings fall back to; it carries no other meaning.
const (
	FacetAccession     Facet = "accession"
	FacetSpeciesTaxid  Facet = "species_taxid"
	FacetTaxid         Facet = "taxid"
	FacetOrganismName  Facet = "organism_name"
	FacetGenus         Facet = "genus"
	FacetSpecies       Facet = "species"
)

// Facets lists the closed facet set in a stable order.
func Facets() []Facet {
	return []Facet{FacetAccession, FacetSpeciesTaxid, FacetTaxid, FacetOrganismName, FacetGenus, FacetSpecies}
}

// IsFacet reports whether name is one of the closed facet set.
func IsFacet(name string) bool {
	for _, f := range Facets() {
		if string(f) == name {
			return true
		}
	}
	return false
}

// ErrFacetUnknown is returned by List when asked for a facet outside the
// closed set.
var ErrFacetUnknown = errors.New("catalog: unknown facet")

// ErrColumnMissing is returned by Build when the TSV header lacks a
// required column.
var ErrColumnMissing = errors.New("catalog: required column missing from header")

const (
	colAccession    = "# assembly_accession"
	colSpeciesTaxid = "species_taxid"
	colTaxid        = "taxid"
	colOrganismName = "organism_name"
	colFtpPath      = "ftp_path"
)

var requiredColumns = []string{colAccession, colSpeciesTaxid, colTaxid, colOrganismName, colFtpPath}

// Row is one parsed catalog entry: the raw fields the core cares about, plus
// their derived per-facet slugs, plus the rest of the TSV row for callers
// that want other columns (preserved but unused by the core).
type Row struct {
	Raw map[string]string

	Accession    string
	SpeciesTaxid string
	Taxid        string
	OrganismName string
	FtpPath      string

	slugs map[Facet]string
}

// Slug returns this row's slug value for the given facet.
func (r Row) Slug(f Facet) string {
	return r.slugs[f]
}

// Index is the immutable, queryable catalog built from a TSV stream. Once
// built it is read-only and safe for concurrent use without locking.
type Index struct {
	rows []Row
	// bySlug provides O(1) filtering: facet -> slug -> row indices.
	bySlug map[Facet]map[string][]int
	// url is the accession -> ftp_path lookup used by the URL lookup.
	url map[string]string

	log *logrus.Entry
}

// Build parses r as a tab-separated stream with a header row, deriving the
// six facet-slug columns described in the data model. It fails if any
// required column is absent from the header.
func Build(r io.Reader) (*Index, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "catalog: reading TSV header")
	}
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	for _, required := range requiredColumns {
		if _, ok := colIdx[required]; !ok {
			return nil, errors.Wrapf(ErrColumnMissing, "%q", required)
		}
	}

	idx := &Index{
		bySlug: make(map[Facet]map[string][]int),
		url:    make(map[string]string),
		log:    logrus.WithField("component", "catalog"),
	}
	for _, f := range Facets() {
		idx.bySlug[f] = make(map[string][]int)
	}

	for lineNo := 1; ; lineNo++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "catalog: reading TSV row %d", lineNo)
		}

		raw := make(map[string]string, len(header))
		for name, i := range colIdx {
			if i < len(record) {
				raw[name] = record[i]
			}
		}

		row := Row{
			Raw:          raw,
			Accession:    raw[colAccession],
			SpeciesTaxid: raw[colSpeciesTaxid],
			Taxid:        raw[colTaxid],
			OrganismName: raw[colOrganismName],
			FtpPath:      raw[colFtpPath],
			slugs:        make(map[Facet]string, len(Facets())),
		}
		genus, species := splitOrganismName(row.OrganismName)
		row.slugs[FacetAccession] = accessionSlug(row.FtpPath)
		row.slugs[FacetSpeciesTaxid] = slug.Make(row.SpeciesTaxid)
		row.slugs[FacetTaxid] = slug.Make(row.Taxid)
		row.slugs[FacetOrganismName] = slug.Make(row.OrganismName)
		row.slugs[FacetGenus] = slug.Make(genus)
		row.slugs[FacetSpecies] = slug.Make(genus + "_" + species)

		rowIdx := len(idx.rows)
		idx.rows = append(idx.rows, row)
		for _, f := range Facets() {
			s := row.slugs[f]
			idx.bySlug[f][s] = append(idx.bySlug[f][s], rowIdx)
		}
		idx.url[row.slugs[FacetAccession]] = row.FtpPath
	}

	idx.log.WithField("rows", len(idx.rows)).Info("catalog built")
	return idx, nil
}

// splitOrganismName returns the first two whitespace-separated tokens of
// name (genus, species); missing tokens are returned as empty strings.
func splitOrganismName(name string) (genus, species string) {
	fields := strings.Fields(name)
	if len(fields) > 0 {
		genus = fields[0]
	}
	if len(fields) > 1 {
		species = fields[1]
	}
	return genus, species
}

// accessionSlug is the last path segment of an ftp_path. Unlike the other
// facets this is used verbatim, not passed through slug.Make: ftp_path's
// last segment is already path-safe by construction, and accessions are
// meant to be recognizable as-is.
func accessionSlug(ftpPath string) string {
	ftpPath = strings.TrimRight(ftpPath, "/")
	i := strings.LastIndex(ftpPath, "/")
	if i < 0 {
		return ftpPath
	}
	return ftpPath[i+1:]
}

// Query is a finite mapping from facet name to required slug value.
type Query map[Facet]string

// Rows returns every row matching q. An empty query returns every row in
// the catalog.
func (idx *Index) Rows(q Query) []Row {
	if len(q) == 0 {
		out := make([]Row, len(idx.rows))
		copy(out, idx.rows)
		return out
	}

	// Start from the first constraint's candidate set (in map iteration
	// order) and intersect it with each of the others.
	var candidates []int
	first := true
	for f, v := range q {
		ids := idx.bySlug[f][v]
		if first {
			candidates = append(candidates, ids...)
			first = false
			continue
		}
		candidates = intersect(candidates, ids)
	}

	rows := make([]Row, 0, len(candidates))
	for _, i := range candidates {
		rows = append(rows, idx.rows[i])
	}
	return rows
}

func intersect(a, b []int) []int {
	set := make(map[int]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := a[:0:0]
	for _, v := range a {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// List returns the distinct slug values of facet across Rows(q).
func (idx *Index) List(facet Facet, q Query) ([]string, error) {
	if !IsFacet(string(facet)) {
		return nil, errors.Wrapf(ErrFacetUnknown, "%q", facet)
	}
	seen := make(map[string]struct{})
	for _, row := range idx.Rows(q) {
		seen[row.Slug(facet)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	return out, nil
}

// LookupURL resolves an accession slug to its ftp_path, as recorded by the
// URL lookup map derived alongside the catalog.
func (idx *Index) LookupURL(accessionSlug string) (string, bool) {
	u, ok := idx.url[accessionSlug]
	return u, ok
}
