package resolver

import (
	"reflect"
	"testing"

	"github.com/bewt85/genbankfs/catalog"
)

func TestParseSingleFacetNames(t *testing.T) {
	cases := map[string]string{
		"/accession":     "accession",
		"/taxid":         "taxid",
		"/species":       "species",
		"/genus":         "genus",
		"/species_taxid": "species_taxid",
		"/organism_name": "organism_name",
	}
	for path, want := range cases {
		got := Parse(path)
		if got.IsFile() {
			t.Errorf("Parse(%q).IsFile() = true, want false", path)
		}
		if got.DirName != want {
			t.Errorf("Parse(%q).DirName = %q, want %q", path, got.DirName, want)
		}
		if len(got.Query) != 0 {
			t.Errorf("Parse(%q).Query = %v, want empty", path, got.Query)
		}
	}
}

func TestParseNonsenseSegment(t *testing.T) {
	got := Parse("/foo")
	want := Result{DirName: DefaultDir, Query: catalog.Query{}}
	assertResultEqual(t, got, want)
}

func TestParseMultiFacet(t *testing.T) {
	got := Parse("/genus/foo")
	assertResultEqual(t, got, Result{DirName: DefaultDir, Query: catalog.Query{catalog.FacetGenus: "foo"}})

	got = Parse("/genus/foo/taxid")
	assertResultEqual(t, got, Result{DirName: "taxid", Query: catalog.Query{catalog.FacetGenus: "foo"}})

	got = Parse("/genus/foo/taxid/1000")
	assertResultEqual(t, got, Result{DirName: DefaultDir, Query: catalog.Query{catalog.FacetGenus: "foo", catalog.FacetTaxid: "1000"}})

	got = Parse("/genus/foo/taxid/1000/accession/ABC")
	assertResultEqual(t, got, Result{DirName: DefaultDir, Query: catalog.Query{
		catalog.FacetGenus: "foo", catalog.FacetTaxid: "1000", catalog.FacetAccession: "ABC",
	}})
}

func TestParseTerminalFileRule(t *testing.T) {
	got := Parse("/genus/foo/taxid/1000/accession/ABC/README.txt")
	want := Result{
		FilePath: "ABC/README.txt",
		Query:    catalog.Query{catalog.FacetAccession: "ABC"},
	}
	assertResultEqual(t, got, want)
	if !got.IsFile() {
		t.Error("expected IsFile() == true")
	}
	if got.DirName != "" {
		t.Errorf("DirName = %q, want empty (mutual exclusion)", got.DirName)
	}
}

func TestParseNonsensePrefixStillHitsTerminalFile(t *testing.T) {
	got := Parse("/genus/foo/taxid/NONSENSE/1000/accession/ABC")
	want := Result{DirName: DefaultDir, Query: catalog.Query{
		catalog.FacetGenus: "foo", catalog.FacetTaxid: "NONSENSE",
	}}
	assertResultEqual(t, got, want)

	got = Parse("/genus/foo/taxid/1000/NONSENSE/accession/ABC")
	want = Result{DirName: DefaultDir, Query: catalog.Query{
		catalog.FacetGenus: "foo", catalog.FacetTaxid: "1000",
	}}
	assertResultEqual(t, got, want)

	got = Parse("/genus/foo/taxid/1000/NONSENSE/accession/ABC/README.txt")
	want = Result{
		FilePath: "ABC/README.txt",
		Query:    catalog.Query{catalog.FacetAccession: "ABC"},
	}
	assertResultEqual(t, got, want)
}

func TestParseAccessionSingleResidual(t *testing.T) {
	got := Parse("/accession/ABC")
	want := Result{DirName: DefaultDir, Query: catalog.Query{catalog.FacetAccession: "ABC"}}
	assertResultEqual(t, got, want)
}

func TestParseAccessionWithUnparsableResidual(t *testing.T) {
	got := Parse("/accession/ABC/extra/stuff")
	want := Result{DirName: DefaultDir, Query: catalog.Query{}}
	assertResultEqual(t, got, want)

	got = Parse("/genus/foo/accession/ABC/extra/stuff")
	want = Result{DirName: DefaultDir, Query: catalog.Query{catalog.FacetGenus: "foo"}}
	assertResultEqual(t, got, want)
}

func TestParseRootIsDefault(t *testing.T) {
	got := Parse("/")
	want := Result{DirName: DefaultDir, Query: catalog.Query{}}
	assertResultEqual(t, got, want)
}

func TestParseRepeatedFacetLastWins(t *testing.T) {
	got := Parse("/genus/foo/genus/bar")
	want := Result{DirName: DefaultDir, Query: catalog.Query{catalog.FacetGenus: "bar"}}
	assertResultEqual(t, got, want)
}

func TestParseMutualExclusionInvariant(t *testing.T) {
	paths := []string{"/", "/foo", "/genus", "/genus/foo", "/accession/ABC/README.txt", "/accession/ABC"}
	for _, p := range paths {
		r := Parse(p)
		if r.IsFile() && r.DirName != "" {
			t.Errorf("Parse(%q): both FilePath and DirName set", p)
		}
		if !r.IsFile() && r.FilePath != "" {
			t.Errorf("Parse(%q): FilePath non-empty but IsFile() false", p)
		}
		if len(r.PathList) != 0 {
			t.Errorf("Parse(%q): PathList = %v, want empty at termination", p, r.PathList)
		}
	}
}

func assertResultEqual(t *testing.T, got, want Result) {
	t.Helper()
	if got.FilePath != want.FilePath {
		t.Errorf("FilePath = %q, want %q", got.FilePath, want.FilePath)
	}
	if got.DirName != want.DirName {
		t.Errorf("DirName = %q, want %q", got.DirName, want.DirName)
	}
	if len(got.PathList) != 0 {
		t.Errorf("PathList = %v, want empty", got.PathList)
	}
	if !reflect.DeepEqual(got.Query, want.Query) {
		t.Errorf("Query = %v, want %v", got.Query, want.Query)
	}
}
