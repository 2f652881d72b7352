package vfs

// accessionFileNames returns the fixed set of filenames exposed under
// every accession directory: two literal names plus five templated by the
// accession's slug.
func accessionFileNames(accessionSlug string) []string {
	return []string{
		"README.txt",
		"md5checksums.txt",
		accessionSlug + "_assembly_stats.txt",
		accessionSlug + "_assembly_report.txt",
		accessionSlug + "_genomic.fna.gz",
		accessionSlug + "_genomic.gbff.gz",
		accessionSlug + "_genomic.gff.gz",
	}
}
