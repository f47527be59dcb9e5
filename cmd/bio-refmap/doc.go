/*
bio-refmap maps dereplicated reads to a reference genome and rebuilds one
locus per covered region.

For each sample, the reads in <edits>/<sample>_derep.fastq are aligned with
smalt. The mapped alignments are sorted and indexed, and their footprints are
merged into a region list. Each region is then turned into a locus record
that is written to <clusts>/<sample>.clust.gz. The reads that did not map
are written back to <edits>/<sample>-refmap_derep.fastq for de novo
clustering.

Usage:

	bio-refmap index -config refmap.toml [-force]
	bio-refmap run -config refmap.toml [-parallelism N] [-stats out.tsv] sample...
	bio-refmap loci -config refmap.toml sample...
	bio-refmap stats -config refmap.toml sample...

The config is a TOML file; see refmap.Config for the keys. smalt, samtools
and vsearch are looked up on $PATH unless the config names them.
*/
package main
