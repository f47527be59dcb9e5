// Package alignstore reads coordinate-sorted alignments. A Store yields every
// record of a BAM file, or only the records overlapping a region; region
// queries use the .bai index when one exists and fall back to a linear scan
// otherwise.
package alignstore
