/*Package interval represents genomic regions and merges sorted read
  footprints into regions the way "bedtools merge -d" does: a footprint joins
  the current region when it starts no more than the tolerance past the
  region's end.  Coordinates are 0-based and half-open; they fit in a PosType
  since BAM positions are limited to int32.
*/
package interval
