package alignstore

import (
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/refmap/interval"
)

// Store is a source of alignment records. Thread safe.
type Store interface {
	// Header returns the header of the alignments. The caller must not
	// modify it.
	Header() *sam.Header

	// Scan returns an iterator over all records, in file order.
	Scan() Iterator

	// Query returns an iterator over the mapped records whose footprint
	// overlaps r, in coordinate order.
	Query(r interval.Region) Iterator

	// Close releases the store. It returns any error encountered by the
	// store or by the iterators it created.
	//
	// REQUIRES: All the iterators have been closed.
	Close() error
}

// Iterator iterates over sam.Records. Thread compatible.
type Iterator interface {
	// Scan advances to the next record. It returns false at the end of the
	// range or on error.
	Scan() bool

	// Record returns the current record. It must be called only after Scan
	// returns true.
	Record() *sam.Record

	// Err returns the error encountered during iteration, if any. io.EOF is
	// translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

type errorIterator struct {
	err error
}

func (i *errorIterator) Scan() bool          { return false }
func (i *errorIterator) Record() *sam.Record { panic("shall not be called") }
func (i *errorIterator) Err() error          { return i.err }
func (i *errorIterator) Close() error        { return i.err }

// NewErrorIterator creates an Iterator that yields no record and returns "err"
// in Err and Close.
func NewErrorIterator(err error) Iterator {
	return &errorIterator{err: err}
}

// Mapped reports whether r is placed on a reference.
func Mapped(r *sam.Record) bool {
	return r.Flags&sam.Unmapped == 0 && r.Ref != nil && r.Pos >= 0
}

// Footprint returns the reference interval covered by r, computed from its
// CIGAR. ok is false for unmapped records.
func Footprint(r *sam.Record) (fp interval.Region, ok bool) {
	if !Mapped(r) {
		return interval.Region{}, false
	}
	return interval.Region{
		Contig: r.Ref.Name(),
		Start:  interval.PosType(r.Pos),
		End:    interval.PosType(r.End()),
	}, true
}

// Strand returns '-' for records aligned to the reverse strand and '+'
// otherwise.
func Strand(r *sam.Record) byte {
	if r.Flags&sam.Reverse != 0 {
		return '-'
	}
	return '+'
}

// overlaps reports whether the mapped record r on reference refID overlaps
// [start, end).
func overlaps(r *sam.Record, refID, start, end int) bool {
	return Mapped(r) && r.Ref.ID() == refID && r.Pos < end && r.End() > start
}
