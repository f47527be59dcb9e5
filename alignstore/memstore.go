package alignstore

import (
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/refmap/interval"
)

// MemStore is a Store over records held in memory. It is meant for tests
// and for small inputs.
type MemStore struct {
	header *sam.Header
	recs   []*sam.Record
}

type memIterator struct {
	recs []*sam.Record
	rec  *sam.Record
	// Query range; refID < 0 yields every record.
	refID, start, end int
}

// NewMemStore creates a store that returns header from Header and recs, in
// the given order, from its iterators.
func NewMemStore(header *sam.Header, recs []*sam.Record) *MemStore {
	return &MemStore{header, recs}
}

// Header implements the Store interface.
func (s *MemStore) Header() *sam.Header { return s.header }

// Close implements the Store interface.
func (s *MemStore) Close() error { return nil }

// Scan implements the Store interface.
func (s *MemStore) Scan() Iterator {
	return &memIterator{recs: s.recs, refID: -1}
}

// Query implements the Store interface.
func (s *MemStore) Query(r interval.Region) Iterator {
	for _, ref := range s.header.Refs() {
		if ref.Name() == r.Contig {
			return &memIterator{recs: s.recs, refID: ref.ID(), start: int(r.Start), end: int(r.End)}
		}
	}
	return &memIterator{}
}

func (i *memIterator) Scan() bool {
	for len(i.recs) > 0 {
		i.rec, i.recs = i.recs[0], i.recs[1:]
		if i.refID < 0 || overlaps(i.rec, i.refID, i.start, i.end) {
			return true
		}
	}
	return false
}

func (i *memIterator) Record() *sam.Record {
	// Return a copy so that callers cannot alter the stored records.
	copy := *i.rec
	return &copy
}

func (i *memIterator) Err() error   { return nil }
func (i *memIterator) Close() error { return nil }
