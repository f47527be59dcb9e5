package alignstore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/refmap/interval"
	"v.io/x/lib/vlog"
)

// BAMStore implements Store for a BAM file.
type BAMStore struct {
	// Path of the *.bam file.
	Path string
	// IndexPath is the *.bam.bai file. Empty when the BAM has no index.
	IndexPath string

	ctx    context.Context
	header *sam.Header
	index  *bam.Index
	sorted bool
	refIDs map[string]int
	err    errorreporter.T

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
}

type bamIterator struct {
	store  *BAMStore
	in     file.File
	reader *bam.Reader
	// Offset of the first record in the file.
	firstRecord bgzf.Offset

	// Query range; refID < 0 reads everything.
	refID, start, end int

	active bool
	err    error
	next   *sam.Record
}

// Open opens the BAM file at path. The index at path + ".bai" is used for
// region queries when it exists.
func Open(ctx context.Context, path string) (*BAMStore, error) {
	s := &BAMStore{Path: path, ctx: ctx, refIDs: map[string]int{}}
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open BAM", path)
	}
	defer in.Close(ctx) // nolint: errcheck
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return nil, errors.E(err, "read BAM header", path)
	}
	s.header = reader.Header()
	if err := reader.Close(); err != nil {
		return nil, errors.E(err, "read BAM header", path)
	}
	s.sorted = s.header.SortOrder == sam.Coordinate
	for _, ref := range s.header.Refs() {
		s.refIDs[ref.Name()] = ref.ID()
	}

	indexPath := path + ".bai"
	if _, err := file.Stat(ctx, indexPath); err != nil {
		vlog.VI(1).Infof("%v: no index, region queries will scan the file", path)
		return s, nil
	}
	indexIn, err := file.Open(ctx, indexPath)
	if err != nil {
		return nil, errors.E(err, "open BAM index", indexPath)
	}
	defer indexIn.Close(ctx) // nolint: errcheck
	if s.index, err = bam.ReadIndex(indexIn.Reader(ctx)); err != nil {
		return nil, errors.E(err, "read BAM index", indexPath)
	}
	s.IndexPath = indexPath
	return s, nil
}

// Header implements the Store interface.
func (s *BAMStore) Header() *sam.Header { return s.header }

// Close implements the Store interface.
func (s *BAMStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nActive > 0 {
		return fmt.Errorf("%v: %d iterators still active", s.Path, s.nActive)
	}
	for _, iter := range s.freeIters {
		iter.internalClose()
	}
	s.freeIters = nil
	return s.err.Err()
}

// Scan implements the Store interface.
func (s *BAMStore) Scan() Iterator {
	iter := s.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.refID = -1
	iter.err = iter.reader.Seek(iter.firstRecord)
	return iter
}

// Query implements the Store interface.
func (s *BAMStore) Query(r interval.Region) Iterator {
	refID, ok := s.refIDs[r.Contig]
	if !ok {
		return NewErrorIterator(fmt.Errorf("%v: contig %s not in header", s.Path, r.Contig))
	}
	iter := s.allocateIterator()
	if iter.err != nil {
		return iter
	}
	iter.refID, iter.start, iter.end = refID, int(r.Start), int(r.End)
	if r.Start >= r.End {
		iter.err = io.EOF
		return iter
	}
	offset := iter.firstRecord
	if s.index != nil {
		found, off, err := s.findRecordOffset(s.header.Refs()[refID], iter.start, iter.end)
		if err != nil || !found {
			iter.err = err
			if err == nil {
				iter.err = io.EOF
			}
			return iter
		}
		offset = off
	}
	iter.err = iter.reader.Seek(offset)
	return iter
}

// findRecordOffset returns the file offset of the first record that may
// overlap [startPos, endPos) on ref. It is conservative.
func (s *BAMStore) findRecordOffset(ref *sam.Reference, startPos, endPos int) (bool, bgzf.Offset, error) {
	chunks, err := s.index.Chunks(ref, startPos, endPos)
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		return false, bgzf.Offset{}, nil
	}
	if err != nil {
		return false, bgzf.Offset{}, err
	}
	return true, chunks[0].Begin, nil
}

func (s *BAMStore) freeIterator(i *bamIterator) {
	i.active = false
	if i.Err() != nil {
		// The iter may be invalid. Don't reuse it.
		i.internalClose()
		i = nil
	}
	s.mu.Lock()
	if i != nil {
		s.freeIters = append(s.freeIters, i)
	}
	s.nActive--
	s.mu.Unlock()
}

// allocateIterator returns an unused iterator, reusing a closed one when
// possible. On error, the iterator's err field is set.
func (s *BAMStore) allocateIterator() *bamIterator {
	s.mu.Lock()
	s.nActive++
	if n := len(s.freeIters); n > 0 {
		iter := s.freeIters[n-1]
		s.freeIters = s.freeIters[:n-1]
		s.mu.Unlock()
		iter.active, iter.err, iter.next = true, nil, nil
		return iter
	}
	s.mu.Unlock()

	iter := &bamIterator{store: s, active: true}
	if iter.in, iter.err = file.Open(s.ctx, s.Path); iter.err != nil {
		return iter
	}
	if iter.reader, iter.err = bam.NewReader(iter.in.Reader(s.ctx), 1); iter.err != nil {
		return iter
	}
	iter.firstRecord = iter.reader.LastChunk().End
	return iter
}

// pastRange reports whether r and every record after it in a sorted file lie
// beyond the query range.
func (i *bamIterator) pastRange(r *sam.Record) bool {
	id := r.Ref.ID()
	return id < 0 || id > i.refID || (id == i.refID && r.Pos >= i.end)
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
	if i.err != nil {
		return false
	}
	for {
		if i.next, i.err = i.reader.Read(); i.err != nil {
			return false
		}
		if i.refID < 0 {
			return true
		}
		if (i.store.index != nil || i.store.sorted) && i.pastRange(i.next) {
			i.err = io.EOF
			return false
		}
		if overlaps(i.next, i.refID, i.start, i.end) {
			return true
		}
	}
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record { return i.next }

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.store.freeIterator(i)
	return err
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(i.store.ctx); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.store.err.Set(i.Err())
}

// BuildIndex writes a .bai index for the coordinate-sorted BAM file at
// bamPath to bamPath + ".bai".
func BuildIndex(ctx context.Context, bamPath string) (err error) {
	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return errors.E(err, "open BAM", bamPath)
	}
	defer in.Close(ctx) // nolint: errcheck
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return errors.E(err, "read BAM header", bamPath)
	}
	defer reader.Close() // nolint: errcheck
	var idx bam.Index
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "read BAM", bamPath)
		}
		if err := idx.Add(rec, reader.LastChunk()); err != nil {
			return errors.E(err, "index BAM", bamPath)
		}
	}
	out, err := file.Create(ctx, bamPath+".bai")
	if err != nil {
		return err
	}
	if err := bam.WriteIndex(out.Writer(ctx), &idx); err != nil {
		out.Close(ctx) // nolint: errcheck
		return errors.E(err, "write BAM index", bamPath)
	}
	return out.Close(ctx)
}
