package fasta

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Index files consist of one tab-separated line per sequence in the associated
// FASTA file.  The format is: "<sequence name>\t<length>\t<byte
// offset>\t<bases per line>\t<bytes per line>".
// For example: "chr3\t12345\t9000\t80\t81".
var indexRegExp = regexp.MustCompile(`^(\S+)\t(\d+)\t(\d+)\t(\d+)\t(\d+)`)

// IndexEntry is one line of a .fai file.
type IndexEntry struct {
	Name      string
	Length    uint64
	Offset    uint64
	LineBases uint64
	LineWidth uint64
}

// ReadIndex parses a .fai file.
func ReadIndex(index io.Reader) ([]IndexEntry, error) {
	var entries []IndexEntry
	scanner := bufio.NewScanner(index)
	for scanner.Scan() {
		m := indexRegExp.FindStringSubmatch(scanner.Text())
		if len(m) != 6 {
			return nil, fmt.Errorf("invalid index line: %s", scanner.Text())
		}
		ent := IndexEntry{Name: m[1]}
		for i, dst := range []*uint64{&ent.Length, &ent.Offset, &ent.LineBases, &ent.LineWidth} {
			v, err := strconv.ParseUint(m[i+2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid index line: %s: %v", scanner.Text(), err)
			}
			*dst = v
		}
		if ent.LineBases == 0 || ent.LineWidth < ent.LineBases {
			return nil, fmt.Errorf("invalid line geometry in index line: %s", scanner.Text())
		}
		entries = append(entries, ent)
	}
	return entries, scanner.Err()
}

type indexedFasta struct {
	seqs     map[string]IndexEntry
	seqNames []string

	mu     sync.Mutex
	reader io.ReadSeeker
	bufOff int64
	buf    []byte // caches file contents starting at bufOff.
}

// NewIndexed creates a Fasta that performs random lookups through the index
// without reading the sequence data into memory.
func NewIndexed(fasta io.ReadSeeker, index io.Reader) (Fasta, error) {
	entries, err := ReadIndex(index)
	if err != nil {
		return nil, err
	}
	f := &indexedFasta{seqs: make(map[string]IndexEntry, len(entries)), reader: fasta}
	for _, ent := range entries {
		f.seqs[ent.Name] = ent
		f.seqNames = append(f.seqNames, ent.Name)
	}
	sort.SliceStable(f.seqNames, func(i, j int) bool {
		return f.seqs[f.seqNames[i]].Offset < f.seqs[f.seqNames[j]].Offset
	})
	return f, nil
}

// Len implements Fasta.Len().
func (f *indexedFasta) Len(name string) (uint64, error) {
	ent, ok := f.seqs[name]
	if !ok {
		return 0, fmt.Errorf("sequence not found in index: %s", name)
	}
	return ent.Length, nil
}

// SeqNames implements Fasta.SeqNames().
func (f *indexedFasta) SeqNames() []string {
	return f.seqNames
}

// read returns the file range [off, off+n).
func (f *indexedFasta) read(off int64, n int) ([]byte, error) {
	limit := off + int64(n)
	if off >= f.bufOff && limit <= f.bufOff+int64(len(f.buf)) {
		return f.buf[off-f.bufOff : limit-f.bufOff], nil
	}
	if _, err := f.reader.Seek(off, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to offset %d: %v", off, err)
	}
	size := 8192
	if size < n {
		size = n
	}
	if cap(f.buf) < size {
		f.buf = make([]byte, size)
	}
	f.buf = f.buf[:size]
	nRead, err := io.ReadAtLeast(f.reader, f.buf, n)
	if err != nil {
		f.buf = f.buf[:0]
		return nil, fmt.Errorf("unexpected end of file at offset %d (bad index? file doesn't end in newline?): %v", off, err)
	}
	f.bufOff = off
	f.buf = f.buf[:nRead]
	return f.buf[:n], nil
}

// Get implements Fasta.Get().
func (f *indexedFasta) Get(name string, start, end uint64) (string, error) {
	if end <= start {
		return "", fmt.Errorf("start must be less than end")
	}
	ent, ok := f.seqs[name]
	if !ok {
		return "", fmt.Errorf("sequence not found in index: %s", name)
	}
	if end > ent.Length {
		return "", fmt.Errorf("end is past end of sequence %s: %d", name, ent.Length)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Map base coordinates to byte offsets, accounting for line terminators.
	byteOff := func(pos uint64) uint64 {
		return ent.Offset + pos/ent.LineBases*ent.LineWidth + pos%ent.LineBases
	}
	first, last := byteOff(start), byteOff(end-1)
	raw, err := f.read(int64(first), int(last-first+1))
	if err != nil {
		return "", err
	}
	result := make([]byte, 0, end-start)
	linePos := (first - ent.Offset) % ent.LineWidth
	for _, b := range raw {
		if linePos < ent.LineBases {
			result = append(result, b)
		}
		if linePos++; linePos == ent.LineWidth {
			linePos = 0
		}
	}
	return string(result), nil
}

// Indexed is a Fasta backed by an open FASTA file and its .fai index.
type Indexed struct {
	Fasta
	in file.File
}

// Open opens fastaPath for random access through the index at fastaPath +
// ".fai".
func Open(ctx context.Context, fastaPath string) (*Indexed, error) {
	faiPath := fastaPath + ".fai"
	idx, err := file.Open(ctx, faiPath)
	if err != nil {
		return nil, errors.E(err, "open FASTA index", faiPath)
	}
	defer idx.Close(ctx) // nolint: errcheck
	in, err := file.Open(ctx, fastaPath)
	if err != nil {
		return nil, errors.E(err, "open FASTA", fastaPath)
	}
	fa, err := NewIndexed(in.Reader(ctx), idx.Reader(ctx))
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, errors.E(err, "parse FASTA index", faiPath)
	}
	return &Indexed{Fasta: fa, in: in}, nil
}

// Close closes the underlying FASTA file.
func (f *Indexed) Close(ctx context.Context) error {
	return f.in.Close(ctx)
}
