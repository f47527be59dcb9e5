// Package fastq reads and writes four-line FASTQ records. Merged mate pairs
// can be far longer than a sequencer read, so lines are not length-limited.
package fastq

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

var (
	// ErrShort is returned when the data ends inside a record.
	ErrShort = errors.New("truncated FASTQ record")
	// ErrInvalid is returned when a header or separator line is malformed.
	ErrInvalid = errors.New("invalid FASTQ record")
	// ErrDiscordant is returned when the two files of a pair hold a different
	// number of records.
	ErrDiscordant = errors.New("discordant FASTQ pairs")
)

// Read is one FASTQ record. ID holds the header line including the leading
// '@'.
type Read struct {
	ID, Seq, Qual string
}

// Name returns the read name: the header without '@', up to the first
// whitespace.
func (r *Read) Name() string {
	name := strings.TrimPrefix(r.ID, "@")
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	return name
}

// Scanner reads FASTQ records one at a time. Blank lines between records
// and CRLF line endings are tolerated. A Scanner is not thread safe.
type Scanner struct {
	r    *bufio.Reader
	err  error
	line int
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64<<10)}
}

// readLine returns the next line without its terminator. ok is false at end of
// data or on error.
func (s *Scanner) readLine() (line string, ok bool) {
	b, err := s.r.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.err = err
		return "", false
	}
	if len(b) == 0 && err == io.EOF {
		return "", false
	}
	s.line++
	return string(bytes.TrimRight(b, "\r\n")), true
}

// Scan reads the next record into read. It returns false at the end of the
// data or on error; Err distinguishes the two. Once Scan returns false it
// never returns true again.
func (s *Scanner) Scan(read *Read) bool {
	if s.err != nil {
		return false
	}
	var (
		id string
		ok bool
	)
	for {
		if id, ok = s.readLine(); !ok {
			if s.err == nil {
				s.err = io.EOF
			}
			return false
		}
		if id != "" {
			break
		}
	}
	if id[0] != '@' {
		s.err = ErrInvalid
		return false
	}
	var lines [3]string
	for i := range lines {
		if lines[i], ok = s.readLine(); !ok {
			if s.err == nil {
				s.err = ErrShort
			}
			return false
		}
	}
	if lines[1] == "" || lines[1][0] != '+' {
		s.err = ErrInvalid
		return false
	}
	read.ID, read.Seq, read.Qual = id, lines[0], lines[2]
	return true
}

// Err returns the error that stopped the scan, or nil at a clean end of data.
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// PairScanner scans the R1 and R2 files of a pair in lock step.
type PairScanner struct {
	r1, r2 *Scanner
	err    error
}

// NewPairScanner creates a PairScanner over the given R1 and R2 data.
func NewPairScanner(r1, r2 io.Reader) *PairScanner {
	return &PairScanner{r1: NewScanner(r1), r2: NewScanner(r2)}
}

// Scan reads the next pair. When one side ends before the other, Scan returns
// false and Err returns ErrDiscordant.
func (p *PairScanner) Scan(r1, r2 *Read) bool {
	ok1 := p.r1.Scan(r1)
	ok2 := p.r2.Scan(r2)
	if ok1 != ok2 {
		p.err = ErrDiscordant
	}
	return ok1 && ok2
}

// Err returns the scan error, if any.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}

// CountPairs scans both files to the end and returns the number of pairs.
// It fails with ErrDiscordant if the files hold different numbers of
// records.
func CountPairs(r1, r2 io.Reader) (int, error) {
	var (
		s      = NewPairScanner(r1, r2)
		a, b   Read
		nPairs int
	)
	for s.Scan(&a, &b) {
		nPairs++
	}
	return nPairs, s.Err()
}
