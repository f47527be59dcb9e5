// Package derep reads and writes dereplicated read files. Each record is two
// lines: a header of the form ">name;size=N;" followed by the sequence on a
// single line. For paired data the sequence holds both mates joined by the
// spacer "nnnn".
package derep

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Record is one dereplicated read.
type Record struct {
	// Header is the header line without the leading '>'.
	Header string
	Seq    string
}

// ParseHeader extracts the read name and its abundance from a header such as
// "r12;size=40;". A header without a size field has size 1.
func ParseHeader(header string) (name string, size int, err error) {
	header = strings.TrimPrefix(header, ">")
	fields := strings.Split(header, ";")
	name, size = fields[0], 1
	if name == "" {
		return "", 0, errors.Errorf("derep header %q: empty name", header)
	}
	for _, f := range fields[1:] {
		if !strings.HasPrefix(f, "size=") {
			continue
		}
		if size, err = strconv.Atoi(f[len("size="):]); err != nil || size <= 0 {
			return "", 0, errors.Errorf("derep header %q: bad size", header)
		}
	}
	return name, size, nil
}

// Scanner reads Records two lines at a time.
type Scanner struct {
	r   *bufio.Reader
	rec Record
	err error
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 64<<10)}
}

func (s *Scanner) line() (string, bool) {
	b, err := s.r.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.err = err
		return "", false
	}
	if len(b) == 0 {
		return "", false
	}
	return string(bytes.TrimRight(b, "\r\n")), true
}

// Scan advances to the next record. It returns false at the end of the data
// or on error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	header, ok := s.line()
	for ok && header == "" {
		header, ok = s.line()
	}
	if !ok {
		return false
	}
	if header[0] != '>' {
		s.err = errors.Errorf("derep header %q: missing '>'", header)
		return false
	}
	seq, ok := s.line()
	if !ok {
		if s.err == nil {
			s.err = errors.Errorf("derep record %q: missing sequence", header)
		}
		return false
	}
	s.rec = Record{Header: header[1:], Seq: seq}
	return true
}

// Record returns the record read by the last successful Scan.
func (s *Scanner) Record() Record { return s.rec }

// Err returns the error that stopped the scan, if any.
func (s *Scanner) Err() error { return s.err }

// Writer writes Records. Call Flush when done.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write writes rec.
func (w *Writer) Write(rec Record) error {
	for _, s := range []string{">", rec.Header, "\n", rec.Seq, "\n"} {
		if w.err != nil {
			break
		}
		_, w.err = w.w.WriteString(s)
	}
	return w.err
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}
