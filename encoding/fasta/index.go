package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// GenerateIndex writes the .fai index of the FASTA data in "in" to "out", in
// the format produced by "samtools faidx".
func GenerateIndex(out io.Writer, in io.Reader) (err error) {
	var (
		w       = tsv.NewWriter(out)
		r       = bufio.NewReader(in)
		cur     IndexEntry
		cumByte uint64
		eof     bool
	)
	setErr := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	flush := func() {
		if cur.Name == "" {
			return
		}
		w.WriteString(cur.Name)
		w.WriteInt64(int64(cur.Length))
		w.WriteInt64(int64(cur.Offset))
		w.WriteInt64(int64(cur.LineBases))
		w.WriteInt64(int64(cur.LineWidth))
		setErr(w.EndLine())
	}
	for !eof && err == nil {
		fullLine, e := r.ReadBytes('\n')
		if e == io.EOF {
			eof = true
		} else if e != nil {
			setErr(e)
		}
		cumByte += uint64(len(fullLine))
		line := bytes.TrimRight(fullLine, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			flush()
			cur = IndexEntry{Name: seqName(string(line)), Offset: cumByte}
			continue
		}
		if cur.Name == "" {
			setErr(errors.E("malformed FASTA file: sequence before first header"))
			break
		}
		if cur.LineWidth == 0 {
			cur.LineWidth = uint64(len(fullLine))
			cur.LineBases = uint64(len(line))
		}
		cur.Length += uint64(len(line))
	}
	flush()
	setErr(w.Flush())
	if cumByte == 0 {
		setErr(errors.E("empty FASTA file"))
	}
	return
}
