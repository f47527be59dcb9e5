package derep

import (
	"context"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Spacer joins the two mates of a pair that could not be merged.
const Spacer = "nnnn"

// Split separates a joined pair at the first spacer.
func Split(seq string) (seq1, seq2 string, err error) {
	i := strings.Index(seq, Spacer)
	if i < 0 {
		return "", "", errors.E("no mate spacer in sequence", seq)
	}
	return seq[:i], seq[i+len(Spacer):], nil
}

// Join is the inverse of Split.
func Join(seq1, seq2 string) string {
	return seq1 + Spacer + seq2
}

// SplitFile splits every record of the joined-pair file in into its two
// mates, writing the first mates to out1 and the second mates to out2 under
// the original headers. It returns the number of records.
func SplitFile(ctx context.Context, in, out1, out2 string) (n int, err error) {
	src, err := file.Open(ctx, in)
	if err != nil {
		return 0, err
	}
	defer src.Close(ctx) // nolint: errcheck

	var dst [2]file.File
	for i, path := range []string{out1, out2} {
		if dst[i], err = file.Create(ctx, path); err != nil {
			if i == 1 {
				_ = dst[0].Close(ctx)
			}
			return 0, err
		}
	}
	w1, w2 := NewWriter(dst[0].Writer(ctx)), NewWriter(dst[1].Writer(ctx))
	sc := NewScanner(src.Reader(ctx))
	for sc.Scan() {
		rec := sc.Record()
		seq1, seq2, e := Split(rec.Seq)
		if e != nil {
			err = errors.E(e, in, "record", rec.Header)
			break
		}
		if err = w1.Write(Record{rec.Header, seq1}); err != nil {
			break
		}
		if err = w2.Write(Record{rec.Header, seq2}); err != nil {
			break
		}
		n++
	}
	if err == nil {
		err = sc.Err()
	}
	for i, w := range []*Writer{w1, w2} {
		if e := w.Flush(); err == nil {
			err = e
		}
		if e := dst[i].Close(ctx); err == nil {
			err = e
		}
	}
	return n, err
}
