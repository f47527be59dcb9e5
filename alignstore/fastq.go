package alignstore

import (
	"io"
	"strings"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/refmap/biosimd"
	"github.com/grailbio/refmap/encoding/fastq"
)

// QualFiller is the quality character written for bases whose quality is
// missing from the record.
const QualFiller = 'I'

// ToFASTQ converts r to a FASTQ read in the orientation it was sequenced in:
// reverse-strand alignments are reverse-complemented and their qualities
// reversed.
func ToFASTQ(r *sam.Record, suffix string) fastq.Read {
	seq := r.Seq.Expand()
	qual := make([]byte, len(r.Qual))
	if len(r.Qual) == 0 || r.Qual[0] == 0xff {
		qual = []byte(strings.Repeat(string(QualFiller), len(seq)))
	} else {
		for i, q := range r.Qual {
			qual[i] = q + 33
		}
	}
	if r.Flags&sam.Reverse != 0 {
		biosimd.ReverseComp8Inplace(seq)
		biosimd.Reverse8Inplace(qual)
	}
	return fastq.Read{ID: "@" + r.Name + suffix, Seq: string(seq), Qual: string(qual)}
}

// WriteFASTQ converts the primary records of it to FASTQ in the manner of
// "samtools bam2fq". When r2 is nil every record goes to r1 under its plain
// name. Otherwise first mates go to r1 with a "/1" suffix, second mates go to
// r2 with a "/2" suffix, and records that are neither are dropped. It returns
// the number of reads written to each output.
func WriteFASTQ(it Iterator, r1, r2 io.Writer) (n1, n2 int, err error) {
	w1 := fastq.NewWriter(r1)
	var w2 *fastq.Writer
	if r2 != nil {
		w2 = fastq.NewWriter(r2)
	}
	for it.Scan() {
		rec := it.Record()
		if rec.Flags&(sam.Secondary|sam.Supplementary) != 0 {
			continue
		}
		switch {
		case w2 == nil:
			read := ToFASTQ(rec, "")
			err = w1.Write(&read)
			n1++
		case rec.Flags&sam.Read1 != 0:
			read := ToFASTQ(rec, "/1")
			err = w1.Write(&read)
			n1++
		case rec.Flags&sam.Read2 != 0:
			read := ToFASTQ(rec, "/2")
			err = w2.Write(&read)
			n2++
		}
		if err != nil {
			return n1, n2, err
		}
	}
	if err = it.Err(); err != nil {
		return n1, n2, err
	}
	if err = w1.Flush(); err == nil && w2 != nil {
		err = w2.Flush()
	}
	return n1, n2, err
}
