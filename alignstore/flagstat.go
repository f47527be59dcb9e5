package alignstore

import (
	"fmt"
	"io"

	"github.com/grailbio/hts/sam"
)

// FlagCounts holds the "samtools flagstat" counters for one QC class.
type FlagCounts struct {
	Total         int
	Mapped        int
	Duplicate     int
	Secondary     int
	Supplementary int
	Paired        int
	ProperPair    int
	Singleton     int
	BothMapped    int
	DiffChr       int
	DiffChrMapQ5  int
	Read1, Read2  int
}

func (c *FlagCounts) record(r *sam.Record) {
	c.Total++
	f := r.Flags
	if f&sam.Unmapped == 0 {
		c.Mapped++
	}
	if f&sam.Duplicate != 0 {
		c.Duplicate++
	}
	switch {
	case f&sam.Secondary != 0:
		c.Secondary++
	case f&sam.Supplementary != 0:
		c.Supplementary++
	case f&sam.Paired != 0:
		c.Paired++
		if f&sam.ProperPair != 0 && f&sam.Unmapped == 0 {
			c.ProperPair++
		}
		if f&sam.Read1 != 0 {
			c.Read1++
		}
		if f&sam.Read2 != 0 {
			c.Read2++
		}
		if f&sam.MateUnmapped != 0 && f&sam.Unmapped == 0 {
			c.Singleton++
		}
		if f&sam.Unmapped == 0 && f&sam.MateUnmapped == 0 {
			c.BothMapped++
			if r.Ref.ID() != r.MateRef.ID() {
				c.DiffChr++
				if r.MapQ >= 5 {
					c.DiffChrMapQ5++
				}
			}
		}
	}
}

// Flagstat summarizes the flags of a set of records, split by the QC-fail
// bit.
type Flagstat struct {
	Passed, Failed FlagCounts
}

// Add counts r.
func (s *Flagstat) Add(r *sam.Record) {
	if r.Flags&sam.QCFail != 0 {
		s.Failed.record(r)
	} else {
		s.Passed.record(r)
	}
}

// ComputeFlagstat counts every record of it.
func ComputeFlagstat(it Iterator) (Flagstat, error) {
	var s Flagstat
	for it.Scan() {
		s.Add(it.Record())
	}
	return s, it.Err()
}

func percent(a int, b int) string {
	if b == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", float64(a)*100/float64(b))
}

// WriteTo writes s in the text format of "samtools flagstat".
func (s Flagstat) WriteTo(w io.Writer) (int64, error) {
	qc, failed := s.Passed, s.Failed
	lines := []string{
		fmt.Sprintf("%d + %d in total (QC-passed reads + QC-failed reads)", qc.Total, failed.Total),
		fmt.Sprintf("%d + %d secondary", qc.Secondary, failed.Secondary),
		fmt.Sprintf("%d + %d supplementary", qc.Supplementary, failed.Supplementary),
		fmt.Sprintf("%d + %d duplicates", qc.Duplicate, failed.Duplicate),
		fmt.Sprintf("%d + %d mapped (%s : %s)", qc.Mapped, failed.Mapped,
			percent(qc.Mapped, qc.Total), percent(failed.Mapped, failed.Total)),
		fmt.Sprintf("%d + %d paired in sequencing", qc.Paired, failed.Paired),
		fmt.Sprintf("%d + %d read1", qc.Read1, failed.Read1),
		fmt.Sprintf("%d + %d read2", qc.Read2, failed.Read2),
		fmt.Sprintf("%d + %d properly paired (%s : %s)", qc.ProperPair, failed.ProperPair,
			percent(qc.ProperPair, qc.Paired), percent(failed.ProperPair, failed.Paired)),
		fmt.Sprintf("%d + %d with itself and mate mapped", qc.BothMapped, failed.BothMapped),
		fmt.Sprintf("%d + %d singletons (%s : %s)", qc.Singleton, failed.Singleton,
			percent(qc.Singleton, qc.Paired), percent(failed.Singleton, failed.Paired)),
		fmt.Sprintf("%d + %d with mate mapped to a different chr", qc.DiffChr, failed.DiffChr),
		fmt.Sprintf("%d + %d with mate mapped to a different chr (mapQ>=5)", qc.DiffChrMapQ5, failed.DiffChrMapQ5),
	}
	var n int64
	for _, l := range lines {
		k, err := fmt.Fprintln(w, l)
		n += int64(k)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
