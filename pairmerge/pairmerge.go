// Package pairmerge combines the two mates of each read pair into a single
// sequence. Mates that overlap are merged by vsearch; mates that do not are
// joined end to end with an "nnnn" spacer.
package pairmerge

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/refmap/biosimd"
	"github.com/grailbio/refmap/encoding/derep"
	"github.com/grailbio/refmap/encoding/fastq"
	"github.com/grailbio/refmap/toolexec"
)

// QualSpacer is the quality string paired with the sequence spacer of a
// joined pair.
const QualSpacer = "!!!!"

// Params are the overlap criteria passed to vsearch. Zero MinOverlap and
// MinMergeLen take the value from DefaultParams; MaxDiffs is passed as
// given, so zero allows no mismatches.
type Params struct {
	// MinOverlap is the minimum overlap between mates (--fastq_minovlen).
	MinOverlap int
	// MaxDiffs is the maximum number of mismatches in the overlap
	// (--fastq_maxdiffs).
	MaxDiffs int
	// MinMergeLen is the minimum length of a merged read (--fastq_minmergelen).
	MinMergeLen int
}

// DefaultParams are the criteria used when none are configured.
var DefaultParams = Params{MinOverlap: 20, MaxDiffs: 4, MinMergeLen: 32}

// Opts controls one Merge call.
type Opts struct {
	// RevcompSecondMate reverse-complements the second mate before it is
	// joined to the first. Set it when R2 holds reads in sequencing
	// orientation.
	RevcompSecondMate bool
	// ForceMerge tries to merge overlapping mates with vsearch before joining
	// the rest. Without it every pair is joined.
	ForceMerge bool
}

// Merger merges mate files. The zero value joins pairs without vsearch.
type Merger struct {
	// Vsearch is the path of the vsearch binary.
	Vsearch string
	// Runner runs vsearch. Defaults to toolexec.Local.
	Runner toolexec.Runner
	// Threads is passed to vsearch --threads; values below 1 mean 1.
	Threads int
	Params  Params
}

// Stats describes one Merge call.
type Stats struct {
	Pairs, Merged, Joined int
}

func (m *Merger) runner() toolexec.Runner {
	if m.Runner == nil {
		return toolexec.Local{}
	}
	return m.Runner
}

func (m *Merger) vsearchCmd(r1, r2, merged, nm1, nm2 string) toolexec.Cmd {
	p := m.Params
	if p.MinOverlap == 0 {
		p.MinOverlap = DefaultParams.MinOverlap
	}
	if p.MinMergeLen == 0 {
		p.MinMergeLen = DefaultParams.MinMergeLen
	}
	threads := m.Threads
	if threads < 1 {
		threads = 1
	}
	return toolexec.Cmd{Path: m.Vsearch, Args: []string{
		"--fastq_mergepairs", r1,
		"--reverse", r2,
		"--fastqout", merged,
		"--fastqout_notmerged_fwd", nm1,
		"--fastqout_notmerged_rev", nm2,
		"--fastq_minovlen", strconv.Itoa(p.MinOverlap),
		"--fastq_maxdiffs", strconv.Itoa(p.MaxDiffs),
		"--fastq_minmergelen", strconv.Itoa(p.MinMergeLen),
		"--fastq_allowmergestagger",
		"--threads", strconv.Itoa(threads),
	}}
}

// Merge reads the mate files r1 and r2 and writes one FASTQ record per pair
// to out: merged pairs first, then the joined ones. The mate files must hold
// the same number of records; otherwise Merge fails with an error wrapping
// fastq.ErrDiscordant and out is not created. Intermediate files are
// removed before Merge returns.
func (m *Merger) Merge(ctx context.Context, r1, r2, out string, opts Opts) (stats Stats, err error) {
	if stats.Pairs, err = countPairs(ctx, r1, r2); err != nil {
		return stats, err
	}
	dst, err := file.Create(ctx, out)
	if err != nil {
		return stats, err
	}
	w := fastq.NewWriter(dst.Writer(ctx))
	defer func() {
		if e := w.Flush(); err == nil {
			err = e
		}
		if e := dst.Close(ctx); err == nil {
			err = e
		}
	}()

	join1, join2 := r1, r2
	if opts.ForceMerge && stats.Pairs > 0 {
		prefix := fmt.Sprintf("%s.%s", out, uuid.New().String())
		merged, nm1, nm2 := prefix+".merged", prefix+".nm1", prefix+".nm2"
		defer removeAll(ctx, merged, nm1, nm2)
		cmd := m.vsearchCmd(r1, r2, merged, nm1, nm2)
		log.Debug.Printf("pairmerge: %s", cmd)
		if _, err = m.runner().Run(ctx, cmd); err != nil {
			return stats, err
		}
		if stats.Merged, err = copyReads(ctx, w, merged); err != nil {
			return stats, err
		}
		join1, join2 = nm1, nm2
	}
	stats.Joined, err = joinFiles(ctx, w, join1, join2, opts.RevcompSecondMate)
	return stats, err
}

// Join joins one pair. The second mate is reverse-complemented, and its
// qualities reversed, when revcomp is set.
func Join(a, b fastq.Read, revcomp bool) fastq.Read {
	seq2, qual2 := []byte(b.Seq), []byte(b.Qual)
	if revcomp {
		biosimd.ReverseComp8Inplace(seq2)
		biosimd.Reverse8Inplace(qual2)
	}
	return fastq.Read{
		ID:   a.ID,
		Seq:  derep.Join(a.Seq, string(seq2)),
		Qual: a.Qual + QualSpacer + string(qual2),
	}
}

func countPairs(ctx context.Context, r1, r2 string) (n int, err error) {
	err = withPair(ctx, r1, r2, func(in1, in2 io.Reader) error {
		var e error
		n, e = fastq.CountPairs(in1, in2)
		return e
	})
	if err != nil {
		return 0, fmt.Errorf("pairmerge: mate files %s, %s: %w", r1, r2, err)
	}
	return n, nil
}

func joinFiles(ctx context.Context, w *fastq.Writer, r1, r2 string, revcomp bool) (n int, err error) {
	err = withPair(ctx, r1, r2, func(in1, in2 io.Reader) error {
		var (
			s    = fastq.NewPairScanner(in1, in2)
			a, b fastq.Read
		)
		for s.Scan(&a, &b) {
			joined := Join(a, b, revcomp)
			if err := w.Write(&joined); err != nil {
				return err
			}
			n++
		}
		return s.Err()
	})
	return n, err
}

func copyReads(ctx context.Context, w *fastq.Writer, path string) (n int, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, err
	}
	defer in.Close(ctx) // nolint: errcheck
	var (
		s    = fastq.NewScanner(in.Reader(ctx))
		read fastq.Read
	)
	for s.Scan(&read) {
		if err := w.Write(&read); err != nil {
			return n, err
		}
		n++
	}
	return n, s.Err()
}

func withPair(ctx context.Context, r1, r2 string, fn func(in1, in2 io.Reader) error) error {
	in1, err := file.Open(ctx, r1)
	if err != nil {
		return err
	}
	defer in1.Close(ctx) // nolint: errcheck
	in2, err := file.Open(ctx, r2)
	if err != nil {
		return err
	}
	defer in2.Close(ctx) // nolint: errcheck
	return fn(in1.Reader(ctx), in2.Reader(ctx))
}

func removeAll(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if err := file.Remove(ctx, p); err != nil {
			log.Debug.Printf("pairmerge: remove %s: %v", p, err)
		}
	}
}
