package refmap

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/refmap/alignstore"
	"github.com/grailbio/refmap/encoding/derep"
	"github.com/grailbio/refmap/encoding/fasta"
	"github.com/grailbio/refmap/encoding/fastq"
	"github.com/grailbio/refmap/interval"
	"github.com/grailbio/refmap/pairmerge"
)

// Entry is one sequence of a locus.
type Entry struct {
	// Header is the full header line, including the leading '>'.
	Header string
	Seq    string
}

// Locus is the set of reads aligned to one region.
type Locus struct {
	Region  interval.Region
	Entries []Entry
}

// String renders the locus as the text stored in a cluster store: one
// two-line record per entry.
func (l Locus) String() string {
	var b strings.Builder
	for i, e := range l.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Header)
		b.WriteByte('\n')
		b.WriteString(e.Seq)
	}
	return b.String()
}

// SkipReason tells why a region produced no locus.
type SkipReason int

const (
	// NoReads: no read overlaps the region.
	NoReads SkipReason = iota + 1
	// MergeFailed: the mates of the region could not be merged.
	MergeFailed
)

func (r SkipReason) String() string {
	switch r {
	case NoReads:
		return "no reads"
	case MergeFailed:
		return "merge failed"
	}
	return fmt.Sprintf("SkipReason(%d)", int(r))
}

// Skip describes a region that was skipped.
type Skip struct {
	Reason SkipReason
	// Err is set for MergeFailed; it is a LocusMerge *Error.
	Err error
}

// Result is the outcome of building one region: exactly one of Locus and
// Skip is meaningful.
type Result struct {
	Locus Locus
	Skip  *Skip
}

// LocusBuilder builds the locus of each region of one sample.
type LocusBuilder struct {
	cfg    *Config
	ref    fasta.Fasta
	store  alignstore.Store
	merger *pairmerge.Merger
}

// NewLocusBuilder creates a builder reading alignments from store and
// reference bases from ref. merger is used for paired data.
func NewLocusBuilder(cfg *Config, ref fasta.Fasta, store alignstore.Store, merger *pairmerge.Merger) *LocusBuilder {
	return &LocusBuilder{cfg: cfg, ref: ref, store: store, merger: merger}
}

// readLabel splits a "name;size=N;..." read header into its name and the
// count field "size=N".
func readLabel(header string) (name, count string) {
	header = strings.TrimPrefix(strings.TrimPrefix(header, ">"), "@")
	n, size, err := derep.ParseHeader(header)
	if err != nil {
		return strings.SplitN(header, ";", 2)[0], "size=1"
	}
	return n, fmt.Sprintf("size=%d", size)
}

// Build builds the locus of region r. Regions without reads, and paired
// regions whose mates fail to merge, are skipped. The returned error is set
// only for failures that concern the whole sample.
//
// The reference bases of r are fetched for both datatypes, so a region on a
// contig missing from the reference fails the sample. Paired loci do not
// carry them.
func (lb *LocusBuilder) Build(ctx context.Context, s *Sample, r interval.Region) (Result, error) {
	refSeq, err := lb.ref.Get(r.Contig, uint64(r.Start), uint64(r.End))
	if err != nil {
		return Result{}, fmt.Errorf("%s: reference %s: %v", s.Name, r.String1(), err)
	}
	if lb.cfg.Datatype == PairedEnd {
		return lb.buildPaired(ctx, s, r)
	}
	return lb.buildSingle(ctx, s, r, refSeq)
}

func (lb *LocusBuilder) buildSingle(ctx context.Context, s *Sample, r interval.Region, refSeq string) (Result, error) {
	locus := Locus{Region: r, Entries: []Entry{{
		Header: fmt.Sprintf(">%s_REF;+", r.String1()),
		Seq:    refSeq,
	}}}
	region0 := r.String0()
	it := lb.store.Query(r)
	for it.Scan() {
		rec := it.Record()
		name, count := readLabel(rec.Name)
		locus.Entries = append(locus.Entries, Entry{
			Header: fmt.Sprintf(">%s;%s;%s;%c", name, region0, count, alignstore.Strand(rec)),
			Seq:    string(rec.Seq.Expand()),
		})
	}
	if err := it.Close(); err != nil {
		return Result{}, fmt.Errorf("%s: query %s: %v", s.Name, region0, err)
	}
	if len(locus.Entries) == 1 {
		return Result{Skip: &Skip{Reason: NoReads}}, nil
	}
	return Result{Locus: locus}, nil
}

// mateFiles returns the temp files used to merge the mates of region r.
func mateFiles(cfg *Config, s *Sample, r interval.Region) (r1, r2, merged string) {
	prefix := filepath.Join(cfg.Dirs.RefMapping, fmt.Sprintf("%s-%s", s.Name, r.String0()))
	return prefix + "-R1", prefix + "-R2", prefix + "-merged"
}

func (lb *LocusBuilder) buildPaired(ctx context.Context, s *Sample, r interval.Region) (res Result, err error) {
	r1, r2, merged := mateFiles(lb.cfg, s, r)
	defer func() {
		for _, p := range []string{r1, r2, merged} {
			if e := file.Remove(ctx, p); e != nil {
				log.Debug.Printf("%s: remove %s: %v", s.Name, p, e)
			}
		}
	}()
	if err := lb.writeMates(ctx, r, r1, r2); err != nil {
		return Result{}, fmt.Errorf("%s: mates of %s: %v", s.Name, r.String0(), err)
	}
	if _, err := lb.merger.Merge(ctx, r1, r2, merged, pairmerge.Opts{ForceMerge: true}); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		merr := &Error{Kind: LocusMerge, Sample: s.Name, Op: "merge mates of " + r.String1(), Err: err}
		log.Debug.Printf("%v", merr)
		return Result{Skip: &Skip{Reason: MergeFailed, Err: merr}}, nil
	}
	locus, err := readMerged(ctx, merged, r)
	if err != nil {
		return Result{}, fmt.Errorf("%s: read %s: %v", s.Name, merged, err)
	}
	if len(locus.Entries) == 0 {
		return Result{Skip: &Skip{Reason: NoReads}}, nil
	}
	return Result{Locus: locus}, nil
}

func (lb *LocusBuilder) writeMates(ctx context.Context, r interval.Region, r1, r2 string) (err error) {
	out1, err := file.Create(ctx, r1)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out1, &err)
	out2, err := file.Create(ctx, r2)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out2, &err)
	it := lb.store.Query(r)
	_, _, err = alignstore.WriteFASTQ(it, out1.Writer(ctx), out2.Writer(ctx))
	if cerr := it.Close(); err == nil {
		err = cerr
	}
	return err
}

// readMerged reads the merged mates back one FASTQ record at a time.
func readMerged(ctx context.Context, path string, r interval.Region) (Locus, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return Locus{}, err
	}
	defer in.Close(ctx) // nolint: errcheck
	var (
		locus   = Locus{Region: r}
		region1 = r.String1()
		sc      = fastq.NewScanner(in.Reader(ctx))
		read    fastq.Read
	)
	for sc.Scan(&read) {
		name, count := readLabel(read.Name())
		locus.Entries = append(locus.Entries, Entry{
			Header: fmt.Sprintf(">%s;%s;%s;+", name, region1, count),
			Seq:    read.Seq,
		})
	}
	return locus, sc.Err()
}
