package refmap

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/refmap/alignstore"
	"github.com/grailbio/refmap/encoding/derep"
	"github.com/grailbio/refmap/pairmerge"
	"github.com/grailbio/refmap/toolexec"
)

// Mapper aligns the dereplicated reads of a sample to the reference and
// splits the alignments into a sorted, indexed store of mapped records and a
// read file of unmapped reads.
type Mapper struct {
	cfg    *Config
	runner toolexec.Runner
	merger *pairmerge.Merger
}

// NewMapper creates a Mapper that runs tools with runner.
func NewMapper(cfg *Config, runner toolexec.Runner) *Mapper {
	return &Mapper{
		cfg:    cfg,
		runner: runner,
		merger: NewPairMerger(cfg, runner),
	}
}

// NewPairMerger creates the mate merger configured by cfg.
func NewPairMerger(cfg *Config, runner toolexec.Runner) *pairmerge.Merger {
	return &pairmerge.Merger{
		Vsearch: cfg.Tools.Vsearch,
		Runner:  runner,
		Threads: cfg.Threads,
		Params:  cfg.mergeParams(),
	}
}

func (m *Mapper) mappingError(s *Sample, op string, err error) error {
	return &Error{Kind: Mapping, Sample: s.Name, Op: op, Err: err}
}

func (m *Mapper) run(ctx context.Context, s *Sample, cmds ...toolexec.Cmd) error {
	for _, c := range cmds {
		log.Debug.Printf("%s: %s", s.Name, c)
	}
	if _, err := m.runner.Run(ctx, cmds...); err != nil {
		return m.mappingError(s, cmds[0].String(), err)
	}
	return nil
}

// Map runs the aligner on the sample and returns the mapped store and the
// unmapped read file.
func (m *Mapper) Map(ctx context.Context, s *Sample) (mappedBAM, unmappedReads string, err error) {
	paired := m.cfg.Datatype == PairedEnd
	reads := []string{s.Derep}
	if paired {
		n, err := derep.SplitFile(ctx, s.Derep, s.Split1, s.Split2)
		if err != nil {
			return "", "", m.mappingError(s, "split "+s.Derep, err)
		}
		log.Debug.Printf("%s: split %d pairs", s.Name, n)
		reads = []string{s.Split1, s.Split2}
	}

	smalt := toolexec.Cmd{Path: m.cfg.Tools.Smalt, Args: []string{"map", "-f", "sam"}}
	if paired {
		smalt.Args = append(smalt.Args, "-l", "pe")
	}
	threads := m.cfg.Threads
	if threads < 1 {
		threads = 1
	}
	smalt.Args = append(smalt.Args,
		"-n", strconv.Itoa(threads),
		"-y", strconv.FormatFloat(m.cfg.ClustThreshold, 'g', -1, 64),
		"-o", s.SAM,
		"-x", m.cfg.Reference)
	smalt.Args = append(smalt.Args, reads...)
	if err := m.run(ctx, s, smalt); err != nil {
		return "", "", err
	}

	view := toolexec.Cmd{Path: m.cfg.Tools.Samtools, Args: []string{"view", "-b", "-F", "0x4"}}
	if paired {
		view.Args = append(view.Args, "-f", "0x2")
	}
	view.Args = append(view.Args, "-U", s.UnmappedBAM, s.SAM)
	sort := toolexec.Cmd{Path: m.cfg.Tools.Samtools, Args: []string{
		"sort", "-T", fmt.Sprintf("%s-%s", s.SortPrefix, uuid.New().String()),
		"-O", "bam", "-o", s.MappedBAM}}
	if err := m.run(ctx, s, view, sort); err != nil {
		return "", "", err
	}
	if m.cfg.InProcessIndex {
		if err := alignstore.BuildIndex(ctx, s.MappedBAM); err != nil {
			return "", "", m.mappingError(s, "index "+s.MappedBAM, err)
		}
	} else {
		index := toolexec.Cmd{Path: m.cfg.Tools.Samtools, Args: []string{"index", s.MappedBAM}}
		if err := m.run(ctx, s, index); err != nil {
			return "", "", err
		}
	}

	bam2fq := toolexec.Cmd{Path: m.cfg.Tools.Samtools, Args: []string{"bam2fq"}}
	if !paired {
		bam2fq.Args = append(bam2fq.Args, "-0", s.Unmapped, s.UnmappedBAM)
		if err := m.run(ctx, s, bam2fq); err != nil {
			return "", "", err
		}
		return s.MappedBAM, s.Unmapped, nil
	}
	bam2fq.Args = append(bam2fq.Args, "-1", s.Umap1, "-2", s.Umap2, s.UnmappedBAM)
	defer func() {
		for _, p := range []string{s.Umap1, s.Umap2} {
			if e := file.Remove(ctx, p); e != nil {
				log.Debug.Printf("%s: remove %s: %v", s.Name, p, e)
			}
		}
	}()
	if err := m.run(ctx, s, bam2fq); err != nil {
		return "", "", err
	}
	stats, err := m.merger.Merge(ctx, s.Umap1, s.Umap2, s.Unmapped,
		pairmerge.Opts{RevcompSecondMate: true, ForceMerge: true})
	if err != nil {
		return "", "", m.mappingError(s, "merge unmapped mates", err)
	}
	log.Printf("%s: %d unmapped pairs, %d merged", s.Name, stats.Pairs, stats.Merged)
	return s.MappedBAM, s.Unmapped, nil
}
