package refmap

import (
	"context"
	"os"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/refmap/encoding/fasta"
	"github.com/grailbio/refmap/interval"
	"github.com/grailbio/refmap/pairmerge"
	"github.com/grailbio/refmap/toolexec"
)

// Report summarizes one sample run.
type Report struct {
	Sample    string
	Regions   int
	Clusters  ClusterStats
	Stats     MapStats
	InnerDist int
	// StatsErr is set when the read counts could not be collected.
	StatsErr error
	Elapsed  time.Duration
}

// Pipeline runs the reference mapping stage for one sample at a time. The
// reference must be indexed before Run is called. A Pipeline may run several
// samples concurrently.
type Pipeline struct {
	Config    *Config
	Mapper    *Mapper
	Estimator *InsertSizeEstimator
	Regions   *RegionMerger
	Stats     *StatsCollector
	Ref       fasta.Fasta
	Merger    *pairmerge.Merger
	Open      StoreOpener
}

// NewPipeline wires the stage components. ref is the indexed reference.
func NewPipeline(cfg *Config, runner toolexec.Runner, ref fasta.Fasta) *Pipeline {
	est := NewInsertSizeEstimator(cfg, runner)
	return &Pipeline{
		Config:    cfg,
		Mapper:    NewMapper(cfg, runner),
		Estimator: est,
		Regions:   NewRegionMerger(cfg, est, OpenBAM),
		Stats:     NewStatsCollector(cfg, runner, OpenBAM),
		Ref:       ref,
		Merger:    NewPairMerger(cfg, runner),
		Open:      OpenBAM,
	}
}

// MakeDirs creates the working directories of cfg.
func MakeDirs(cfg *Config) error {
	for _, d := range []string{cfg.Dirs.Edits, cfg.Dirs.RefMapping, cfg.Dirs.Clusts} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return errors.E(err, "create", d)
		}
	}
	return nil
}

// Run maps the sample, merges its footprints into regions, writes one locus
// per region to the cluster store and counts the mapped and unmapped reads.
func (p *Pipeline) Run(ctx context.Context, s *Sample) (Report, error) {
	start := time.Now()
	rep := Report{Sample: s.Name}
	log.Printf("%s: mapping to %s", s.Name, p.Config.Reference)
	if _, _, err := p.Mapper.Map(ctx, s); err != nil {
		return rep, err
	}
	regions, err := p.Regions.Merge(ctx, s)
	if err != nil {
		return rep, err
	}
	rep.Regions = len(regions)
	rep.InnerDist, _ = s.innerMateDistance()
	if rep.Clusters, err = p.BuildLoci(ctx, s, regions); err != nil {
		return rep, err
	}
	if rep.Stats, err = p.Stats.Collect(ctx, s); err != nil {
		if !IsKind(err, StatsParse) || ctx.Err() != nil {
			return rep, err
		}
		log.Error.Printf("%v", err)
		rep.StatsErr = err
	}
	rep.Elapsed = time.Since(start)
	log.Printf("%s: done in %v", s.Name, rep.Elapsed)
	return rep, nil
}

// BuildLoci builds the cluster store of a sample from its mapped store and
// the given regions.
func (p *Pipeline) BuildLoci(ctx context.Context, s *Sample, regions []interval.Region) (stats ClusterStats, err error) {
	if len(regions) == 0 {
		return BuildClusters(ctx, p.Config, s, regions, nil)
	}
	store, err := p.Open(ctx, s.MappedBAM)
	if err != nil {
		return stats, errors.E(err, "open", s.MappedBAM)
	}
	defer func() {
		if e := store.Close(); err == nil {
			err = e
		}
	}()
	lb := NewLocusBuilder(p.Config, p.Ref, store, p.Merger)
	return BuildClusters(ctx, p.Config, s, regions, lb)
}
