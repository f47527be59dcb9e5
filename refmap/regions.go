package refmap

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/refmap/alignstore"
	"github.com/grailbio/refmap/interval"
)

// StoreOpener opens the alignment store at path.
type StoreOpener func(ctx context.Context, path string) (alignstore.Store, error)

// OpenBAM is the StoreOpener for BAM files.
func OpenBAM(ctx context.Context, path string) (alignstore.Store, error) {
	return alignstore.Open(ctx, path)
}

// RegionMerger turns the mapped store of a sample into its region list.
type RegionMerger struct {
	cfg       *Config
	estimator *InsertSizeEstimator
	open      StoreOpener
}

// NewRegionMerger creates a RegionMerger. The estimator is consulted for
// paired data only.
func NewRegionMerger(cfg *Config, estimator *InsertSizeEstimator, open StoreOpener) *RegionMerger {
	return &RegionMerger{cfg: cfg, estimator: estimator, open: open}
}

func (rm *RegionMerger) tolerance(ctx context.Context, s *Sample) (interval.PosType, error) {
	if rm.cfg.Datatype != PairedEnd {
		return 0, nil
	}
	d, err := rm.estimator.Estimate(ctx, s)
	if err != nil {
		return 0, err
	}
	// Mean inserts shorter than the read length give a negative distance;
	// overlapping footprints must still merge.
	if d < 0 {
		d = 0
	}
	return interval.PosType(d), nil
}

// Merge streams every mapped record of the sample's store and returns the
// union of their footprints, with footprints up to the merge tolerance apart
// joined into one region. The regions are also written to s.Regions.
func (rm *RegionMerger) Merge(ctx context.Context, s *Sample) ([]interval.Region, error) {
	tol, err := rm.tolerance(ctx, s)
	if err != nil {
		return nil, err
	}
	regions, err := rm.merge(ctx, s, tol)
	if err != nil {
		return nil, &Error{Kind: RegionMerge, Sample: s.Name, Op: "merge " + s.MappedBAM, Err: err}
	}
	if err := interval.WriteRegionsToPath(ctx, s.Regions, regions); err != nil {
		return nil, &Error{Kind: RegionMerge, Sample: s.Name, Op: "write " + s.Regions, Err: err}
	}
	log.Printf("%s: %d regions (tolerance %d)", s.Name, len(regions), tol)
	return regions, nil
}

func (rm *RegionMerger) merge(ctx context.Context, s *Sample, tol interval.PosType) (regions []interval.Region, err error) {
	store, err := rm.open(ctx, s.MappedBAM)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := store.Close(); err == nil {
			err = e
		}
	}()
	m := interval.NewMerger(tol, func(r interval.Region) error {
		regions = append(regions, r)
		return nil
	})
	it := store.Scan()
	for it.Scan() {
		fp, ok := alignstore.Footprint(it.Record())
		if !ok {
			continue
		}
		if err = m.Add(fp.Contig, fp.Start, fp.End); err != nil {
			it.Close() // nolint: errcheck
			return nil, err
		}
	}
	if err = it.Close(); err != nil {
		return nil, err
	}
	if err = m.Flush(); err != nil {
		return nil, err
	}
	return regions, nil
}
