package refmap

import (
	"context"
	"strings"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/refmap/interval"
	"github.com/grailbio/refmap/toolexec"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func regionFixture(t *testing.T) *storeBuilder {
	b := newStoreBuilder(t)
	return b.
		add("a;size=3;", b.chr1, 10, strings.Repeat("A", 20), 0).
		add("b;size=1;", b.chr1, 25, strings.Repeat("C", 10), sam.Reverse).
		add("c;size=2;", b.chr1, 100, strings.Repeat("G", 10), 0).
		add("d;size=1;", b.chr2, 5, strings.Repeat("T", 10), 0).
		add("e;size=1;", nil, 0, "ACGT", 0)
}

func TestRegionMergerSingle(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, SingleEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")

	rm := NewRegionMerger(cfg, nil, regionFixture(t).opener())
	regions, err := rm.Merge(ctx, s)
	assert.NoError(t, err)
	want := []interval.Region{{Contig: "chr1", Start: 10, End: 35}, {Contig: "chr1", Start: 100, End: 110}, {Contig: "chr2", Start: 5, End: 15}}
	expect.EQ(t, regions, want)
	expect.EQ(t, readFile(t, s.Regions), "chr1\t10\t35\nchr1\t100\t110\nchr2\t5\t15\n")
	back, err := interval.ReadRegionsFromPath(ctx, s.Regions)
	assert.NoError(t, err)
	expect.EQ(t, back, want)
}

func TestRegionMergerPaired(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, PairedEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")
	// Overlapping mates: (110-100)*3*5 = 150.
	stats := toolexec.RunnerFunc(func(ctx context.Context, cmds ...toolexec.Cmd) ([]byte, error) {
		return []byte("SN\tinsert size average:\t110\nSN\tinsert size standard deviation:\t0\nSN\taverage length:\t100\n"), nil
	})
	rm := NewRegionMerger(cfg, NewInsertSizeEstimator(cfg, stats), regionFixture(t).opener())
	regions, err := rm.Merge(ctx, s)
	assert.NoError(t, err)
	expect.EQ(t, regions, []interval.Region{{Contig: "chr1", Start: 10, End: 110}, {Contig: "chr2", Start: 5, End: 15}})
	d, ok := s.innerMateDistance()
	expect.True(t, ok)
	expect.EQ(t, d, 150)
}

func TestRegionMergerPairedShortInsert(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, PairedEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")
	// (140-150)*3*5 = -150: overlapping footprints still merge.
	stats := toolexec.RunnerFunc(func(ctx context.Context, cmds ...toolexec.Cmd) ([]byte, error) {
		return []byte("SN\tinsert size average:\t140\nSN\tinsert size standard deviation:\t5\nSN\taverage length:\t150\n"), nil
	})
	expect.EQ(t, MaxInnerMateDistance(InsertStats{Mean: 140, Stdev: 5, ReadLen: 150}), -150)
	rm := NewRegionMerger(cfg, NewInsertSizeEstimator(cfg, stats), regionFixture(t).opener())
	regions, err := rm.Merge(ctx, s)
	assert.NoError(t, err)
	expect.EQ(t, regions, []interval.Region{{Contig: "chr1", Start: 10, End: 35}, {Contig: "chr1", Start: 100, End: 110}, {Contig: "chr2", Start: 5, End: 15}})
	for i := 1; i < len(regions); i++ {
		prev, cur := regions[i-1], regions[i]
		expect.True(t, prev.Contig != cur.Contig || prev.End < cur.Start, "%v overlaps %v", prev, cur)
	}
}

func TestRegionMergerErrors(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, SingleEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")

	b := newStoreBuilder(t)
	b.add("a", b.chr1, 50, "ACGT", 0).add("b", b.chr1, 10, "ACGT", 0)
	_, err := NewRegionMerger(cfg, nil, b.opener()).Merge(ctx, s)
	expect.True(t, IsKind(err, RegionMerge), err)

	empty := newStoreBuilder(t)
	regions, err := NewRegionMerger(cfg, nil, empty.opener()).Merge(ctx, s)
	assert.NoError(t, err)
	expect.EQ(t, len(regions), 0)
	expect.EQ(t, readFile(t, s.Regions), "")
}
