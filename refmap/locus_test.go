package refmap

import (
	"context"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/refmap/encoding/fasta"
	"github.com/grailbio/refmap/interval"
	"github.com/grailbio/refmap/toolexec"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func TestLocusString(t *testing.T) {
	l := Locus{Entries: []Entry{{">r;chr1:0-4;size=1;+", "ACGT"}, {">s;chr1:0-4;size=2;-", "ACGA"}}}
	expect.EQ(t, l.String(), ">r;chr1:0-4;size=1;+\nACGT\n>s;chr1:0-4;size=2;-\nACGA")
}

func TestBuildSingle(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, SingleEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")
	ref := testRef(t)
	fx := regionFixture(t)
	lb := NewLocusBuilder(cfg, ref, fx.store(), nil)

	r := interval.Region{Contig: "chr1", Start: 10, End: 35}
	res, err := lb.Build(ctx, s, r)
	assert.NoError(t, err)
	require.Nil(t, res.Skip)
	refSeq, err := ref.Get("chr1", 10, 35)
	require.NoError(t, err)
	expect.EQ(t, res.Locus.Region, r)
	expect.EQ(t, res.Locus.Entries, []Entry{
		{">chr1:11-35_REF;+", refSeq},
		{">a;chr1:10-35;size=3;+", strings.Repeat("A", 20)},
		{">b;chr1:10-35;size=1;-", strings.Repeat("C", 10)},
	})

	// N reads give N+1 entries.
	res, err = lb.Build(ctx, s, interval.Region{Contig: "chr2", Start: 5, End: 15})
	assert.NoError(t, err)
	require.Nil(t, res.Skip)
	expect.EQ(t, len(res.Locus.Entries), 2)
	expect.EQ(t, res.Locus.Entries[1].Header, ">d;chr2:5-15;size=1;+")

	res, err = lb.Build(ctx, s, interval.Region{Contig: "chr1", Start: 150, End: 190})
	assert.NoError(t, err)
	require.NotNil(t, res.Skip)
	expect.EQ(t, res.Skip.Reason, NoReads)

	// A region past the end of the reference cannot be built.
	_, err = lb.Build(ctx, s, interval.Region{Contig: "chr2", Start: 40, End: 80})
	expect.NotNil(t, err)
}

func TestBuildSanitizesContig(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, SingleEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")

	b := newStoreBuilder(t)
	ref, err := sam.NewReference("gi|123|chr", "", "", 20, nil, nil)
	require.NoError(t, err)
	b.header, err = sam.NewHeader(nil, []*sam.Reference{ref})
	require.NoError(t, err)
	b.add("r;size=1;", ref, 2, "GGTC", 0)
	fa, err := fasta.New(strings.NewReader(">gi|123|chr\nACGGTCATTGACGGTCATTG\n"))
	require.NoError(t, err)

	res, err := NewLocusBuilder(cfg, fa, b.store(), nil).Build(ctx, s,
		interval.Region{Contig: "gi|123|chr", Start: 2, End: 6})
	assert.NoError(t, err)
	require.Nil(t, res.Skip)
	expect.EQ(t, res.Locus.String(), ">gi_123_chr:3-6_REF;+\nGGTC\n>r;gi_123_chr:2-6;size=1;+\nGGTC")
}

func pairedFixture(t *testing.T) *storeBuilder {
	b := newStoreBuilder(t)
	return b.
		add("p;size=2;", b.chr1, 10, strings.Repeat("A", 10), sam.Paired|sam.ProperPair|sam.Read1).
		add("p;size=2;", b.chr1, 40, strings.Repeat("C", 10), sam.Paired|sam.ProperPair|sam.Read2|sam.Reverse).
		add("q;size=1;", b.chr1, 12, "ACGTACGTAC", sam.Paired|sam.ProperPair|sam.Read1).
		add("q;size=1;", b.chr1, 30, "TTTTTGGGGG", sam.Paired|sam.ProperPair|sam.Read2|sam.Reverse).
		// A lone first mate: the mate files of its region disagree.
		add("x;size=1;", b.chr1, 120, "ACGTACGTAC", sam.Paired|sam.Read1)
}

func TestBuildPaired(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, PairedEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")
	ref := testRef(t)
	tools := newFakeTools(t)
	tools.handlers["vsearch"] = passThroughVsearch(t)
	lb := NewLocusBuilder(cfg, ref, pairedFixture(t).store(), NewPairMerger(cfg, tools))

	res, err := lb.Build(ctx, s, interval.Region{Contig: "chr1", Start: 10, End: 50})
	assert.NoError(t, err)
	require.Nil(t, res.Skip)
	expect.EQ(t, res.Locus.Entries, []Entry{
		{">p;chr1:11-50;size=2;+", "AAAAAAAAAAnnnnGGGGGGGGGG"},
		{">q;chr1:11-50;size=1;+", "ACGTACGTACnnnnCCCCCAAAAA"},
	})

	res, err = lb.Build(ctx, s, interval.Region{Contig: "chr1", Start: 120, End: 130})
	assert.NoError(t, err)
	require.NotNil(t, res.Skip)
	expect.EQ(t, res.Skip.Reason, MergeFailed)
	expect.True(t, IsKind(res.Skip.Err, LocusMerge), res.Skip.Err)

	res, err = lb.Build(ctx, s, interval.Region{Contig: "chr2", Start: 0, End: 50})
	assert.NoError(t, err)
	require.NotNil(t, res.Skip)
	expect.EQ(t, res.Skip.Reason, NoReads)

	// No temp file is left behind.
	files, err := ioutil.ReadDir(cfg.Dirs.RefMapping)
	require.NoError(t, err)
	for _, f := range files {
		t.Errorf("leftover file %s", f.Name())
	}
}

func TestBuildPairedCanceled(t *testing.T) {
	cfg, cleanup := newTestConfig(t, PairedEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")
	ref := testRef(t)
	ctx, cancel := context.WithCancel(context.Background())
	tools := newFakeTools(t)
	tools.handlers["vsearch"] = func([]toolexec.Cmd) ([]byte, error) {
		cancel()
		return nil, context.Canceled
	}
	lb := NewLocusBuilder(cfg, ref, pairedFixture(t).store(), NewPairMerger(cfg, tools))
	_, err := lb.Build(ctx, s, interval.Region{Contig: "chr1", Start: 10, End: 50})
	expect.EQ(t, err, context.Canceled)
}

func TestBuildPairedMissingContig(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, PairedEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")
	tools := newFakeTools(t)
	tools.handlers["vsearch"] = passThroughVsearch(t)
	lb := NewLocusBuilder(cfg, testRef(t), pairedFixture(t).store(), NewPairMerger(cfg, tools))

	_, err := lb.Build(ctx, s, interval.Region{Contig: "chrX", Start: 0, End: 10})
	expect.NotNil(t, err)
	expect.EQ(t, len(tools.calls), 0)
	files, err := ioutil.ReadDir(cfg.Dirs.RefMapping)
	require.NoError(t, err)
	expect.EQ(t, len(files), 0)
}
