package refmap

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/grailbio/refmap/interval"
	"github.com/grailbio/refmap/toolexec"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func TestMapSingle(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, SingleEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")
	tools := newFakeTools(t)

	mapped, unmapped, err := NewMapper(cfg, tools).Map(ctx, s)
	assert.NoError(t, err)
	expect.EQ(t, mapped, s.MappedBAM)
	expect.EQ(t, unmapped, s.Unmapped)
	expect.EQ(t, tools.keys(), []string{"smalt map", "samtools view|samtools sort", "samtools index", "samtools bam2fq"})

	smalt := tools.calls[0][0]
	expect.EQ(t, smalt.Args, []string{"map", "-f", "sam", "-n", "1", "-y", "0.85",
		"-o", s.SAM, "-x", cfg.Reference, s.Derep})
	view, sort := tools.calls[1][0], tools.calls[1][1]
	expect.EQ(t, view.Args, []string{"view", "-b", "-F", "0x4", "-U", s.UnmappedBAM, s.SAM})
	expect.True(t, strings.HasPrefix(argAfter(sort.Args, "-T"), s.SortPrefix+"-"), sort)
	expect.EQ(t, argAfter(sort.Args, "-o"), s.MappedBAM)
	expect.EQ(t, tools.calls[2][0].Args, []string{"index", s.MappedBAM})
	expect.EQ(t, tools.calls[3][0].Args, []string{"bam2fq", "-0", s.Unmapped, s.UnmappedBAM})
}

func TestMapInProcessIndex(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, SingleEnd)
	defer cleanup()
	cfg.InProcessIndex = true
	s := NewSample(cfg, "s1")

	b := newStoreBuilder(t)
	b.add("a;size=3;", b.chr1, 10, strings.Repeat("A", 20), 0).
		add("c;size=2;", b.chr1, 100, strings.Repeat("G", 10), 0).
		add("d;size=1;", b.chr2, 5, strings.Repeat("T", 10), 0)
	tools := newFakeTools(t)
	tools.handlers["samtools view"] = func(cmds []toolexec.Cmd) ([]byte, error) {
		b.writeBAM(argAfter(cmds[1].Args, "-o"))
		return nil, nil
	}

	mapped, _, err := NewMapper(cfg, tools).Map(ctx, s)
	assert.NoError(t, err)
	expect.EQ(t, tools.keys(), []string{"smalt map", "samtools view|samtools sort", "samtools bam2fq"})
	expect.True(t, exists(mapped+".bai"))

	store, err := OpenBAM(ctx, mapped)
	require.NoError(t, err)
	defer store.Close() // nolint: errcheck
	it := store.Query(interval.Region{Contig: "chr1", Start: 90, End: 150})
	var got []string
	for it.Scan() {
		got = append(got, it.Record().Name)
	}
	require.NoError(t, it.Close())
	expect.EQ(t, got, []string{"c;size=2;"})
}

func TestMapPaired(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, PairedEnd)
	defer cleanup()
	cfg.Threads = 3
	s := NewSample(cfg, "s1")
	writeFile(t, s.Derep, ">r1;size=2;\nAACCnnnnGGTT\n>r2;size=1;\nACGTnnnnTTTA\n")

	tools := newFakeTools(t)
	tools.handlers["samtools bam2fq"] = func(cmds []toolexec.Cmd) ([]byte, error) {
		args := cmds[0].Args
		writeFile(t, argAfter(args, "-1"), "@u;size=4;/1\nAAAC\n+\nIIII\n")
		writeFile(t, argAfter(args, "-2"), "@u;size=4;/2\nTTGC\n+\nABCD\n")
		return nil, nil
	}
	tools.handlers["vsearch"] = passThroughVsearch(t)

	_, _, err := NewMapper(cfg, tools).Map(ctx, s)
	assert.NoError(t, err)
	expect.EQ(t, tools.keys(), []string{"smalt map", "samtools view|samtools sort", "samtools index", "samtools bam2fq", "vsearch"})

	smalt := tools.calls[0][0].Args
	expect.EQ(t, smalt[:6], []string{"map", "-f", "sam", "-l", "pe", "-n"})
	expect.EQ(t, smalt[len(smalt)-2:], []string{s.Split1, s.Split2})
	expect.EQ(t, argAfter(tools.calls[1][0].Args, "-f"), "0x2")
	expect.EQ(t, argAfter(tools.calls[4][0].Args, "--threads"), "3")

	expect.EQ(t, readFile(t, s.Split1), ">r1;size=2;\nAACC\n>r2;size=1;\nACGT\n")
	expect.EQ(t, readFile(t, s.Split2), ">r1;size=2;\nGGTT\n>r2;size=1;\nTTTA\n")
	// The second mate is reverse complemented into the joined read.
	expect.EQ(t, readFile(t, s.Unmapped), "@u;size=4;/1\nAAACnnnnGCAA\n+\nIIII!!!!DCBA\n")
	expect.False(t, exists(s.Umap1))
	expect.False(t, exists(s.Umap2))
}

func TestMapFailure(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, SingleEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")
	tools := newFakeTools(t)
	tools.handlers["samtools view"] = func(cmds []toolexec.Cmd) ([]byte, error) {
		return nil, &toolexec.Error{Cmd: cmds[0].String(), Output: "[main_samview] truncated file.", Err: errors.New("exit status 1")}
	}
	_, _, err := NewMapper(cfg, tools).Map(ctx, s)
	require.Error(t, err)
	expect.True(t, IsKind(err, Mapping), err)
	var terr *toolexec.Error
	expect.True(t, errors.As(err, &terr))
	expect.EQ(t, len(tools.calls), 2)
}
