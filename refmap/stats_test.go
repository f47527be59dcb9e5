package refmap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/grailbio/refmap/toolexec"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestFirstInt(t *testing.T) {
	n, err := FirstInt([]byte("4242 + 0 in total (QC-passed reads + QC-failed reads)\n"))
	assert.NoError(t, err)
	expect.EQ(t, n, 4242)
	_, err = FirstInt(nil)
	expect.True(t, IsKind(err, StatsParse), err)
	_, err = FirstInt([]byte("[bam_flagstat] fail to open file\n"))
	expect.True(t, IsKind(err, StatsParse), err)
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, SingleEnd)
	defer cleanup()
	s := NewSample(cfg, "s1")
	tools := newFakeTools(t)
	tools.handlers["samtools flagstat"] = func(cmds []toolexec.Cmd) ([]byte, error) {
		switch cmds[0].Args[1] {
		case s.MappedBAM:
			return []byte("120 + 0 in total (QC-passed reads + QC-failed reads)\n"), nil
		case s.UnmappedBAM:
			return []byte("35 + 0 in total (QC-passed reads + QC-failed reads)\n"), nil
		}
		return nil, errors.New("no such file")
	}
	st, err := NewStatsCollector(cfg, tools, nil).Collect(ctx, s)
	assert.NoError(t, err)
	expect.EQ(t, st, MapStats{Sample: "s1", Mapped: 120, Unmapped: 35})

	tools.handlers["samtools flagstat"] = func(cmds []toolexec.Cmd) ([]byte, error) {
		return []byte("garbage"), nil
	}
	_, err = NewStatsCollector(cfg, tools, nil).Collect(ctx, s)
	expect.True(t, IsKind(err, StatsParse), err)
	var e *Error
	expect.True(t, errors.As(err, &e))
	expect.EQ(t, e.Sample, "s1")
}

func TestCollectInProcess(t *testing.T) {
	ctx := context.Background()
	cfg, cleanup := newTestConfig(t, SingleEnd)
	defer cleanup()
	cfg.InProcessFlagstat = true
	s := NewSample(cfg, "s1")
	// Both stores hold the same 5 records in this test.
	st, err := NewStatsCollector(cfg, nil, regionFixture(t).opener()).Collect(ctx, s)
	assert.NoError(t, err)
	expect.EQ(t, st, MapStats{Sample: "s1", Mapped: 5, Unmapped: 5})
}

func TestWriteStats(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, WriteStats(&buf, []MapStats{{"s1", 120, 35}, {"s2", 0, 7}}))
	expect.EQ(t, buf.String(), "sample\trefseq_mapped_reads\trefseq_unmapped_reads\ns1\t120\t35\ns2\t0\t7\n")
}
