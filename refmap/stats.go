package refmap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/refmap/alignstore"
	"github.com/grailbio/refmap/toolexec"
)

// MapStats counts the reads of a sample on each side of the mapping filter.
type MapStats struct {
	Sample   string
	Mapped   int
	Unmapped int
}

// StatsCollector counts the mapped and unmapped reads of a sample.
type StatsCollector struct {
	cfg    *Config
	runner toolexec.Runner
	open   StoreOpener
}

// NewStatsCollector creates a StatsCollector. open is used when
// cfg.InProcessFlagstat is set.
func NewStatsCollector(cfg *Config, runner toolexec.Runner, open StoreOpener) *StatsCollector {
	return &StatsCollector{cfg: cfg, runner: runner, open: open}
}

// FirstInt parses the first whitespace-delimited field of "samtools
// flagstat" output, the number of QC-passed records.
func FirstInt(out []byte) (int, error) {
	fields := bytes.Fields(out)
	if len(fields) == 0 {
		return 0, &Error{Kind: StatsParse, Op: "samtools flagstat", Err: fmt.Errorf("empty output")}
	}
	n, err := strconv.Atoi(string(fields[0]))
	if err != nil {
		return 0, &Error{Kind: StatsParse, Op: "samtools flagstat", Err: err}
	}
	return n, nil
}

func (c *StatsCollector) count(ctx context.Context, s *Sample, path string) (int, error) {
	if c.cfg.InProcessFlagstat {
		store, err := c.open(ctx, path)
		if err != nil {
			return 0, &Error{Kind: StatsParse, Sample: s.Name, Op: "flagstat " + path, Err: err}
		}
		defer store.Close() // nolint: errcheck
		it := store.Scan()
		fs, err := alignstore.ComputeFlagstat(it)
		if cerr := it.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return 0, &Error{Kind: StatsParse, Sample: s.Name, Op: "flagstat " + path, Err: err}
		}
		return fs.Passed.Total, nil
	}
	cmd := toolexec.Cmd{Path: c.cfg.Tools.Samtools, Args: []string{"flagstat", path}}
	log.Debug.Printf("%s: %s", s.Name, cmd)
	out, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return 0, &Error{Kind: StatsParse, Sample: s.Name, Op: cmd.String(), Err: err}
	}
	n, err := FirstInt(out)
	if e, ok := err.(*Error); ok {
		e.Sample = s.Name
	}
	return n, err
}

// Collect counts the records of the sample's unmapped and mapped stores.
func (c *StatsCollector) Collect(ctx context.Context, s *Sample) (MapStats, error) {
	st := MapStats{Sample: s.Name}
	var err error
	if st.Unmapped, err = c.count(ctx, s, s.UnmappedBAM); err != nil {
		return st, err
	}
	if st.Mapped, err = c.count(ctx, s, s.MappedBAM); err != nil {
		return st, err
	}
	log.Printf("%s: %d mapped, %d unmapped", s.Name, st.Mapped, st.Unmapped)
	return st, nil
}

// WriteStats writes one line per sample: name, mapped and unmapped counts,
// after a header line.
func WriteStats(w io.Writer, stats []MapStats) error {
	out := tsv.NewWriter(w)
	out.WriteString("sample")
	out.WriteString("refseq_mapped_reads")
	out.WriteString("refseq_unmapped_reads")
	if err := out.EndLine(); err != nil {
		return err
	}
	for _, st := range stats {
		out.WriteString(st.Sample)
		out.WriteInt64(int64(st.Mapped))
		out.WriteInt64(int64(st.Unmapped))
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}
