package refmap

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/refmap/toolexec"
)

// DefaultInnerMateDistance is used when the insert size statistics are
// unavailable.
const DefaultInnerMateDistance = 300

// minInsertStdev is the smallest standard deviation used in the distance
// formula.
const minInsertStdev = 5

// InsertStats are the "samtools stats" summary numbers the distance is
// derived from.
type InsertStats struct {
	// Mean and Stdev describe the insert size.
	Mean, Stdev float64
	// ReadLen is the average read length.
	ReadLen float64
}

var summaryKeys = []string{
	"insert size average:",
	"insert size standard deviation:",
	"average length:",
}

// ParseSummaryNumbers extracts InsertStats from the output of "samtools
// stats". Only "SN" lines are read. A missing or malformed value yields a
// StatsParse error.
func ParseSummaryNumbers(r io.Reader) (InsertStats, error) {
	var (
		vals    [3]float64
		found   [3]bool
		scanner = bufio.NewScanner(r)
	)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "SN") {
			continue
		}
		for i, key := range summaryKeys {
			pos := strings.Index(line, key)
			if pos < 0 {
				continue
			}
			fields := strings.Fields(line[pos+len(key):])
			if len(fields) == 0 {
				return InsertStats{}, &Error{Kind: StatsParse, Op: "samtools stats",
					Err: fmt.Errorf("no value in %q", line)}
			}
			v, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return InsertStats{}, &Error{Kind: StatsParse, Op: "samtools stats",
					Err: fmt.Errorf("bad value in %q: %v", line, err)}
			}
			vals[i], found[i] = v, true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return InsertStats{}, &Error{Kind: StatsParse, Op: "samtools stats", Err: err}
	}
	for i, ok := range found {
		if !ok {
			return InsertStats{}, &Error{Kind: StatsParse, Op: "samtools stats",
				Err: fmt.Errorf("missing %q", summaryKeys[i])}
		}
	}
	return InsertStats{Mean: vals[0], Stdev: vals[1], ReadLen: vals[2]}, nil
}

// MaxInnerMateDistance derives the region merge tolerance for paired data.
// When twice the read length is below the mean insert, most mates do not
// overlap and the distance is the expected gap plus three standard
// deviations; otherwise it is the mean excess over one read length scaled by
// three standard deviations.
func MaxInnerMateDistance(st InsertStats) int {
	if st.Mean == 0 || st.ReadLen == 0 {
		return DefaultInnerMateDistance
	}
	stdev := st.Stdev
	if stdev == 0 {
		stdev += 0.1
	}
	if stdev < minInsertStdev {
		stdev = minInsertStdev
	}
	sd := math.Ceil(stdev)
	var d float64
	if 2*st.ReadLen < st.Mean {
		d = st.Mean + 3*sd - 2*st.ReadLen
	} else {
		d = (st.Mean - st.ReadLen) * 3 * sd
	}
	return int(math.Ceil(d))
}

// InsertSizeEstimator computes the inner mate distance of a sample from its
// mapped store.
type InsertSizeEstimator struct {
	cfg    *Config
	runner toolexec.Runner
}

// NewInsertSizeEstimator creates an estimator that runs samtools with runner.
func NewInsertSizeEstimator(cfg *Config, runner toolexec.Runner) *InsertSizeEstimator {
	return &InsertSizeEstimator{cfg: cfg, runner: runner}
}

// Estimate returns the maximum inner mate distance of the sample, computing
// it on first use. Missing or malformed statistics give
// DefaultInnerMateDistance. Only a failure to run samtools is an error.
func (e *InsertSizeEstimator) Estimate(ctx context.Context, s *Sample) (int, error) {
	if d, ok := s.innerMateDistance(); ok {
		return d, nil
	}
	cmd := toolexec.Cmd{Path: e.cfg.Tools.Samtools, Args: []string{"stats", s.MappedBAM}}
	log.Debug.Printf("%s: %s", s.Name, cmd)
	out, err := e.runner.Run(ctx, cmd)
	if err != nil {
		return 0, &Error{Kind: RegionMerge, Sample: s.Name, Op: cmd.String(), Err: err}
	}
	d := DefaultInnerMateDistance
	st, err := ParseSummaryNumbers(bytes.NewReader(out))
	if err != nil {
		log.Printf("%s: %v; using inner mate distance %d", s.Name, err, d)
	} else {
		d = MaxInnerMateDistance(st)
		log.Debug.Printf("%s: insert mean %v stdev %v read length %v", s.Name, st.Mean, st.Stdev, st.ReadLen)
	}
	log.Printf("%s: inner mate distance %d", s.Name, d)
	s.setInnerMateDistance(d)
	return d, nil
}
