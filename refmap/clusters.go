package refmap

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/refmap/interval"
	"github.com/klauspost/compress/gzip"
	"v.io/x/lib/vlog"
)

// Delimiter separates loci in a cluster store.
const Delimiter = "\n//\n//\n"

// ClusterWriter batches rendered loci into a cluster store.
type ClusterWriter struct {
	w         io.Writer
	batchSize int
	batch     []string
	// lead is written before the first batch.
	lead string
	n    int
}

// NewClusterWriter creates a writer that emits loci to w in batches of
// batchSize. In append mode the first write starts with a Delimiter so the
// loci follow those already in the store.
func NewClusterWriter(w io.Writer, appendMode bool, batchSize int) *ClusterWriter {
	if batchSize <= 0 {
		batchSize = DefaultLocusBatchSize
	}
	cw := &ClusterWriter{w: w, batchSize: batchSize}
	if appendMode {
		cw.lead = Delimiter
	}
	return cw
}

// Add queues a locus, writing the batch once it is full. A full batch is
// written with a trailing Delimiter.
func (cw *ClusterWriter) Add(l Locus) error {
	cw.batch = append(cw.batch, l.String())
	cw.n++
	if len(cw.batch) < cw.batchSize {
		return nil
	}
	return cw.write(Delimiter)
}

// Len returns the number of loci added so far.
func (cw *ClusterWriter) Len() int { return cw.n }

func (cw *ClusterWriter) write(tail string) error {
	s := cw.lead + strings.Join(cw.batch, Delimiter) + tail
	cw.lead = ""
	cw.batch = cw.batch[:0]
	_, err := io.WriteString(cw.w, s)
	return err
}

// Close writes the pending partial batch, if any. It does not close the
// underlying writer.
func (cw *ClusterWriter) Close() error {
	if len(cw.batch) == 0 {
		return nil
	}
	return cw.write("")
}

// Discard drops the pending batch.
func (cw *ClusterWriter) Discard() {
	cw.n -= len(cw.batch)
	cw.batch = cw.batch[:0]
}

// clusterStore is an open gzip cluster store file.
type clusterStore struct {
	f  *os.File
	gz *gzip.Writer
}

func (c *clusterStore) Write(p []byte) (int, error) { return c.gz.Write(p) }

func (c *clusterStore) Close() error {
	err := c.gz.Close()
	if e := c.f.Close(); err == nil {
		err = e
	}
	return err
}

// OpenClusterStore opens the cluster store at path for writing. Reference
// stores are truncated; DenovoReference stores are appended to as a new gzip
// member.
func OpenClusterStore(path string, method Method) (io.WriteCloser, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if method == DenovoReference {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, errors.E(err, "open cluster store", path)
	}
	return &clusterStore{f: f, gz: gzip.NewWriter(f)}, nil
}

// ReadClusterStore reads every locus of a cluster store. Empty entries,
// such as the one produced by an append to an empty store, are dropped.
func ReadClusterStore(path string) (loci []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.E(err, "read cluster store", path)
	}
	defer gz.Close() // nolint: errcheck
	var b strings.Builder
	if _, err := io.Copy(&b, gz); err != nil {
		return nil, errors.E(err, "read cluster store", path)
	}
	for _, l := range strings.Split(b.String(), Delimiter) {
		if l != "" {
			loci = append(loci, l)
		}
	}
	return loci, nil
}

// ClusterStats counts the outcome of BuildClusters.
type ClusterStats struct {
	Regions int
	Loci    int
	// NoReads and MergeFailed count skipped regions.
	NoReads, MergeFailed int
}

// Builder builds the locus of one region.
type Builder interface {
	Build(ctx context.Context, s *Sample, r interval.Region) (Result, error)
}

// BuildClusters builds the locus of each region and writes the loci to the
// sample's cluster store. Nothing is written when there are no regions. On
// cancellation the pending batch is dropped, so the store holds only whole
// batches.
func BuildClusters(ctx context.Context, cfg *Config, s *Sample, regions []interval.Region, b Builder) (stats ClusterStats, err error) {
	if len(regions) == 0 {
		log.Error.Printf("%s: no regions; cluster store %s left untouched", s.Name, s.Clusters)
		return stats, nil
	}
	out, err := OpenClusterStore(s.Clusters, cfg.Method)
	if err != nil {
		return stats, err
	}
	defer func() {
		if e := out.Close(); err == nil && e != nil {
			err = errors.E(e, "close cluster store", s.Clusters)
		}
	}()
	return writeClusters(ctx, s, regions, b, NewClusterWriter(out, cfg.Method == DenovoReference, cfg.LocusBatchSize))
}

func writeClusters(ctx context.Context, s *Sample, regions []interval.Region, b Builder, cw *ClusterWriter) (stats ClusterStats, err error) {
	for _, r := range regions {
		if err = ctx.Err(); err != nil {
			cw.Discard()
			return stats, err
		}
		stats.Regions++
		res, err := b.Build(ctx, s, r)
		if err != nil {
			cw.Discard()
			return stats, err
		}
		if res.Skip != nil {
			vlog.VI(1).Infof("%s: %s skipped: %v", s.Name, r.String1(), res.Skip.Reason)
			switch res.Skip.Reason {
			case NoReads:
				stats.NoReads++
			case MergeFailed:
				stats.MergeFailed++
				log.Printf("%s: skipping %s: %v", s.Name, r.String1(), res.Skip.Err)
			}
			continue
		}
		vlog.VI(2).Infof("%s: %s: %d entries", s.Name, r.String1(), len(res.Locus.Entries))
		if err = cw.Add(res.Locus); err != nil {
			return stats, errors.E(err, "write cluster store", s.Clusters)
		}
		stats.Loci++
	}
	if err = cw.Close(); err != nil {
		return stats, errors.E(err, "write cluster store", s.Clusters)
	}
	log.Printf("%s: %d loci from %d regions (%d without reads, %d merge failures)",
		s.Name, stats.Loci, stats.Regions, stats.NoReads, stats.MergeFailed)
	return stats, nil
}
