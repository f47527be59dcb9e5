package refmap

import (
	"path/filepath"
	"sync"
)

// Sample holds the file layout of one sample and the values computed for it
// during the stage.
type Sample struct {
	Name string

	// Derep is the dereplicated input, <edits>/<name>_derep.fastq.
	Derep string
	// Split1 and Split2 hold the mates of paired input.
	Split1, Split2 string
	// SAM is the raw aligner output.
	SAM string
	// UnmappedBAM receives the records that fail the mapping filter.
	UnmappedBAM string
	// MappedBAM is the sorted, indexed store of mapped records.
	MappedBAM string
	// SortPrefix is the samtools sort temp file prefix.
	SortPrefix string
	// Umap1 and Umap2 hold the unmapped mates before they are merged.
	Umap1, Umap2 string
	// Unmapped receives the reads handed back to the de novo path.
	Unmapped string
	// Regions is the region list.
	Regions string
	// Clusters is the cluster store.
	Clusters string

	mu            sync.Mutex
	innerMateDist int
	haveInnerDist bool
}

// NewSample lays out the files of sample name under the directories of cfg.
func NewSample(cfg *Config, name string) *Sample {
	edits := func(suffix string) string { return filepath.Join(cfg.Dirs.Edits, name+suffix) }
	refmapping := func(suffix string) string { return filepath.Join(cfg.Dirs.RefMapping, name+suffix) }
	return &Sample{
		Name:        name,
		Derep:       edits("_derep.fastq"),
		Split1:      edits("-split1.fastq"),
		Split2:      edits("-split2.fastq"),
		Umap1:       edits("-tmp-umap1.fastq"),
		Umap2:       edits("-tmp-umap2.fastq"),
		Unmapped:    edits("-refmap_derep.fastq"),
		SAM:         refmapping(".sam"),
		UnmappedBAM: refmapping("-unmapped.bam"),
		MappedBAM:   refmapping("-mapped-sorted.bam"),
		SortPrefix:  refmapping(".sam.tmp"),
		Regions:     refmapping("-regions.bed"),
		Clusters:    filepath.Join(cfg.Dirs.Clusts, name+".clust.gz"),
	}
}

// innerMateDistance returns the cached distance, if any.
func (s *Sample) innerMateDistance() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.innerMateDist, s.haveInnerDist
}

func (s *Sample) setInnerMateDistance(d int) {
	s.mu.Lock()
	s.innerMateDist, s.haveInnerDist = d, true
	s.mu.Unlock()
}
