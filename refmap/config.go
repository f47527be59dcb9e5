package refmap

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/refmap/pairmerge"
	"github.com/pelletier/go-toml/v2"
	"v.io/x/lib/lookpath"
)

// Datatype tells whether a sample holds single reads or mate pairs.
type Datatype int

const (
	// SingleEnd samples have one read per fragment.
	SingleEnd Datatype = iota
	// PairedEnd samples have two mates per fragment.
	PairedEnd
)

// ParseDatatype maps a library type name to a Datatype. Every paired library
// type carries "pair" in its name.
func ParseDatatype(s string) (Datatype, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rad", "gbs", "ddrad", "merged", "2brad", "se", "single":
		return SingleEnd, nil
	case "pairddrad", "pairgbs", "pair3rad", "pe", "paired":
		return PairedEnd, nil
	}
	return SingleEnd, fmt.Errorf("unknown datatype %q", s)
}

func (d Datatype) String() string {
	if d == PairedEnd {
		return "paired"
	}
	return "single"
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Datatype) UnmarshalText(text []byte) (err error) {
	*d, err = ParseDatatype(string(text))
	return
}

// MarshalText implements encoding.TextMarshaler.
func (d Datatype) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Method selects how reference loci are stored.
type Method int

const (
	// Reference loci replace the cluster store.
	Reference Method = iota
	// DenovoReference loci are appended to the de novo clusters.
	DenovoReference
)

// ParseMethod parses "reference" or "denovo+reference".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reference":
		return Reference, nil
	case "denovo+reference", "denovo_reference":
		return DenovoReference, nil
	}
	return Reference, fmt.Errorf("unknown assembly method %q", s)
}

func (m Method) String() string {
	if m == DenovoReference {
		return "denovo+reference"
	}
	return "reference"
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) (err error) {
	*m, err = ParseMethod(string(text))
	return
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Dirs are the per-project working directories.
type Dirs struct {
	// Edits holds the dereplicated reads and receives the unmapped reads.
	Edits string `toml:"edits"`
	// RefMapping holds alignments and region lists.
	RefMapping string `toml:"refmapping"`
	// Clusts holds the cluster stores.
	Clusts string `toml:"clusts"`
}

// Tools are the external programs. Bare names are resolved through $PATH by
// Validate.
type Tools struct {
	Smalt    string `toml:"smalt"`
	Samtools string `toml:"samtools"`
	Vsearch  string `toml:"vsearch"`
}

// MergeConfig holds the mate overlap criteria.
type MergeConfig struct {
	MinOverlap  int `toml:"min_overlap"`
	MaxDiffs    int `toml:"max_diffs"`
	MinMergeLen int `toml:"min_merge_len"`
}

// Config configures every component. It is passed explicitly; there is no
// process-wide state.
type Config struct {
	// Reference is the reference FASTA.
	Reference string   `toml:"reference"`
	Datatype  Datatype `toml:"datatype"`
	Method    Method   `toml:"method"`
	// ClustThreshold is the minimum identity for a read to map (smalt -y).
	ClustThreshold float64 `toml:"clust_threshold"`
	// SmaltWordLen is the index word length (smalt index -k).
	SmaltWordLen int `toml:"smalt_word_len"`
	// Threads is the aligner and merger thread count.
	Threads int `toml:"threads"`
	// LocusBatchSize is the number of loci per cluster store write.
	LocusBatchSize int         `toml:"locus_batch_size"`
	Dirs           Dirs        `toml:"dirs"`
	Tools          Tools       `toml:"tools"`
	Merge          MergeConfig `toml:"merge"`
	// VerifyReferenceHash rebuilds the reference index when the reference
	// contents change, not only when index files are missing.
	VerifyReferenceHash bool `toml:"verify_reference_hash"`
	// InProcessFlagstat counts mapped and unmapped reads without samtools.
	InProcessFlagstat bool `toml:"in_process_flagstat"`
	// InProcessIndex builds the reference .fai and the mapped BAM .bai
	// without samtools. The reference must then be uncompressed.
	InProcessIndex bool `toml:"in_process_index"`
}

// Defaults for zero-valued Config fields.
const (
	DefaultClustThreshold = 0.85
	DefaultSmaltWordLen   = 8
	DefaultLocusBatchSize = 1000
)

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		ClustThreshold: DefaultClustThreshold,
		SmaltWordLen:   DefaultSmaltWordLen,
		Threads:        1,
		LocusBatchSize: DefaultLocusBatchSize,
		Tools:          Tools{Smalt: "smalt", Samtools: "samtools", Vsearch: "vsearch"},
		Merge: MergeConfig{
			MinOverlap:  pairmerge.DefaultParams.MinOverlap,
			MaxDiffs:    pairmerge.DefaultParams.MaxDiffs,
			MinMergeLen: pairmerge.DefaultParams.MinMergeLen,
		},
	}
}

// LoadConfig reads a TOML config file. Keys absent from the file keep their
// defaults.
func LoadConfig(ctx context.Context, path string) (Config, error) {
	cfg := DefaultConfig()
	in, err := file.Open(ctx, path)
	if err != nil {
		return cfg, err
	}
	defer in.Close(ctx) // nolint: errcheck
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return cfg, errors.E(err, "read config", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.E(err, "parse config", path)
	}
	return cfg, nil
}

// Validate fills defaults, checks required fields and resolves the tool
// paths.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Reference == "" {
		return fmt.Errorf("config: reference is required")
	}
	if c.Dirs.Edits == "" || c.Dirs.RefMapping == "" || c.Dirs.Clusts == "" {
		return fmt.Errorf("config: dirs.edits, dirs.refmapping and dirs.clusts are required")
	}
	if c.ClustThreshold <= 0 || c.ClustThreshold > 1 {
		if c.ClustThreshold != 0 {
			return fmt.Errorf("config: clust_threshold %v not in (0, 1]", c.ClustThreshold)
		}
		c.ClustThreshold = def.ClustThreshold
	}
	if c.SmaltWordLen <= 0 {
		c.SmaltWordLen = def.SmaltWordLen
	}
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.LocusBatchSize <= 0 {
		c.LocusBatchSize = def.LocusBatchSize
	}
	if c.Merge.MinOverlap <= 0 {
		c.Merge.MinOverlap = def.Merge.MinOverlap
	}
	if c.Merge.MaxDiffs < 0 {
		c.Merge.MaxDiffs = def.Merge.MaxDiffs
	}
	if c.Merge.MinMergeLen <= 0 {
		c.Merge.MinMergeLen = def.Merge.MinMergeLen
	}
	env := map[string]string{"PATH": os.Getenv("PATH")}
	for _, t := range []struct {
		path *string
		def  string
	}{
		{&c.Tools.Smalt, def.Tools.Smalt},
		{&c.Tools.Samtools, def.Tools.Samtools},
		{&c.Tools.Vsearch, def.Tools.Vsearch},
	} {
		if *t.path == "" {
			*t.path = t.def
		}
		if strings.ContainsRune(*t.path, os.PathSeparator) {
			continue
		}
		resolved, err := lookpath.Look(env, *t.path)
		if err != nil {
			return errors.E(err, "config: tool not found:", *t.path)
		}
		*t.path = resolved
	}
	return nil
}

func (c *Config) mergeParams() pairmerge.Params {
	return pairmerge.Params{
		MinOverlap:  c.Merge.MinOverlap,
		MaxDiffs:    c.Merge.MaxDiffs,
		MinMergeLen: c.Merge.MinMergeLen,
	}
}
