package refmap

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/refmap/alignstore"
	"github.com/grailbio/refmap/encoding/fasta"
	"github.com/grailbio/refmap/toolexec"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

// newTestConfig returns a config whose directories live under a fresh temp
// dir.
func newTestConfig(t *testing.T, datatype Datatype) (cfg *Config, cleanup func()) {
	dir, cleanup := testutil.TempDir(t, "", "refmap")
	c := DefaultConfig()
	c.Reference = filepath.Join(dir, "ref.fa")
	c.Datatype = datatype
	c.Dirs = Dirs{
		Edits:      filepath.Join(dir, "edits"),
		RefMapping: filepath.Join(dir, "refmapping"),
		Clusts:     filepath.Join(dir, "clusts"),
	}
	c.Tools = Tools{Smalt: "smalt", Samtools: "samtools", Vsearch: "vsearch"}
	require.NoError(t, MakeDirs(&c))
	return &c, cleanup
}

// toolFunc handles one invocation of a fake tool pipeline.
type toolFunc func(cmds []toolexec.Cmd) ([]byte, error)

// fakeTools dispatches pipelines to handlers keyed by "<tool> <subcommand>"
// of the first command, and records every pipeline it runs.
type fakeTools struct {
	t        *testing.T
	handlers map[string]toolFunc
	mu       sync.Mutex
	calls    [][]toolexec.Cmd
}

func newFakeTools(t *testing.T) *fakeTools {
	return &fakeTools{t: t, handlers: map[string]toolFunc{}}
}

func cmdKey(c toolexec.Cmd) string {
	key := filepath.Base(c.Path)
	if len(c.Args) > 0 && !strings.HasPrefix(c.Args[0], "-") {
		key += " " + c.Args[0]
	}
	return key
}

func (f *fakeTools) Run(ctx context.Context, cmds ...toolexec.Cmd) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmds)
	f.mu.Unlock()
	h, ok := f.handlers[cmdKey(cmds[0])]
	if !ok {
		return nil, nil
	}
	return h(cmds)
}

// keys returns the keys of the recorded pipelines, pipelines joined by "|".
func (f *fakeTools) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, p := range f.calls {
		var k []string
		for _, c := range p {
			k = append(k, cmdKey(c))
		}
		keys = append(keys, strings.Join(k, "|"))
	}
	return keys
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func writeFile(t *testing.T, path, data string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
}

func readFile(t *testing.T, path string) string {
	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// passThroughVsearch merges no pair: every pair is copied to the not merged
// outputs.
func passThroughVsearch(t *testing.T) toolFunc {
	return func(cmds []toolexec.Cmd) ([]byte, error) {
		args := cmds[0].Args
		writeFile(t, argAfter(args, "--fastqout"), "")
		writeFile(t, argAfter(args, "--fastqout_notmerged_fwd"), readFile(t, argAfter(args, "--fastq_mergepairs")))
		writeFile(t, argAfter(args, "--fastqout_notmerged_rev"), readFile(t, argAfter(args, "--reverse")))
		return nil, nil
	}
}

// testRef is a 200 base chr1 and a 50 base chr2.
func testRef(t *testing.T) fasta.Fasta {
	bases := "ACGGTCATTG"
	text := ">chr1 test\n" + strings.Repeat(bases, 20) + "\n>chr2\n" + strings.Repeat("T", 50) + "\n"
	ref, err := fasta.New(strings.NewReader(text))
	require.NoError(t, err)
	return ref
}

type storeBuilder struct {
	t          *testing.T
	header     *sam.Header
	chr1, chr2 *sam.Reference
	recs       []*sam.Record
}

func newStoreBuilder(t *testing.T) *storeBuilder {
	b := &storeBuilder{t: t}
	var err error
	b.chr1, err = sam.NewReference("chr1", "", "", 200, nil, nil)
	require.NoError(t, err)
	b.chr2, err = sam.NewReference("chr2", "", "", 50, nil, nil)
	require.NoError(t, err)
	b.header, err = sam.NewHeader(nil, []*sam.Reference{b.chr1, b.chr2})
	require.NoError(t, err)
	b.header.SortOrder = sam.Coordinate
	return b
}

// add appends a record fully matching the reference; ref nil adds an
// unmapped record.
func (b *storeBuilder) add(name string, ref *sam.Reference, pos int, seq string, flags sam.Flags) *storeBuilder {
	var cigar []sam.CigarOp
	if ref != nil {
		cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, len(seq))}
	} else {
		pos = -1
		flags |= sam.Unmapped
	}
	r, err := sam.NewRecord(name, ref, nil, pos, -1, 0, 60, cigar, []byte(seq), nil, nil)
	require.NoError(b.t, err)
	r.Flags = flags
	b.recs = append(b.recs, r)
	return b
}

func (b *storeBuilder) store() *alignstore.MemStore {
	return alignstore.NewMemStore(b.header, b.recs)
}

// opener returns a StoreOpener that always yields the built store.
func (b *storeBuilder) opener() StoreOpener {
	return func(ctx context.Context, path string) (alignstore.Store, error) {
		return b.store(), nil
	}
}

// writeBAM writes the built records to a BAM file at path.
func (b *storeBuilder) writeBAM(path string) {
	out, err := os.Create(path)
	require.NoError(b.t, err)
	w, err := bam.NewWriter(out, b.header, 1)
	require.NoError(b.t, err)
	for _, r := range b.recs {
		require.NoError(b.t, w.Write(r))
	}
	require.NoError(b.t, w.Close())
	require.NoError(b.t, out.Close())
}
