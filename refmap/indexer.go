package refmap

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/refmap/encoding/fasta"
	"github.com/grailbio/refmap/toolexec"
	"github.com/minio/highwayhash"
)

// unsupportedCompressionHelp is shown when faidx rejects a gzip reference.
const unsupportedCompressionHelp = `reference sequence must be uncompressed fasta or bgzip compressed,
%s is probably gzip compressed. Gunzip it with

    gunzip %s

then remove the ".gz" from the reference path in the config and rerun with force`

// referenceHashKey keys the reference fingerprint. Changing it invalidates
// every stored fingerprint.
var referenceHashKey = []byte("refmap reference fingerprint v01")

// Indexer builds the aligner and faidx indexes of a reference.
type Indexer struct {
	cfg    *Config
	runner toolexec.Runner
}

// NewIndexer creates an Indexer that runs tools with runner.
func NewIndexer(cfg *Config, runner toolexec.Runner) *Indexer {
	return &Indexer{cfg: cfg, runner: runner}
}

// IndexFiles returns the index files of the reference at path.
func IndexFiles(path string) []string {
	return []string{path + ".sma", path + ".smi", path + ".fai"}
}

func hashPath(ref string) string { return ref + ".refmap.hwh" }

// Ensure builds the indexes of the reference at path unless they all exist
// and force is false. It reports whether it rebuilt them.
func (ix *Indexer) Ensure(ctx context.Context, path string, force bool) (rebuilt bool, err error) {
	if !force {
		current, err := ix.current(ctx, path)
		if err != nil {
			return false, err
		}
		if current {
			log.Printf("reference index of %s exists", path)
			return false, nil
		}
	} else {
		log.Printf("force reindexing of reference %s", path)
	}

	smalt := toolexec.Cmd{Path: ix.cfg.Tools.Smalt, Args: []string{
		"index", "-k", strconv.Itoa(ix.cfg.SmaltWordLen), path, path}}
	log.Printf("indexing reference %s", path)
	_, smaltErr := ix.runner.Run(ctx, smalt)
	faidxErr := ix.faidx(ctx, path)
	if smaltErr != nil {
		return false, &Error{Kind: Indexing, Op: smalt.String(), Err: smaltErr}
	}
	if faidxErr != nil {
		return false, faidxErr
	}
	if ix.cfg.VerifyReferenceHash {
		if err := writeReferenceHash(ctx, path); err != nil {
			return true, &Error{Kind: Indexing, Op: "fingerprint " + path, Err: err}
		}
	}
	log.Printf("done indexing reference %s", path)
	return true, nil
}

func (ix *Indexer) faidx(ctx context.Context, path string) error {
	if ix.cfg.InProcessIndex {
		return generateFAI(ctx, path)
	}
	faidx := toolexec.Cmd{Path: ix.cfg.Tools.Samtools, Args: []string{"faidx", path}}
	out, err := ix.runner.Run(ctx, faidx)
	if err == nil {
		return nil
	}
	if strings.Contains(string(out)+err.Error(), "please use bgzip") {
		return &Error{Kind: UnsupportedCompression, Op: faidx.String(),
			Err: fmt.Errorf(unsupportedCompressionHelp, path, path)}
	}
	return &Error{Kind: Indexing, Op: faidx.String(), Err: err}
}

// generateFAI writes the .fai index of the uncompressed FASTA file at path.
func generateFAI(ctx context.Context, path string) (err error) {
	op := "faidx " + path
	in, err := file.Open(ctx, path)
	if err != nil {
		return &Error{Kind: Indexing, Op: op, Err: err}
	}
	defer in.Close(ctx) // nolint: errcheck
	r := bufio.NewReader(in.Reader(ctx))
	if magic, _ := r.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return &Error{Kind: UnsupportedCompression, Op: op,
			Err: fmt.Errorf("%s is compressed; gunzip it or unset in_process_index", path)}
	}
	fai := path + ".fai"
	out, err := file.Create(ctx, fai)
	if err != nil {
		return &Error{Kind: Indexing, Op: op, Err: err}
	}
	err = fasta.GenerateIndex(out.Writer(ctx), r)
	if cerr := out.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		file.Remove(ctx, fai) // nolint: errcheck
		return &Error{Kind: Indexing, Op: op, Err: err}
	}
	return nil
}

// current reports whether every index file exists and, when fingerprints are
// enabled, whether the reference still matches its fingerprint.
func (ix *Indexer) current(ctx context.Context, path string) (bool, error) {
	for _, p := range IndexFiles(path) {
		if _, err := file.Stat(ctx, p); err != nil {
			return false, nil
		}
	}
	if !ix.cfg.VerifyReferenceHash {
		return true, nil
	}
	stored, err := readHash(ctx, hashPath(path))
	if err != nil {
		return false, nil
	}
	sum, err := referenceHash(ctx, path)
	if err != nil {
		return false, &Error{Kind: Indexing, Op: "fingerprint " + path, Err: err}
	}
	if strings.TrimSpace(string(stored)) != sum {
		log.Printf("reference %s changed since it was indexed", path)
		return false, nil
	}
	return true, nil
}

func readHash(ctx context.Context, path string) ([]byte, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	return ioutil.ReadAll(in.Reader(ctx))
}

// referenceHash returns the hex highwayhash of the file at path.
func referenceHash(ctx context.Context, path string) (string, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer in.Close(ctx) // nolint: errcheck
	h, err := highwayhash.New(referenceHashKey)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, in.Reader(ctx)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeReferenceHash(ctx context.Context, path string) (err error) {
	sum, err := referenceHash(ctx, path)
	if err != nil {
		return err
	}
	out, err := file.Create(ctx, hashPath(path))
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	_, err = io.WriteString(out.Writer(ctx), sum+"\n")
	return err
}
