package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// WriteRegions writes regions as a three-column BED list.
func WriteRegions(w io.Writer, regions []Region) error {
	out := tsv.NewWriter(w)
	for _, r := range regions {
		out.WriteString(r.Contig)
		out.WriteInt64(int64(r.Start))
		out.WriteInt64(int64(r.End))
		if err := out.EndLine(); err != nil {
			return err
		}
	}
	return out.Flush()
}

// ReadRegions parses a region list: one "contig start end" triple per line,
// separated by any whitespace. Fields past the third are ignored and blank
// lines are skipped.
func ReadRegions(r io.Reader) ([]Region, error) {
	var (
		scanner = bufio.NewScanner(r)
		tokens  [3][]byte
		regions []Region
		lineIdx int
	)
	for scanner.Scan() {
		lineIdx++
		nToken := getTokens(tokens[:], scanner.Bytes())
		if nToken == 0 {
			continue
		}
		if nToken != 3 {
			return nil, fmt.Errorf("interval.ReadRegions: line %d has fewer tokens than expected", lineIdx)
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, fmt.Errorf("interval.ReadRegions: line %d: %v", lineIdx, err)
		}
		end, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return nil, fmt.Errorf("interval.ReadRegions: line %d: %v", lineIdx, err)
		}
		if start < 0 || end < start || end >= posTypeMax {
			return nil, fmt.Errorf("interval.ReadRegions: line %d: invalid interval [%d, %d)", lineIdx, start, end)
		}
		regions = append(regions, Region{
			Contig: string(tokens[0]),
			Start:  PosType(start),
			End:    PosType(end),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}

// ReadRegionsFromPath reads a region list from path, decompressing it if the
// name ends in ".gz".
func ReadRegionsFromPath(ctx context.Context, path string) (regions []Region, err error) {
	infile, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		if reader, err = gzip.NewReader(reader); err != nil {
			return nil, err
		}
	}
	return ReadRegions(reader)
}

// WriteRegionsToPath writes regions to path, replacing any existing file.
func WriteRegionsToPath(ctx context.Context, path string, regions []Region) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return WriteRegions(out.Writer(ctx), regions)
}
