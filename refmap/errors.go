package refmap

import (
	"errors"
	"fmt"
)

// Kind classifies the failures of the reference mapping stage.
type Kind int

const (
	// Indexing: the aligner or faidx index of the reference could not be
	// built.
	Indexing Kind = iota + 1
	// UnsupportedCompression: the reference is gzip rather than bgzip
	// compressed.
	UnsupportedCompression
	// Mapping: alignment, filtering, sorting or unmapped read extraction
	// failed.
	Mapping
	// RegionMerge: the region list could not be built.
	RegionMerge
	// StatsParse: alignment statistics were missing or malformed.
	StatsParse
	// LocusMerge: the mates of one region could not be merged.
	LocusMerge
)

var kindNames = map[Kind]string{
	Indexing:               "indexing",
	UnsupportedCompression: "unsupported reference compression",
	Mapping:                "mapping",
	RegionMerge:            "region merge",
	StatsParse:             "stats parse",
	LocusMerge:             "locus merge",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a failure of one step of the stage. Err usually is a
// *toolexec.Error carrying the tool's command line and output.
type Error struct {
	Kind Kind
	// Sample is empty for failures that concern the reference.
	Sample string
	// Op names the failing step.
	Op  string
	Err error
}

func (e *Error) Error() string {
	var prefix string
	if e.Sample != "" {
		prefix = e.Sample + ": "
	}
	return fmt.Sprintf("%s%s error: %s: %v", prefix, e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Fatal reports whether an error of this kind aborts the sample.
func (k Kind) Fatal() bool {
	return k != StatsParse && k != LocusMerge
}
