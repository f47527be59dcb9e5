package interval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PosType is the coordinate type.
type PosType int32

const posTypeMax = math.MaxInt32

// Region is the 0-based half-open interval [Start, End) on Contig.
type Region struct {
	Contig     string
	Start, End PosType
}

// Len returns the number of bases in r.
func (r Region) Len() PosType { return r.End - r.Start }

// String0 renders r as "contig:start-end" with the 0-based start.
func (r Region) String0() string {
	return fmt.Sprintf("%s:%d-%d", SanitizeContig(r.Contig), r.Start, r.End)
}

// String1 renders r as "contig:start-end" with a 1-based inclusive start,
// the samtools region convention.
func (r Region) String1() string {
	return fmt.Sprintf("%s:%d-%d", SanitizeContig(r.Contig), r.Start+1, r.End)
}

// SanitizeContig replaces the '|' characters that some reference builds put
// in contig names, since '|' is a field separator downstream.
func SanitizeContig(name string) string {
	return strings.Replace(name, "|", "_", -1)
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// The last form covers the whole contig.
func ParseRegionString(region string) (result Region, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.Contig = region
		result.End = posTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.Contig = region[:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start, result.End = PosType(pos1-1), PosType(pos1)
		return
	}
	var start1, end int
	if start1, err = strconv.Atoi(rangeStr[:dashPos]); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr[:dashPos])
		return
	}
	if end, err = strconv.Atoi(rangeStr[dashPos+1:]); err != nil {
		return
	}
	if end < start1 || end >= posTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start, result.End = PosType(start1-1), PosType(end)
	return
}
