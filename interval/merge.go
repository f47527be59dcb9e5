package interval

import "fmt"

// Merger combines a stream of footprints, sorted by contig and then by start,
// into maximal regions. A footprint starting at or before the current
// region's end plus Tolerance extends the region; anything else closes it.
// With a zero Tolerance, abutting footprints still merge.
//
// Typical usage:
//   m := interval.NewMerger(tol, func(r interval.Region) error { ... })
//   for ... { if err := m.Add(contig, start, end); err != nil { ... } }
//   err := m.Flush()
type Merger struct {
	tolerance PosType
	emit      func(Region) error

	cur  Region
	open bool
	// done holds the contigs whose footprints have ended.
	done map[string]bool
}

// NewMerger creates a Merger that passes every finished region to emit, in
// order. A negative tolerance is treated as zero, so overlapping footprints
// always merge.
func NewMerger(tolerance PosType, emit func(Region) error) *Merger {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Merger{tolerance: tolerance, emit: emit, done: map[string]bool{}}
}

// Add feeds the footprint [start, end) on contig. It fails if the footprint
// is out of order.
func (m *Merger) Add(contig string, start, end PosType) error {
	if end < start {
		return fmt.Errorf("interval.Merger: footprint %s:%d-%d has negative length", contig, start, end)
	}
	if !m.open {
		if m.done[contig] {
			return fmt.Errorf("interval.Merger: contig %s is not contiguous in the input", contig)
		}
		m.cur, m.open = Region{contig, start, end}, true
		return nil
	}
	if contig != m.cur.Contig {
		if m.done[contig] {
			return fmt.Errorf("interval.Merger: contig %s is not contiguous in the input", contig)
		}
		m.done[m.cur.Contig] = true
		if err := m.emit(m.cur); err != nil {
			return err
		}
		m.cur = Region{contig, start, end}
		return nil
	}
	if start < m.cur.Start {
		return fmt.Errorf("interval.Merger: footprint %s:%d-%d out of order after start %d", contig, start, end, m.cur.Start)
	}
	if start <= m.cur.End+m.tolerance {
		if end > m.cur.End {
			m.cur.End = end
		}
		return nil
	}
	if err := m.emit(m.cur); err != nil {
		return err
	}
	m.cur.Start, m.cur.End = start, end
	return nil
}

// Flush emits the last open region. The Merger can be reused afterwards,
// but contigs already seen stay closed.
func (m *Merger) Flush() error {
	if !m.open {
		return nil
	}
	m.open = false
	m.done[m.cur.Contig] = true
	return m.emit(m.cur)
}

// Merge merges sorted footprints into a new slice.
func Merge(footprints []Region, tolerance PosType) ([]Region, error) {
	var out []Region
	m := NewMerger(tolerance, func(r Region) error {
		out = append(out, r)
		return nil
	})
	for _, f := range footprints {
		if err := m.Add(f.Contig, f.Start, f.End); err != nil {
			return nil, err
		}
	}
	if err := m.Flush(); err != nil {
		return nil, err
	}
	return out, nil
}
