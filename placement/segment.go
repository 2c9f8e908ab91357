package placement

import (
	"sort"

	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
)

// segment is one local alignment of a contig. Query coordinates are
// half-open offsets on the contig as assembled, whatever the strand of the
// alignment.
type segment struct {
	chrom            string
	refStart, refEnd int
	qStart, qEnd     int
	reverse          bool
	mapQ             int
	rec              *sam.Record
}

func (s segment) alignedLen() int { return s.qEnd - s.qStart }

// leftBreak is the 1-based reference position where the contig leaves the
// segment, reading the contig left to right.
func (s segment) leftBreak() int {
	if s.reverse {
		return s.refStart + 1
	}
	return s.refEnd
}

// rightBreak is the 1-based reference position where the contig enters the
// segment.
func (s segment) rightBreak() int {
	if s.reverse {
		return s.refEnd
	}
	return s.refStart + 1
}

func newSegment(r *sam.Record) segment {
	qlen := 0
	for _, op := range r.Cigar {
		t := op.Type()
		if t == sam.CigarHardClipped {
			qlen += op.Len()
			continue
		}
		qlen += op.Len() * t.Consumes().Query
	}
	start := gbam.LeftClipDistance(r)
	end := qlen - gbam.RightClipDistance(r)
	s := segment{
		chrom:    r.Ref.Name(),
		refStart: r.Pos,
		refEnd:   r.End(),
		qStart:   start,
		qEnd:     end,
		reverse:  gbam.IsReverse(r),
		mapQ:     int(r.MapQ),
		rec:      r,
	}
	if s.reverse {
		s.qStart, s.qEnd = qlen-end, qlen-start
	}
	return s
}

// segmentsByName groups the mapped primary and supplementary alignments of
// recs by query name. Each group is ordered along the contig.
func segmentsByName(recs []*sam.Record) map[string][]segment {
	m := map[string][]segment{}
	for _, r := range recs {
		if gbam.IsUnmapped(r) || gbam.IsSecondary(r) || r.Ref == nil {
			continue
		}
		m[r.Name] = append(m[r.Name], newSegment(r))
	}
	for _, segs := range m {
		sort.SliceStable(segs, func(i, j int) bool { return segs[i].qStart < segs[j].qStart })
	}
	return m
}
