package bam

import "github.com/grailbio/hts/sam"

// IsPaired returns true if the record is part of a pair.
func IsPaired(r *sam.Record) bool { return r.Flags&sam.Paired != 0 }

// IsProperPair returns true if both mates are aligned in the expected
// library geometry.
func IsProperPair(r *sam.Record) bool { return r.Flags&sam.ProperPair != 0 }

// IsUnmapped returns true if the record itself is unmapped.
func IsUnmapped(r *sam.Record) bool { return r.Flags&sam.Unmapped != 0 }

// IsMateUnmapped returns true if the record's mate is unmapped.
func IsMateUnmapped(r *sam.Record) bool { return r.Flags&sam.MateUnmapped != 0 }

// IsReverse returns true if the record is aligned on the reverse strand.
func IsReverse(r *sam.Record) bool { return r.Flags&sam.Reverse != 0 }

// IsMateReverse returns true if the mate is aligned on the reverse strand.
func IsMateReverse(r *sam.Record) bool { return r.Flags&sam.MateReverse != 0 }

// IsRead1 returns true if the record is the first read of the pair.
func IsRead1(r *sam.Record) bool { return r.Flags&sam.Read1 != 0 }

// IsRead2 returns true if the record is the second read of the pair.
func IsRead2(r *sam.Record) bool { return r.Flags&sam.Read2 != 0 }

// IsSecondary returns true for secondary alignments.
func IsSecondary(r *sam.Record) bool { return r.Flags&sam.Secondary != 0 }

// IsQCFail returns true if the record failed vendor quality checks.
func IsQCFail(r *sam.Record) bool { return r.Flags&sam.QCFail != 0 }

// IsDuplicate returns true if the record is marked as a duplicate.
func IsDuplicate(r *sam.Record) bool { return r.Flags&sam.Duplicate != 0 }

// IsSupplementary returns true for supplementary (chimeric) alignments.
func IsSupplementary(r *sam.Record) bool { return r.Flags&sam.Supplementary != 0 }

// IsPrimary returns true if the record is neither secondary nor
// supplementary. Every read of a pair has exactly one primary record.
func IsPrimary(r *sam.Record) bool {
	return r.Flags&(sam.Secondary|sam.Supplementary) == 0
}

// HasNoMappedMate returns true if record is unpaired or has an unmapped mate.
func HasNoMappedMate(record *sam.Record) bool {
	return (record.Flags&sam.Paired) == 0 || (record.Flags&sam.MateUnmapped) != 0
}

// MateNumber returns 1 or 2 for the first or second read of a pair, and 0
// for unpaired records.
func MateNumber(r *sam.Record) int {
	switch {
	case IsRead1(r):
		return 1
	case IsRead2(r):
		return 2
	}
	return 0
}

// LeftClipDistance returns the total number of soft and hard clipped bases
// at the left end of the alignment.
func LeftClipDistance(r *sam.Record) int {
	n := 0
	for _, op := range r.Cigar {
		t := op.Type()
		if t != sam.CigarSoftClipped && t != sam.CigarHardClipped {
			break
		}
		n += op.Len()
	}
	return n
}

// RightClipDistance returns the total number of soft and hard clipped bases
// at the right end of the alignment.
func RightClipDistance(r *sam.Record) int {
	n := 0
	for i := len(r.Cigar) - 1; i >= 0; i-- {
		t := r.Cigar[i].Type()
		if t != sam.CigarSoftClipped && t != sam.CigarHardClipped {
			break
		}
		n += r.Cigar[i].Len()
	}
	return n
}

// UnclippedStart returns the 0-based reference position the read would
// start at if its left clips were aligned.
func UnclippedStart(r *sam.Record) int {
	return r.Pos - LeftClipDistance(r)
}

// UnclippedEnd returns the 0-based, closed reference position the read would
// end at if its right clips were aligned.
func UnclippedEnd(r *sam.Record) int {
	return r.End() - 1 + RightClipDistance(r)
}

// SoftClips returns the soft-clipped query ranges at the left and right ends
// of r as half-open offsets into r.Seq. An empty range means no soft clip.
func SoftClips(r *sam.Record) (left, right [2]int) {
	qlen := 0
	for _, op := range r.Cigar {
		qlen += op.Len() * op.Type().Consumes().Query
	}
	for _, op := range r.Cigar {
		t := op.Type()
		if t == sam.CigarHardClipped {
			continue
		}
		if t == sam.CigarSoftClipped {
			left[1] += op.Len()
			continue
		}
		break
	}
	right = [2]int{qlen, qlen}
	for i := len(r.Cigar) - 1; i >= 0; i-- {
		t := r.Cigar[i].Type()
		if t == sam.CigarHardClipped {
			continue
		}
		if t == sam.CigarSoftClipped {
			right[0] -= r.Cigar[i].Len()
			continue
		}
		break
	}
	return left, right
}

// MeanQuality returns the mean of the phred scores in qual. Records written
// without qualities carry 0xff in every position; those, and empty slices,
// yield 0.
func MeanQuality(qual []byte) float64 {
	if len(qual) == 0 || qual[0] == 0xff {
		return 0
	}
	total := 0
	for _, q := range qual {
		total += int(q)
	}
	return float64(total) / float64(len(qual))
}
