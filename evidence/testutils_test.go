package evidence

import (
	"bytes"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/require"
)

const readLen = 100

var (
	chr1, _   = sam.NewReference("chr1", "", "", 10000, nil, nil)
	chr2, _   = sam.NewReference("chr2", "", "", 10000, nil, nil)
	header, _ = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})

	c100M   = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 100)}
	c20S80M = []sam.CigarOp{sam.NewCigarOp(sam.CigarSoftClipped, 20), sam.NewCigarOp(sam.CigarMatch, 80)}
	c30H70M = []sam.CigarOp{sam.NewCigarOp(sam.CigarHardClipped, 30), sam.NewCigarOp(sam.CigarMatch, 70)}
)

func newRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, mateRef *sam.Reference, matePos int, cigar []sam.CigarOp, qual byte) *sam.Record {
	n := 0
	for _, op := range cigar {
		n += op.Len() * op.Type().Consumes().Query
	}
	if cigar == nil {
		n = readLen
	}
	return &sam.Record{
		Name:    name,
		Ref:     ref,
		Pos:     pos,
		MapQ:    60,
		Cigar:   cigar,
		Flags:   flags,
		MateRef: mateRef,
		MatePos: matePos,
		Seq:     sam.NewSeq(bytes.Repeat([]byte{'A'}, n)),
		Qual:    bytes.Repeat([]byte{qual}, n),
	}
}

func withAux(t *testing.T, r *sam.Record, tag, val string) *sam.Record {
	aux, err := sam.NewAux(sam.NewTag(tag), val)
	require.NoError(t, err)
	r.AuxFields = append(r.AuxFields, aux)
	return r
}

const (
	r1f = sam.Paired | sam.Read1
	r2f = sam.Paired | sam.Read2
)

// testAlignment returns a small coordinate-sorted alignment. Pair names say
// which category their reads should land in.
func testAlignment(t *testing.T) []*sam.Record {
	proper := sam.ProperPair
	normal1 := newRecord("normal", chr1, 100, r1f|proper|sam.MateReverse, chr1, 300, c100M, 30)
	normal1.TempLen = 300
	normal2 := newRecord("normal", chr1, 300, r2f|proper|sam.Reverse, chr1, 100, c100M, 30)
	normal2.TempLen = -300
	clip1 := newRecord("clip", chr1, 500, r1f|proper|sam.MateReverse, chr1, 700, c20S80M, 30)
	clip1.TempLen = 320
	clip2 := newRecord("clip", chr1, 700, r2f|proper|sam.Reverse, chr1, 500, c100M, 30)
	clip2.TempLen = -320
	hard1 := newRecord("hardclip", chr1, 800, r1f|sam.MateReverse, chr1, 2500, c30H70M, 30)
	hard1.TempLen = 1800
	hard2 := newRecord("hardclip", chr1, 2500, r2f|sam.Reverse, chr1, 800, c100M, 30)
	hard2.TempLen = -1800
	lowq1 := newRecord("lowq", chr1, 900, r1f|proper|sam.MateReverse, chr1, 1100, c20S80M, 30)
	lowq1.TempLen = 280
	lowq2 := newRecord("lowq", chr1, 1100, r2f|proper|sam.Reverse, chr1, 900, c100M, 5)
	lowq2.TempLen = -280
	split1 := withAux(t, newRecord("split", chr1, 1200, r1f|proper|sam.MateReverse, chr1, 1400, c20S80M, 30), "SA", "chr2,5000,+,20M80S,60,0;")
	split1.TempLen = 300
	split2 := newRecord("split", chr1, 1400, r2f|proper|sam.Reverse, chr1, 1200, c100M, 30)
	split2.TempLen = -300
	alt1 := withAux(t, newRecord("alt", chr1, 1600, r1f|proper|sam.MateReverse, chr1, 1800, c100M, 30), "XA", "chr2,+3000,100M,0;")
	alt1.TempLen = 300
	alt2 := newRecord("alt", chr1, 1800, r2f|proper|sam.Reverse, chr1, 1600, c100M, 30)
	alt2.TempLen = -300
	unm1 := newRecord("unmapped", chr1, 2000, r1f|sam.Unmapped, chr1, 2000, nil, 30)
	unm2 := newRecord("unmapped", chr1, 2000, r2f|sam.MateUnmapped, chr1, 2000, c100M, 30)
	orphan := newRecord("orphan", chr1, 2200, r1f|sam.ProperPair|sam.MateReverse, chr1, 2400, c100M, 30)
	disc1 := newRecord("discordant", chr1, 3000, r1f|sam.MateReverse, chr2, 4000, c100M, 30)
	disc2 := newRecord("discordant", chr2, 4000, r2f|sam.Reverse, chr1, 3000, c100M, 30)
	return []*sam.Record{
		normal1, normal2, clip1, clip2, hard1, lowq1, lowq2, split1, split2,
		alt1, alt2, unm1, unm2, orphan, hard2, disc1, disc2,
	}
}

func names(recs []*sam.Record) []string {
	var n []string
	for _, r := range recs {
		n = append(n, r.Name)
	}
	return n
}
