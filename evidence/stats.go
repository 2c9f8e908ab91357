package evidence

import (
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/bamprovider"
	"gonum.org/v1/gonum/stat"
)

// maxInsertSamples caps the number of template lengths kept in memory.
const maxInsertSamples = 1 << 20

// Stats summarizes a sample's alignment.
type Stats struct {
	// AvgCoverage is the mean per-base read depth over the whole genome.
	AvgCoverage float64
	// InsertMean and InsertSD describe |TLEN| of properly paired first
	// mates.
	InsertMean float64
	InsertSD   float64
	// ReadLength is the mean read length.
	ReadLength float64
	// GenomeLength is the summed length of all references.
	GenomeLength int
	// MappedReads counts primary mapped records.
	MappedReads int
}

// ComputeStats scans p once and computes the sample statistics used to
// derive assembly parameters and classifier thresholds. It fails with
// errors.Invalid when the alignment has no properly paired reads.
func ComputeStats(p bamprovider.Provider) (Stats, error) {
	header, err := p.GetHeader()
	if err != nil {
		return Stats{}, errors.E(errors.Invalid, "read header", err)
	}
	var s Stats
	for _, ref := range header.Refs() {
		s.GenomeLength += ref.Len()
	}
	var (
		alignedBases int
		readBases    int
		inserts      []float64
	)
	err = bamprovider.ForEach(p, func(r *sam.Record) error {
		if !gbam.IsPrimary(r) || gbam.IsUnmapped(r) || gbam.IsQCFail(r) {
			return nil
		}
		s.MappedReads++
		alignedBases += r.End() - r.Pos
		readBases += r.Seq.Length
		if gbam.IsProperPair(r) && gbam.IsRead1(r) && r.TempLen != 0 && len(inserts) < maxInsertSamples {
			inserts = append(inserts, math.Abs(float64(r.TempLen)))
		}
		return nil
	})
	if err != nil {
		return Stats{}, errors.E(errors.Invalid, "scan alignment", err)
	}
	if len(inserts) == 0 {
		return Stats{}, errors.E(errors.Invalid, "alignment has no properly paired reads")
	}
	if s.GenomeLength > 0 {
		s.AvgCoverage = float64(alignedBases) / float64(s.GenomeLength)
	}
	s.ReadLength = float64(readBases) / float64(s.MappedReads)
	s.InsertMean, s.InsertSD = stat.MeanStdDev(inserts, nil)
	if math.IsNaN(s.InsertSD) {
		s.InsertSD = 0
	}
	return s, nil
}
