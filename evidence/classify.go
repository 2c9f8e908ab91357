// Package evidence selects SV-indicating reads from a sample alignment and
// consolidates them into the read set handed to the assembler.
package evidence

import (
	"context"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/bamprovider"
)

// Opts configures read classification and consolidation.
type Opts struct {
	// Categories lists the enabled categories. Disabled categories are
	// neither computed nor merged.
	Categories []Category

	// MinClipLength is the shortest terminal clip, in bases, that makes a
	// read Clipped.
	MinClipLength int
	// MinClipQuality is the minimum mean phred score of a soft-clipped
	// segment. Hard clips carry no qualities and are exempt.
	MinClipQuality float64

	// UnmappedMinAvgQuality is the minimum mean phred score of an Unmapped
	// read.
	UnmappedMinAvgQuality float64

	// MaxInsertLength is the largest |TLEN| of a concordant pair. If zero, it
	// is derived from the sample's insert-size distribution as
	// mean + DiscordantSDs*sd.
	MaxInsertLength int
	DiscordantSDs   float64

	// PiledBinSize is the width of the depth bins used by Piled, and
	// PiledDepthFactor the multiple of the genome mean depth above which a
	// bin is piled.
	PiledBinSize     int
	PiledDepthFactor float64

	// MinPairQuality drops, during consolidation, read pairs where either
	// mate's mean phred score is lower.
	MinPairQuality float64
}

// DefaultOpts are the default classification settings. Piled and AltAlign
// are off by default.
var DefaultOpts = Opts{
	Categories:            []Category{Clipped, Split, Unmapped, Discordant},
	MinClipLength:         10,
	MinClipQuality:        20,
	UnmappedMinAvgQuality: 20,
	DiscordantSDs:         5,
	PiledBinSize:          100,
	PiledDepthFactor:      3,
	MinPairQuality:        15,
}

// Enabled reports whether c is among o.Categories.
func (o Opts) Enabled(c Category) bool {
	for _, x := range o.Categories {
		if x == c {
			return true
		}
	}
	return false
}

// Params are the resolved, sample-specific classifier thresholds. They are
// computed once per run by NewParams and never modified.
type Params struct {
	Opts
	// MaxInsert is the resolved discordance threshold.
	MaxInsert int
	// MeanDepth is the genome-wide mean depth.
	MeanDepth float64
}

// NewParams resolves opts against the sample statistics.
func NewParams(opts Opts, stats Stats) Params {
	p := Params{Opts: opts, MeanDepth: stats.AvgCoverage}
	p.MaxInsert = opts.MaxInsertLength
	if p.MaxInsert <= 0 {
		p.MaxInsert = int(math.Ceil(stats.InsertMean + opts.DiscordantSDs*stats.InsertSD))
	}
	return p
}

// depthBins holds mean depth per PiledBinSize-wide window, per reference.
type depthBins struct {
	binSize int
	depth   [][]float64
}

func (d *depthBins) at(r *sam.Record) float64 {
	if d == nil || r.Ref == nil || r.Ref.ID() < 0 || r.Ref.ID() >= len(d.depth) {
		return 0
	}
	bins := d.depth[r.Ref.ID()]
	i := r.Pos / d.binSize
	if i < 0 || i >= len(bins) {
		return 0
	}
	return bins[i]
}

// classifierFunc decides whether r belongs to a category. bins is non-nil
// only for Piled.
type classifierFunc func(r *sam.Record, p *Params, bins *depthBins) bool

var classifiers = map[Category]classifierFunc{
	AltAlign:   isAltAlign,
	Piled:      isPiled,
	Clipped:    isClipped,
	Split:      isSplit,
	Unmapped:   isUnmappedWithMappedMate,
	Discordant: isDiscordant,
}

var (
	tagSA = sam.NewTag("SA")
	tagXA = sam.NewTag("XA")
)

func isSplit(r *sam.Record, p *Params, _ *depthBins) bool {
	if gbam.IsUnmapped(r) {
		return false
	}
	if gbam.IsSupplementary(r) {
		return true
	}
	return r.AuxFields.Get(tagSA) != nil
}

func isAltAlign(r *sam.Record, p *Params, _ *depthBins) bool {
	return gbam.IsPrimary(r) && !gbam.IsUnmapped(r) && r.AuxFields.Get(tagXA) != nil
}

func isClipped(r *sam.Record, p *Params, _ *depthBins) bool {
	if !gbam.IsPrimary(r) || gbam.IsUnmapped(r) {
		return false
	}
	hasQual := len(r.Qual) > 0 && r.Qual[0] != 0xff
	left, right := gbam.SoftClips(r)
	for _, clip := range [][2]int{left, right} {
		if clip[1]-clip[0] < p.MinClipLength {
			continue
		}
		if !hasQual || gbam.MeanQuality(r.Qual[clip[0]:clip[1]]) >= p.MinClipQuality {
			return true
		}
	}
	// Hard clips: no bases to check.
	if n := hardClip(r, true); n >= p.MinClipLength {
		return true
	}
	return hardClip(r, false) >= p.MinClipLength
}

// hardClip returns the hard-clipped length at the left (or right) end.
func hardClip(r *sam.Record, left bool) int {
	if len(r.Cigar) == 0 {
		return 0
	}
	op := r.Cigar[len(r.Cigar)-1]
	if left {
		op = r.Cigar[0]
	}
	if op.Type() == sam.CigarHardClipped {
		return op.Len()
	}
	return 0
}

func isUnmappedWithMappedMate(r *sam.Record, p *Params, _ *depthBins) bool {
	if !gbam.IsUnmapped(r) || gbam.HasNoMappedMate(r) {
		return false
	}
	return gbam.MeanQuality(r.Qual) >= p.UnmappedMinAvgQuality
}

func isDiscordant(r *sam.Record, p *Params, _ *depthBins) bool {
	if !gbam.IsPrimary(r) || !gbam.IsPaired(r) || gbam.IsProperPair(r) ||
		gbam.IsUnmapped(r) || gbam.IsMateUnmapped(r) {
		return false
	}
	if r.Ref != r.MateRef && (r.Ref == nil || r.MateRef == nil || r.Ref.ID() != r.MateRef.ID()) {
		return true
	}
	if gbam.IsReverse(r) == gbam.IsMateReverse(r) {
		return true
	}
	tlen := r.TempLen
	if tlen < 0 {
		tlen = -tlen
	}
	return tlen > p.MaxInsert
}

func isPiled(r *sam.Record, p *Params, bins *depthBins) bool {
	if !gbam.IsPrimary(r) || gbam.IsUnmapped(r) || p.MeanDepth <= 0 {
		return false
	}
	return bins.at(r) > p.PiledDepthFactor*p.MeanDepth
}

// computeDepthBins scans src once and returns binned mean depth.
func computeDepthBins(src bamprovider.Provider, binSize int) (*depthBins, error) {
	if binSize <= 0 {
		return nil, errors.E(errors.Invalid, "piled bin size must be positive")
	}
	header, err := src.GetHeader()
	if err != nil {
		return nil, err
	}
	d := &depthBins{binSize: binSize, depth: make([][]float64, len(header.Refs()))}
	for i, ref := range header.Refs() {
		d.depth[i] = make([]float64, ref.Len()/binSize+1)
	}
	err = bamprovider.ForEach(src, func(r *sam.Record) error {
		if !gbam.IsPrimary(r) || gbam.IsUnmapped(r) || r.Ref == nil {
			return nil
		}
		bins := d.depth[r.Ref.ID()]
		for pos := r.Pos; pos < r.End(); pos++ {
			if i := pos / binSize; i < len(bins) {
				bins[i] += 1 / float64(binSize)
			}
		}
		return nil
	})
	return d, err
}

// Classify writes every record of src that belongs to category c, in
// source order, to the BAM file dst. Secondary and QC-failed records never
// match. It returns the number of records written.
func Classify(ctx context.Context, src bamprovider.Provider, c Category, p Params, dst string) (int, error) {
	fn, ok := classifiers[c]
	if !ok {
		return 0, errors.E(errors.Invalid, "unknown category", string(c))
	}
	header, err := src.GetHeader()
	if err != nil {
		return 0, errors.E(errors.Invalid, "read header", err)
	}
	var bins *depthBins
	if c == Piled {
		if bins, err = computeDepthBins(src, p.PiledBinSize); err != nil {
			return 0, errors.E(errors.Invalid, "depth scan", err)
		}
	}
	w, err := gbam.NewWriter(ctx, dst, header)
	if err != nil {
		return 0, err
	}
	n := 0
	err = bamprovider.ForEach(src, func(r *sam.Record) error {
		if gbam.IsSecondary(r) || gbam.IsQCFail(r) || !fn(r, &p, bins) {
			return nil
		}
		n++
		return w.Write(r)
	})
	if e := w.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return 0, errors.E(err, "classify", string(c), dst)
	}
	log.Debug.Printf("classify %s: %d records -> %s", c, n, dst)
	return n, nil
}
