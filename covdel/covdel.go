// Package covdel calls large deletions from stretches of low read depth. It
// needs only the sample's alignment and runs independently of assembly.
package covdel

import (
	"context"
	"path/filepath"

	"github.com/biogo/store/step"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/bamprovider"
	"github.com/grailbio/svpipe/encoding/vcf"
	"github.com/grailbio/svpipe/variant"
	"gonum.org/v1/gonum/stat"
)

// VCFFile is the name of the file Run writes its calls to.
const VCFFile = "cov_detect_deletion.vcf"

// Opts configures the detector.
type Opts struct {
	// MinMapQ is the minimum mapping quality of a counted read.
	MinMapQ int
	// LowFraction is the depth, as a fraction of the mean depth, at or
	// below which a base counts as deleted.
	LowFraction float64
	// MinLength is the minimum length of a reported deletion.
	MinLength int
}

// DefaultOpts are the default detector settings.
var DefaultOpts = Opts{
	MinMapQ:     20,
	LowFraction: 0.1,
	MinLength:   100,
}

// Result is the outcome of Run.
type Result struct {
	Candidates []variant.Candidate
	// Path is the VCF file, or "" if there were no calls.
	Path string
}

// depthCount is the read depth over one step of a depth track.
type depthCount int32

func (d depthCount) Equal(e step.Equaler) bool { return d == e.(depthCount) }

func incDepth(e step.Equaler) step.Equaler { return e.(depthCount) + 1 }

// depth holds per-base read depth as one step vector per reference.
// References without counted reads have no track.
type depth struct {
	tracks map[int]*step.Vector
}

func (d *depth) add(r *sam.Record) error {
	refLen := r.Ref.Len()
	if refLen <= 0 {
		return nil
	}
	v := d.tracks[r.Ref.ID()]
	if v == nil {
		var err error
		if v, err = step.New(0, refLen, depthCount(0)); err != nil {
			return err
		}
		d.tracks[r.Ref.ID()] = v
	}
	pos := r.Pos
	for _, op := range r.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			from, to := pos, pos+n
			if from < 0 {
				from = 0
			}
			if to > refLen {
				to = refLen
			}
			if from < to {
				if err := v.ApplyRange(from, to, incDepth); err != nil {
					return err
				}
			}
		}
		pos += n * op.Type().Consumes().Reference
	}
	return nil
}

// counted reports whether r contributes to the depth.
func counted(r *sam.Record, minMapQ int) bool {
	return r.Ref != nil && gbam.IsPrimary(r) && !gbam.IsUnmapped(r) &&
		!gbam.IsDuplicate(r) && !gbam.IsQCFail(r) && int(r.MapQ) >= minMapQ
}

// Detect returns the low-depth deletions in the alignment provided by p.
func Detect(ctx context.Context, p bamprovider.Provider, sampleID string, opts Opts) ([]variant.Candidate, error) {
	header, err := p.GetHeader()
	if err != nil {
		return nil, errors.E(errors.Invalid, "read header", err)
	}
	d := depth{tracks: map[int]*step.Vector{}}
	err = bamprovider.ForEach(p, func(r *sam.Record) error {
		if counted(r, opts.MinMapQ) {
			return d.add(r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	refs := header.Refs()
	means := make([]float64, len(refs))
	lengths := make([]float64, len(refs))
	for i, ref := range refs {
		lengths[i] = float64(ref.Len())
		var total float64
		if v := d.tracks[ref.ID()]; v != nil {
			v.Do(func(start, end int, e step.Equaler) {
				total += float64(end-start) * float64(e.(depthCount))
			})
		}
		if ref.Len() > 0 {
			means[i] = total / float64(ref.Len())
		}
	}
	mean := stat.Mean(means, lengths)
	if !(mean > 0) {
		return nil, errors.E(errors.Invalid, "alignment has no usable coverage")
	}
	threshold := opts.LowFraction * mean
	log.Printf("%s: mean depth %.2f, deletion threshold %.2f", sampleID, mean, threshold)

	var cands []variant.Candidate
	for _, ref := range refs {
		start := -1
		flush := func(end int) {
			if start >= 0 && end-start >= opts.MinLength {
				cands = append(cands, variant.Candidate{
					UID:       variant.NewUID(),
					SampleID:  sampleID,
					Method:    variant.Coverage,
					Type:      variant.Deletion,
					Chrom:     ref.Name(),
					Pos:       start + 1,
					End:       end,
					Length:    -(end - start),
					Imprecise: true,
				})
			}
			start = -1
		}
		if v := d.tracks[ref.ID()]; v != nil {
			v.Do(func(from, to int, e step.Equaler) {
				if float64(e.(depthCount)) <= threshold {
					if start < 0 {
						start = from
					}
					return
				}
				flush(from)
			})
		} else if ref.Len() > 0 {
			start = 0
		}
		flush(ref.Len())
	}
	return cands, nil
}

// Run detects deletions and writes them to dir/cov_detect_deletion.vcf. No
// file is written when there are no calls.
func Run(ctx context.Context, p bamprovider.Provider, sampleID, dir string, opts Opts) (Result, error) {
	cands, err := Detect(ctx, p, sampleID, opts)
	if err != nil {
		return Result{}, err
	}
	res := Result{Candidates: cands}
	if len(cands) == 0 {
		return res, nil
	}
	res.Path = filepath.Join(dir, VCFFile)
	if err := vcf.WriteFile(ctx, res.Path, cands); err != nil {
		return Result{}, err
	}
	log.Printf("%s: %d coverage deletions", sampleID, len(cands))
	return res, nil
}
