package placement

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/svpipe/assembly"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/fasta"
	"github.com/grailbio/svpipe/encoding/vcf"
	"github.com/grailbio/svpipe/external"
	"github.com/grailbio/svpipe/variant"
)

// VCF files written by Place, one per method. Files are only written for
// methods with at least one call.
var VCFFiles = map[variant.Method]string{
	variant.DeNovoAssembly: "de_novo_assembled_contigs.vcf",
	variant.GraphWalk:      "de_novo_assembly_translocations.vcf",
	variant.MEGraphWalk:    "de_novo_assembly_me_translocations.vcf",
}

const (
	contigsFasta = "contigs_to_place.fa"
	contigsToRef = "contigs_to_ref.sam"
	contigsToME  = "contigs_to_me.sam"
	readsToRef   = "contig_reads_to_ref.sam"
	readsFASTQ   = "contig_reads.fq"
)

// Reference names the alignment targets. Both must already be indexed.
type Reference struct {
	FASTA string
	// MobileElementFASTA is an optional library of mobile-element
	// sequences.
	MobileElementFASTA string
}

// Result is the placement outcome of one contig.
type Result struct {
	ContigUID string
	Label     string
	Placeable bool
	// Reason says why the contig was or was not placed.
	Reason string
	// Candidates holds the calls derived from the contig, if any.
	Candidates []variant.Candidate
}

// Output is the result of placing the contigs of one sample.
type Output struct {
	// Results has one entry per input contig, in rank order.
	Results []Result
	// Calls groups the candidates by method. The groups are disjoint.
	Calls map[variant.Method][]variant.Candidate
	// Files maps each method with calls to its VCF path.
	Files map[variant.Method]string
}

// Placer places contigs of one sample against a reference.
type Placer struct {
	Ref      Reference
	Aligner  external.Aligner
	Opts     Opts
	SampleID string
	// Dir receives the alignments and the VCF files.
	Dir string
}

// Place ranks contigs and places at most Opts.MaxContigs of them. Placeable
// contigs get one DE_NOVO_ASSEMBLY call each and are marked in their
// metadata; contigs whose segments join different chromosomes or strands
// yield translocation calls instead. An empty contig list is an error of
// kind errors.Precondition.
func (p *Placer) Place(ctx context.Context, contigs []assembly.Contig) (Output, error) {
	if len(contigs) == 0 {
		return Output{}, errors.E(errors.Precondition, "no contigs to place", p.SampleID)
	}
	if err := p.Opts.Validate(); err != nil {
		return Output{}, err
	}
	ranked := Rank(contigs)
	evaluate := ranked
	if len(evaluate) > p.Opts.MaxContigs {
		evaluate = evaluate[:p.Opts.MaxContigs]
	}

	recs := make([]fasta.Record, len(evaluate))
	for i, c := range evaluate {
		recs[i] = fasta.Record{Name: c.Label, Seq: c.Sequence}
	}
	query := filepath.Join(p.Dir, contigsFasta)
	if err := fasta.WriteFile(ctx, query, recs); err != nil {
		return Output{}, errors.E(err, "write", query)
	}
	refSegs, err := p.alignContigs(ctx, p.Ref.FASTA, query, contigsToRef)
	if err != nil {
		return Output{}, err
	}
	var meSegs map[string][]segment
	if p.Ref.MobileElementFASTA != "" {
		if meSegs, err = p.alignContigs(ctx, p.Ref.MobileElementFASTA, query, contigsToME); err != nil {
			return Output{}, err
		}
	}

	out := Output{Calls: map[variant.Method][]variant.Candidate{}, Files: map[variant.Method]string{}}
	for i, c := range ranked {
		res := Result{ContigUID: c.UID, Label: c.Label}
		if i >= len(evaluate) {
			res.Reason = fmt.Sprintf("not evaluated: rank %d beyond %d", i+1, p.Opts.MaxContigs)
		} else {
			p.decide(c, refSegs[c.Label], meSegs[c.Label], &res)
			if res.Placeable {
				if err := p.confirm(ctx, c, &res); err != nil {
					return Output{}, err
				}
			}
		}
		c.Metadata.IsPlaceable = res.Placeable
		c.Metadata.Placement = res.Reason
		for _, cand := range res.Candidates {
			out.Calls[cand.Method] = append(out.Calls[cand.Method], cand)
		}
		log.Debug.Printf("%s: %s", c.Label, res.Reason)
		out.Results = append(out.Results, res)
	}

	for method, name := range VCFFiles {
		cands := out.Calls[method]
		if len(cands) == 0 {
			continue
		}
		path := filepath.Join(p.Dir, name)
		if err := vcf.WriteFile(ctx, path, cands); err != nil {
			return Output{}, err
		}
		out.Files[method] = path
	}
	log.Printf("%s: placed %d of %d contigs, %d translocations, %d mobile-element translocations",
		p.SampleID, len(out.Calls[variant.DeNovoAssembly]), len(contigs),
		len(out.Calls[variant.GraphWalk]), len(out.Calls[variant.MEGraphWalk]))
	return out, nil
}

func (p *Placer) alignContigs(ctx context.Context, target, query, name string) (map[string][]segment, error) {
	path := filepath.Join(p.Dir, name)
	if err := p.Aligner.Align(ctx, target, query, false, path); err != nil {
		return nil, err
	}
	_, recs, err := gbam.ReadSAMFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return segmentsByName(recs), nil
}

func (p *Placer) newCandidate(c *assembly.Contig, method variant.Method, typ variant.Type) variant.Candidate {
	return variant.Candidate{
		UID:       variant.NewUID(),
		SampleID:  p.SampleID,
		Method:    method,
		Type:      typ,
		ContigUID: c.UID,
	}
}

// decide applies the placement policy to the reference and mobile-element
// segments of c.
func (p *Placer) decide(c *assembly.Contig, ref, me []segment, res *Result) {
	var anchors []segment
	lowQ := false
	for _, s := range ref {
		if s.alignedLen() < p.Opts.MinAnchor {
			continue
		}
		if s.mapQ < p.Opts.MinMapQ {
			lowQ = true
			continue
		}
		anchors = append(anchors, s)
	}
	switch {
	case len(ref) == 0:
		res.Reason = "unmapped"
		return
	case len(anchors) == 0 && lowQ:
		res.Reason = "low mapping quality"
		return
	case len(anchors) == 0:
		res.Reason = "no anchor"
		return
	}

	for _, m := range me {
		if m.alignedLen() < p.Opts.MinAnchor {
			continue
		}
		a := anchors[0]
		cand := p.newCandidate(c, variant.MEGraphWalk, variant.Translocation)
		cand.Chrom = a.chrom
		if m.qStart >= a.qEnd {
			cand.Pos = a.leftBreak()
		} else {
			cand.Pos = a.rightBreak()
		}
		cand.End = cand.Pos
		cand.MateChrom = m.chrom
		cand.MatePos = m.refStart + 1
		res.Candidates = []variant.Candidate{cand}
		res.Reason = "mobile-element junction with " + m.chrom
		return
	}

	for i := 1; i < len(anchors); i++ {
		a, b := anchors[i-1], anchors[i]
		if a.chrom == b.chrom && a.reverse == b.reverse {
			continue
		}
		cand := p.newCandidate(c, variant.GraphWalk, variant.Translocation)
		cand.Chrom = a.chrom
		cand.Pos = a.leftBreak()
		cand.End = cand.Pos
		cand.MateChrom = b.chrom
		cand.MatePos = b.rightBreak()
		res.Candidates = []variant.Candidate{cand}
		res.Reason = fmt.Sprintf("graph walk %s:%d to %s:%d", a.chrom, cand.Pos, b.chrom, cand.MatePos)
		return
	}

	if cand, ok := p.splitEvent(c, anchors); ok {
		p.place(res, cand)
		return
	}
	if cand, ok := p.cigarEvent(c, anchors[0]); ok {
		p.place(res, cand)
		return
	}
	if cand, ok := p.clipEvent(c, anchors[0]); ok {
		p.place(res, cand)
		return
	}
	res.Reason = "no structural event"
}

func (p *Placer) place(res *Result, cand variant.Candidate) {
	res.Placeable = true
	res.Candidates = []variant.Candidate{cand}
	res.Reason = "placed: " + cand.String()
}

// splitEvent looks for a deletion or insertion between two consecutive
// colinear segments: the reference gap and the contig gap between them
// differ by at least MinSVLength.
func (p *Placer) splitEvent(c *assembly.Contig, anchors []segment) (variant.Candidate, bool) {
	for i := 1; i < len(anchors); i++ {
		a, b := anchors[i-1], anchors[i]
		refGap := b.refStart - a.refEnd
		left := a
		if a.reverse {
			refGap = a.refStart - b.refEnd
			left = b
		}
		qGap := b.qStart - a.qEnd
		diff := refGap - qGap
		switch {
		case diff >= p.Opts.MinSVLength:
			cand := p.newCandidate(c, variant.DeNovoAssembly, variant.Deletion)
			cand.Chrom = left.chrom
			cand.Pos = left.refEnd + 1
			cand.Length = -diff
			cand.End = cand.Pos + diff - 1
			return cand, true
		case -diff >= p.Opts.MinSVLength:
			cand := p.newCandidate(c, variant.DeNovoAssembly, variant.Insertion)
			cand.Chrom = left.chrom
			cand.Pos = left.refEnd + 1
			cand.Length = -diff
			cand.End = cand.Pos
			return cand, true
		}
	}
	return variant.Candidate{}, false
}

// cigarEvent reports the largest insertion or deletion of at least
// MinSVLength inside a single alignment.
func (p *Placer) cigarEvent(c *assembly.Contig, s segment) (variant.Candidate, bool) {
	var (
		best    variant.Candidate
		bestLen int
		pos     = s.refStart
	)
	for _, op := range s.rec.Cigar {
		t, n := op.Type(), op.Len()
		if n >= p.Opts.MinSVLength && n > bestLen {
			switch t {
			case sam.CigarDeletion:
				best = p.newCandidate(c, variant.DeNovoAssembly, variant.Deletion)
				best.Chrom = s.chrom
				best.Pos = pos + 1
				best.Length = -n
				best.End = pos + n
				bestLen = n
			case sam.CigarInsertion:
				best = p.newCandidate(c, variant.DeNovoAssembly, variant.Insertion)
				best.Chrom = s.chrom
				best.Pos = pos + 1
				best.Length = n
				best.End = pos + 1
				bestLen = n
			}
		}
		pos += n * t.Consumes().Reference
	}
	return best, bestLen > 0
}

// clipEvent reports an imprecise insertion where a contig anchored on one
// side carries at least MinSVLength unaligned bases on the other.
func (p *Placer) clipEvent(c *assembly.Contig, s segment) (variant.Candidate, bool) {
	left, right := gbam.SoftClips(s.rec)
	lclip, rclip := left[1]-left[0], right[1]-right[0]
	if lclip < p.Opts.MinSVLength && rclip < p.Opts.MinSVLength {
		return variant.Candidate{}, false
	}
	cand := p.newCandidate(c, variant.DeNovoAssembly, variant.Insertion)
	cand.Chrom = s.chrom
	cand.Imprecise = true
	if rclip >= lclip {
		cand.Pos = s.refEnd + 1
		cand.Length = rclip
	} else {
		cand.Pos = s.refStart + 1
		cand.Length = lclip
	}
	cand.End = cand.Pos
	return cand, true
}
