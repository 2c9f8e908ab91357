package placement

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svpipe/assembly"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/fastq"
)

// confirm checks the read support of a placed contig and demotes it when the
// support is below Opts.MinSupportingReads.
func (p *Placer) confirm(ctx context.Context, c *assembly.Contig, res *Result) error {
	if !p.Opts.UseReadAlignment {
		return nil
	}
	n := c.Metadata.SupportingReads
	if !p.Opts.SkipExtractedReadAlignment {
		var err error
		if n, err = p.readsNear(ctx, c, res); err != nil {
			return err
		}
	}
	if n < p.Opts.MinSupportingReads {
		res.Placeable = false
		res.Candidates = nil
		res.Reason = fmt.Sprintf("insufficient read support: %d < %d", n, p.Opts.MinSupportingReads)
	}
	return nil
}

// readsNear aligns the reads extracted for c to the reference and counts the
// primary alignments within Opts.Window of the call.
func (p *Placer) readsNear(ctx context.Context, c *assembly.Contig, res *Result) (int, error) {
	if c.Metadata.ReadsPath == "" {
		return 0, nil
	}
	_, reads, err := gbam.ReadFile(ctx, c.Metadata.ReadsPath)
	if err != nil {
		return 0, err
	}
	if len(reads) == 0 {
		return 0, nil
	}
	dir := filepath.Dir(c.Metadata.ReadsPath)
	fq := filepath.Join(dir, readsFASTQ)
	if err := fastq.WriteInterleaved(ctx, fq, reads); err != nil {
		return 0, err
	}
	out := filepath.Join(dir, readsToRef)
	if err := p.Aligner.Align(ctx, p.Ref.FASTA, fq, true, out); err != nil {
		return 0, err
	}
	_, aligned, err := gbam.ReadSAMFile(ctx, out)
	if err != nil {
		return 0, errors.E(err, c.Label)
	}
	cand := res.Candidates[0]
	lo, hi := cand.Pos-p.Opts.Window, cand.End+p.Opts.Window
	n := 0
	for _, r := range aligned {
		if gbam.IsUnmapped(r) || !gbam.IsPrimary(r) || r.Ref == nil || r.Ref.Name() != cand.Chrom {
			continue
		}
		if r.End() >= lo && r.Pos+1 <= hi {
			n++
		}
	}
	return n, nil
}
