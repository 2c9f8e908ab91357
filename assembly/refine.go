package assembly

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/fasta"
	"github.com/grailbio/svpipe/encoding/fastq"
	"github.com/grailbio/svpipe/external"
)

// Per-contig file names, relative to the contig directory.
const (
	contigTargetFile = "contig.fa"
	contigReadsSAM   = "contig_reads.sam"
	contigReadsBAM   = "contig_reads.bam"
	finalFastaFile   = "fasta.fa"
	evidenceFASTQ    = "evidence_reads.fq"
)

// ContigDir returns the working directory of the contig labelled label.
func ContigDir(assemblyDir, label string) string {
	return filepath.Join(assemblyDir, "contigs", label)
}

// Refiner reassembles each contig from the reads that align to it.
type Refiner struct {
	Tool    Tool
	Aligner external.Aligner
	Params  Params
	// Parallelism bounds the number of contigs refined at once.
	Parallelism int

	dir       string
	header    *sam.Header
	evidence  []*sam.Record
	readsPath string
}

// NewRefiner loads the name-sorted evidence BAM and writes its reads as an
// interleaved FASTQ in dir, the sample's assembly directory.
func NewRefiner(ctx context.Context, tool Tool, aligner external.Aligner, p Params, evidencePath, dir string) (*Refiner, error) {
	header, recs, err := gbam.ReadFile(ctx, evidencePath)
	if err != nil {
		return nil, err
	}
	r := &Refiner{
		Tool:        tool,
		Aligner:     aligner,
		Params:      p,
		Parallelism: 1,
		dir:         dir,
		header:      header,
		evidence:    recs,
		readsPath:   filepath.Join(dir, evidenceFASTQ),
	}
	if err := fastq.WriteInterleaved(ctx, r.readsPath, recs); err != nil {
		return nil, err
	}
	return r, nil
}

// RefineAll refines every contig in place.
func (r *Refiner) RefineAll(ctx context.Context, contigs []Contig) error {
	limit := r.Parallelism
	if limit < 1 {
		limit = 1
	}
	return traverse.Limit(limit).Each(len(contigs), func(i int) error {
		return r.Refine(ctx, &contigs[i])
	})
}

// Refine collects the evidence pairs that align to c and reassembles them in
// isolation. A single resulting contig replaces c's sequence; zero or several
// leave it unchanged. Label, node number and coverage are never changed.
// The contig directory ends up holding contig.fa, the read sets and the
// final fasta.fa.
func (r *Refiner) Refine(ctx context.Context, c *Contig) error {
	dir := ContigDir(r.dir, c.Label)
	target := filepath.Join(dir, contigTargetFile)
	if err := fasta.WriteFile(ctx, target, []fasta.Record{{Name: c.Label, Seq: c.Sequence}}); err != nil {
		return errors.E(err, "write", target)
	}
	if err := r.Aligner.Index(ctx, target); err != nil {
		return err
	}
	alignedPath := filepath.Join(dir, contigReadsSAM)
	if err := r.Aligner.Align(ctx, target, r.readsPath, true, alignedPath); err != nil {
		return err
	}
	_, aligned, err := gbam.ReadSAMFile(ctx, alignedPath)
	if err != nil {
		return err
	}
	names := map[string]bool{}
	for _, rec := range aligned {
		if !gbam.IsUnmapped(rec) {
			names[rec.Name] = true
		}
	}
	var reads []*sam.Record
	nPrimary := 0
	for _, rec := range r.evidence {
		if names[rec.Name] {
			reads = append(reads, rec)
			if gbam.IsPrimary(rec) {
				nPrimary++
			}
		}
	}
	readsPath := filepath.Join(dir, contigReadsBAM)
	if err := gbam.WriteFile(ctx, readsPath, r.header, reads); err != nil {
		return err
	}
	c.Metadata.Dir = dir
	c.Metadata.ReadsPath = readsPath
	c.Metadata.SupportingReads = nPrimary

	if nPrimary == 0 {
		log.Debug.Printf("%s: no supporting reads, keeping assembled sequence", c.Label)
	} else if err := r.reassemble(ctx, c, dir, readsPath); err != nil {
		return err
	}
	for _, name := range IntermediateFiles {
		path := filepath.Join(dir, name)
		if _, err := file.Stat(ctx, path); err != nil {
			continue
		}
		if err := file.Remove(ctx, path); err != nil {
			return errors.E(err, "remove", path)
		}
	}
	c.Metadata.FastaPath = filepath.Join(dir, finalFastaFile)
	return fasta.WriteFile(ctx, c.Metadata.FastaPath, []fasta.Record{{Name: c.Label, Seq: c.Sequence}})
}

func (r *Refiner) reassemble(ctx context.Context, c *Contig, dir, readsPath string) error {
	if err := r.Tool.Assemble(ctx, dir, readsPath, r.Params); err != nil {
		return err
	}
	recs, err := fasta.ReadFile(ctx, filepath.Join(dir, ContigsFile))
	if err != nil {
		return errors.E(errors.Invalid, c.Label, "read reassembled contigs", err)
	}
	if len(recs) != 1 {
		log.Debug.Printf("%s: reassembly produced %d contigs, keeping assembled sequence", c.Label, len(recs))
		return nil
	}
	c.Sequence = strings.Replace(recs[0].Seq, "N", "", -1)
	c.Metadata.Reassembled = true
	return nil
}
