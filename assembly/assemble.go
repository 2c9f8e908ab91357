package assembly

import (
	"context"
	"path/filepath"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Input describes one sample-level assembly.
type Input struct {
	SampleID    string
	SampleLabel string
	// EvidencePath is the name-sorted evidence BAM.
	EvidencePath string
	// Dir is the assembly working directory. It is created if needed.
	Dir  string
	Opts Opts
}

// Assemble runs tool on the evidence with p, parses the resulting contigs
// and records them in Dir/metadata.rio. The returned contigs carry the
// sample, evidence and directory references.
func Assemble(ctx context.Context, tool Tool, in Input, p Params) ([]Contig, error) {
	if in.Dir == "" || in.EvidencePath == "" {
		return nil, errors.E(errors.Invalid, "assembly needs a directory and an evidence path")
	}
	ts := time.Now()
	log.Printf("%s: assembling %s (k=%d, exp_cov=%.2f, cov_cutoff=%.2f)",
		in.SampleLabel, in.EvidencePath, p.HashLength, p.ExpCov, p.CovCutoff)
	if err := tool.Assemble(ctx, in.Dir, in.EvidencePath, p); err != nil {
		return nil, err
	}
	contigs, err := ParseContigs(ctx, filepath.Join(in.Dir, ContigsFile), in.SampleID, in.SampleLabel, ts)
	if err != nil {
		return nil, err
	}
	for i := range contigs {
		c := &contigs[i]
		c.EvidencePath = in.EvidencePath
		c.Metadata.AssemblyDir = in.Dir
	}
	info := RunInfo{
		SampleID:     in.SampleID,
		SampleLabel:  in.SampleLabel,
		EvidencePath: in.EvidencePath,
		Params:       p,
		Opts:         in.Opts,
		Timestamp:    ts,
	}
	if err := WriteMetadata(ctx, filepath.Join(in.Dir, MetadataFile), info, contigs); err != nil {
		return nil, err
	}
	log.Printf("%s: %d contigs", in.SampleLabel, len(contigs))
	return contigs, nil
}
