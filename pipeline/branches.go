package pipeline

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svpipe/assembly"
	"github.com/grailbio/svpipe/covdel"
	"github.com/grailbio/svpipe/encoding/bamprovider"
	"github.com/grailbio/svpipe/placement"
	"github.com/grailbio/svpipe/store"
	"github.com/grailbio/svpipe/variant"
)

// assemblyBranch generates, refines and places the contigs of s. A sample
// without contigs completes the branch with no calls.
func (p *Pipeline) assemblyBranch(ctx context.Context, ref placement.Reference, s Sample) error {
	if err := p.Store.SetStatus(ctx, s.ID, store.Assembling); err != nil {
		return err
	}
	info, contigs, err := p.generate(ctx, s, false)
	if err != nil {
		return err
	}
	if len(contigs) == 0 {
		log.Printf("%s: no contigs assembled", s.Label)
		return nil
	}
	dir := p.assemblyDir(s)

	_, err = p.stage(ctx, s, stageRefine, func() (string, error) {
		r, err := assembly.NewRefiner(ctx, p.Assembler, p.Aligner, info.Params, info.EvidencePath, dir)
		if err != nil {
			return "", err
		}
		r.Parallelism = p.Opts.RefineParallelism
		if err := r.RefineAll(ctx, contigs); err != nil {
			return "", err
		}
		if err := p.Store.PutContigs(ctx, contigs); err != nil {
			return "", err
		}
		for _, c := range contigs {
			t := store.Track{SampleID: s.ID, Name: c.Label, Path: c.Metadata.ReadsPath}
			if err := p.Store.AddTrack(ctx, t); err != nil {
				return "", err
			}
		}
		return dir, nil
	})
	if err != nil {
		return err
	}

	_, err = p.stage(ctx, s, stagePlace, func() (string, error) {
		refined, err := p.Store.Contigs(ctx, s.ID)
		if err != nil {
			return "", err
		}
		placer := placement.Placer{
			Ref:      ref,
			Aligner:  p.Aligner,
			Opts:     p.Opts.Placement,
			SampleID: s.ID,
			Dir:      dir,
		}
		out, err := placer.Place(ctx, refined)
		if errors.Is(errors.Precondition, err) {
			log.Printf("%s: nothing to place", s.Label)
			return dir, nil
		}
		if err != nil {
			return "", err
		}
		if err := p.Store.PutContigs(ctx, refined); err != nil {
			return "", err
		}
		for method, path := range out.Files {
			if err := p.addDataset(ctx, s, vcfDatasets[method], path); err != nil {
				return "", err
			}
		}
		return dir, nil
	})
	return err
}

// coverageBranch detects deletions from the depth of coverage of the
// original alignment of s.
func (p *Pipeline) coverageBranch(ctx context.Context, s Sample) error {
	_, err := p.stage(ctx, s, stageCoverage, func() (string, error) {
		prov := bamprovider.NewProvider(ctx, s.AlignmentPath)
		res, err := covdel.Run(ctx, prov, s.ID, p.coverageDir(s), p.Opts.Coverage)
		if e := prov.Close(); e != nil && err == nil {
			err = errors.E(errors.Invalid, s.AlignmentPath, e)
		}
		if err != nil {
			return "", err
		}
		if res.Path == "" {
			return "", nil
		}
		return res.Path, p.addDataset(ctx, s, vcfDatasets[variant.Coverage], res.Path)
	})
	return err
}
