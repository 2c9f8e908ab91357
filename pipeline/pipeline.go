// Package pipeline runs the structural-variant pipeline over a set of
// samples. Each sample goes through two independent branches, assembly
// (classify, consolidate, assemble, refine, place) and coverage, whose calls
// are merged into the datastore once both finish.
package pipeline

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/exascience/pargo/parallel"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/svpipe/assembly"
	"github.com/grailbio/svpipe/config"
	"github.com/grailbio/svpipe/external"
	"github.com/grailbio/svpipe/placement"
	"github.com/grailbio/svpipe/store"
)

// Sample is one sequenced sample and its reference alignment.
type Sample struct {
	// ID identifies the sample in the datastore.
	ID string
	// Label names the sample's contigs and working directory.
	Label string
	// AlignmentPath is the BAM of the sample's reads against the reference.
	AlignmentPath string
}

// Pipeline holds the collaborators of a run.
type Pipeline struct {
	Store     store.Store
	Assembler assembly.Tool
	Aligner   external.Aligner
	Opts      config.Opts
}

// Result is the outcome of one sample in Run.
type Result struct {
	Sample Sample
	Status store.Status
	// Err is the first failure of the sample, if any.
	Err error
	// NumContigs and NumVariants count what was persisted.
	NumContigs  int
	NumVariants int
}

// New returns a pipeline that runs the external tools named in opts and
// records its results in st.
func New(opts config.Opts, st store.Store) *Pipeline {
	return &Pipeline{
		Store:     st,
		Assembler: assembly.Velvet{Velveth: opts.Tools.Velveth, Velvetg: opts.Tools.Velvetg},
		Aligner:   external.BWA{Path: opts.Tools.BWA, Threads: opts.Tools.BWAThreads},
		Opts:      opts,
	}
}

func (p *Pipeline) sampleDir(s Sample) string   { return filepath.Join(p.Opts.Dir, s.Label) }
func (p *Pipeline) evidenceDir(s Sample) string { return filepath.Join(p.sampleDir(s), "sv_indicants") }
func (p *Pipeline) assemblyDir(s Sample) string { return filepath.Join(p.sampleDir(s), "assembly") }
func (p *Pipeline) coverageDir(s Sample) string { return filepath.Join(p.sampleDir(s), "coverage") }

// Run cleans up any previous run of samples and runs the pipeline on them,
// up to Opts.Parallelism samples at a time. A failing sample does not affect
// the others; its failure is reported in its Result. Run itself fails only
// when the reference cannot be indexed or a sample cannot be reset.
//
// Calls are merged into the datastore one sample at a time, in label order,
// after every sample has finished both branches.
func (p *Pipeline) Run(ctx context.Context, ref placement.Reference, samples []Sample) ([]Result, error) {
	if err := p.Opts.Validate(); err != nil {
		return nil, err
	}
	for _, s := range samples {
		if err := p.Cleanup(ctx, s); err != nil {
			return nil, err
		}
		if err := p.Store.ResetStatus(ctx, s.ID); err != nil {
			return nil, err
		}
	}

	var once errors.Once
	parallel.Do(
		func() { once.Set(p.Aligner.Index(ctx, ref.FASTA)) },
		func() {
			if ref.MobileElementFASTA != "" {
				once.Set(p.Aligner.Index(ctx, ref.MobileElementFASTA))
			}
		},
	)
	if err := once.Err(); err != nil {
		return nil, errors.E(err, "index reference")
	}

	type branches struct {
		assembly, coverage error
	}
	outcomes := make([]branches, len(samples))
	err := traverse.Limit(p.Opts.Parallelism).Each(len(samples), func(i int) error {
		s := samples[i]
		parallel.Do(
			func() { outcomes[i].assembly = p.assemblyBranch(ctx, ref, s) },
			func() { outcomes[i].coverage = p.coverageBranch(ctx, s) },
		)
		asmErr, covErr := outcomes[i].assembly, outcomes[i].coverage
		if asmErr != nil {
			log.Error.Printf("%s: assembly failed: %v", s.Label, asmErr)
		}
		if covErr != nil {
			log.Error.Printf("%s: coverage deletion detection failed: %v", s.Label, covErr)
		}
		// Calls are waiting only once both branches have produced them.
		if asmErr == nil && covErr == nil {
			if err := p.Store.SetStatus(ctx, s.ID, store.WaitingToParse); err != nil {
				outcomes[i].assembly = err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return samples[order[i]].Label < samples[order[j]].Label })
	results := make([]Result, len(samples))
	for _, i := range order {
		s := samples[i]
		res := Result{Sample: s}
		asmErr, covErr := outcomes[i].assembly, outcomes[i].coverage
		switch {
		case asmErr != nil:
			res.Err = asmErr
			if covErr == nil {
				if err := p.merge(ctx, s, false); err != nil {
					log.Error.Printf("%s: persisting coverage calls: %v", s.Label, err)
				}
			}
			p.fail(ctx, s)
		case covErr != nil:
			res.Err = covErr
			if err := p.merge(ctx, s, true); err != nil {
				log.Error.Printf("%s: persisting assembly calls: %v", s.Label, err)
			}
			p.fail(ctx, s)
		default:
			if err := p.Store.SetStatus(ctx, s.ID, store.ParsingVariants); err != nil {
				res.Err = err
				break
			}
			if err := p.merge(ctx, s, true); err != nil {
				res.Err = err
				p.fail(ctx, s)
				break
			}
			if err := p.Store.SetStatus(ctx, s.ID, store.Completed); err != nil {
				res.Err = err
			}
		}
		if res.Status, err = p.Store.Status(ctx, s.ID); err != nil && res.Err == nil {
			res.Err = err
		}
		if contigs, err := p.Store.Contigs(ctx, s.ID); err == nil {
			res.NumContigs = len(contigs)
		}
		if vars, err := p.Store.Variants(ctx, s.ID); err == nil {
			res.NumVariants = len(vars)
		}
		log.Printf("%s: %s, %d contigs, %d variants", s.Label, res.Status, res.NumContigs, res.NumVariants)
		results[i] = res
	}
	return results, nil
}

// fail moves s to Failed, logging rather than returning a rejected
// transition.
func (p *Pipeline) fail(ctx context.Context, s Sample) {
	if err := p.Store.SetStatus(ctx, s.ID, store.Failed); err != nil {
		log.Error.Printf("%s: %v", s.Label, err)
	}
}
