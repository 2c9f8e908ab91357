package pipeline

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/svpipe/assembly"
	"github.com/grailbio/svpipe/encoding/bamprovider"
	"github.com/grailbio/svpipe/evidence"
	"github.com/grailbio/svpipe/store"
)

const (
	noUnpairedFile = "bwa_align.no_unpaired.bam"
	evidenceStem   = "sv_indicants"
)

// statsOnce computes the sample statistics at most once, and only if some
// stage needs them.
type statsOnce struct {
	once  sync.Once
	path  string
	stats evidence.Stats
	err   error
}

func (o *statsOnce) get(ctx context.Context) (evidence.Stats, error) {
	o.once.Do(func() {
		prov := bamprovider.NewProvider(ctx, o.path)
		o.stats, o.err = evidence.ComputeStats(prov)
		if err := prov.Close(); err != nil && o.err == nil {
			o.err = errors.E(errors.Invalid, o.path, err)
		}
		if o.err == nil {
			log.Printf("%s: coverage %.2f, insert size %.1f ± %.1f", o.path,
				o.stats.AvgCoverage, o.stats.InsertMean, o.stats.InsertSD)
		}
	})
	return o.stats, o.err
}

// GenerateContigs runs classification, consolidation and assembly for s and
// returns the assembled contigs, before refinement. Stages already recorded
// as done in the ledger are not rerun unless overwrite is set, in which case
// all previous results of s are cleaned up first.
func (p *Pipeline) GenerateContigs(ctx context.Context, s Sample, overwrite bool) ([]assembly.Contig, error) {
	_, contigs, err := p.generate(ctx, s, overwrite)
	return contigs, err
}

func (p *Pipeline) generate(ctx context.Context, s Sample, overwrite bool) (assembly.RunInfo, []assembly.Contig, error) {
	if overwrite {
		if err := p.Cleanup(ctx, s); err != nil {
			return assembly.RunInfo{}, nil, err
		}
	}
	stats := &statsOnce{path: s.AlignmentPath}
	dir := p.evidenceDir(s)

	source, err := p.stage(ctx, s, stagePrepare, func() (string, error) {
		prov := bamprovider.NewProvider(ctx, s.AlignmentPath)
		defer prov.Close() // nolint: errcheck
		if err := bamprovider.Validate(ctx, prov, s.AlignmentPath); err != nil {
			return "", err
		}
		dst := filepath.Join(dir, noUnpairedFile)
		if _, err := evidence.PrepareSource(ctx, prov, dst); err != nil {
			return "", err
		}
		return dst, p.addDataset(ctx, s, DatasetNoUnpaired, dst)
	})
	if err != nil {
		return assembly.RunInfo{}, nil, err
	}

	opts := p.Opts.Classify
	var inputs []evidence.Input
	for _, c := range evidence.AllCategories {
		if opts.Enabled(c) {
			inputs = append(inputs, evidence.Input{Category: c, Path: filepath.Join(dir, c.FileName())})
		}
	}
	_, err = p.stage(ctx, s, stageClassify, func() (string, error) {
		st, err := stats.get(ctx)
		if err != nil {
			return "", err
		}
		params := evidence.NewParams(opts, st)
		prov := bamprovider.NewProvider(ctx, source)
		defer prov.Close() // nolint: errcheck
		for _, in := range inputs {
			n, err := evidence.Classify(ctx, prov, in.Category, params, in.Path)
			if err != nil {
				return "", err
			}
			log.Printf("%s: %d %s records", s.Label, n, in.Category)
			if err := p.addDataset(ctx, s, in.Category.DatasetType(), in.Path); err != nil {
				return "", err
			}
		}
		return dir, nil
	})
	if err != nil {
		return assembly.RunInfo{}, nil, err
	}

	evidencePath, err := p.stage(ctx, s, stageConsolidate, func() (string, error) {
		prov := bamprovider.NewProvider(ctx, source)
		defer prov.Close() // nolint: errcheck
		set, err := evidence.Consolidate(ctx, prov, inputs, opts, filepath.Join(dir, evidenceStem))
		if err != nil {
			return "", err
		}
		if err := p.addDataset(ctx, s, DatasetEvidence, set.Path); err != nil {
			return "", err
		}
		if err := p.addDataset(ctx, s, DatasetEvidenceSorted, set.CoordinateSortedPath); err != nil {
			return "", err
		}
		return set.Path, p.Store.AddTrack(ctx, store.Track{SampleID: s.ID, Name: evidenceStem, Path: set.CoordinateSortedPath})
	})
	if err != nil {
		return assembly.RunInfo{}, nil, err
	}

	asmDir := p.assemblyDir(s)
	metadataPath, err := p.stage(ctx, s, stageAssemble, func() (string, error) {
		st, err := stats.get(ctx)
		if err != nil {
			return "", err
		}
		params, err := assembly.NewParams(p.Opts.Assembly, st)
		if err != nil {
			return "", err
		}
		in := assembly.Input{
			SampleID:     s.ID,
			SampleLabel:  s.Label,
			EvidencePath: evidencePath,
			Dir:          asmDir,
			Opts:         p.Opts.Assembly,
		}
		empty, err := isEmpty(ctx, evidencePath)
		if err != nil {
			return "", err
		}
		var contigs []assembly.Contig
		path := filepath.Join(asmDir, assembly.MetadataFile)
		if empty {
			log.Printf("%s: no evidence reads, nothing to assemble", s.Label)
			info := assembly.RunInfo{SampleID: s.ID, SampleLabel: s.Label, EvidencePath: evidencePath, Params: params, Opts: in.Opts}
			if err := assembly.WriteMetadata(ctx, path, info, nil); err != nil {
				return "", err
			}
		} else if contigs, err = assembly.Assemble(ctx, p.Assembler, in, params); err != nil {
			return "", err
		}
		if err := p.Store.PutContigs(ctx, contigs); err != nil {
			return "", err
		}
		return path, p.addDataset(ctx, s, DatasetAssemblyMetadata, path)
	})
	if err != nil {
		return assembly.RunInfo{}, nil, err
	}
	return assembly.ReadMetadata(ctx, metadataPath)
}

// isEmpty reports whether the BAM file at path has no records.
func isEmpty(ctx context.Context, path string) (bool, error) {
	prov := bamprovider.NewProvider(ctx, path)
	found := false
	err := bamprovider.ForEach(prov, func(*sam.Record) error {
		found = true
		return errStop
	})
	if e := prov.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil && err != errStop {
		return false, err
	}
	return !found, nil
}

var errStop = errors.New("stop")

func (p *Pipeline) addDataset(ctx context.Context, s Sample, typ, path string) error {
	return p.Store.AddDataset(ctx, store.Dataset{SampleID: s.ID, Type: typ, Path: path})
}
