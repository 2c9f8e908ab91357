package pipeline

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/svpipe/encoding/vcf"
	"github.com/grailbio/svpipe/variant"
)

// merge loads the candidate VCFs registered for s into the datastore and
// links each de novo call to the contig it was derived from. With deNovo
// unset only the coverage calls are loaded.
func (p *Pipeline) merge(ctx context.Context, s Sample, deNovo bool) error {
	methods := []variant.Method{variant.Coverage}
	if deNovo {
		methods = variant.DeNovoMethods
	}
	types := make([]string, len(methods))
	for i, m := range methods {
		types[i] = vcfDatasets[m]
	}
	_, err := p.stage(ctx, s, stageMerge, func() (string, error) {
		datasets, err := p.Store.Datasets(ctx, s.ID, types...)
		if err != nil {
			return "", err
		}
		var cands []variant.Candidate
		for _, d := range datasets {
			c, err := vcf.ReadFile(ctx, d.Path, s.ID)
			if err != nil {
				return "", err
			}
			cands = append(cands, c...)
		}
		contigs, err := p.Store.Contigs(ctx, s.ID)
		if err != nil {
			return "", err
		}
		byUID := map[string]int{}
		for i, c := range contigs {
			byUID[c.UID] = i
			contigs[i].Metadata.Variants = nil
		}
		for i := range cands {
			c := &cands[i]
			if c.ContigUID == "" {
				continue
			}
			j, ok := byUID[c.ContigUID]
			if !ok {
				log.Error.Printf("%s: call %s refers to unknown contig %s", s.Label, c.UID, c.ContigUID)
				c.ContigUID = ""
				continue
			}
			contigs[j].Metadata.Variants = append(contigs[j].Metadata.Variants, c.UID)
		}
		if err := p.Store.PutVariants(ctx, cands); err != nil {
			return "", err
		}
		if err := p.Store.PutContigs(ctx, contigs); err != nil {
			return "", err
		}
		log.Printf("%s: merged %d calls from %d files", s.Label, len(cands), len(datasets))
		return "", nil
	})
	return err
}

// DeNovoVariants returns the calls of the sample tagged with one of
// variant.DeNovoMethods.
func (p *Pipeline) DeNovoVariants(ctx context.Context, sampleID string) ([]variant.Candidate, error) {
	return p.Store.Variants(ctx, sampleID, variant.DeNovoMethods...)
}
