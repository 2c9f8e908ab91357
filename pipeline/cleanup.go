package pipeline

import (
	"context"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svpipe/variant"
)

// Cleanup removes every trace of a previous run of s: its contigs, its de
// novo calls, the datasets and tracks the pipeline registered with their
// files, the sample working directory and the stage ledger. Calls made by
// other methods are kept. Cleaning a sample that was never run is a no-op.
func (p *Pipeline) Cleanup(ctx context.Context, s Sample) error {
	if err := p.Store.DeleteContigs(ctx, s.ID); err != nil {
		return errors.E(err, "delete contigs", s.ID)
	}
	if err := p.Store.DeleteVariants(ctx, s.ID, variant.DeNovoMethods...); err != nil {
		return errors.E(err, "delete variants", s.ID)
	}
	types := datasetTypes()
	datasets, err := p.Store.Datasets(ctx, s.ID, types...)
	if err != nil {
		return err
	}
	for _, d := range datasets {
		if _, err := file.Stat(ctx, d.Path); err != nil {
			continue
		}
		if err := file.Remove(ctx, d.Path); err != nil {
			return errors.E(err, "remove", d.Path)
		}
	}
	if err := p.Store.DeleteDatasets(ctx, s.ID, types...); err != nil {
		return errors.E(err, "delete datasets", s.ID)
	}
	if err := p.Store.DeleteTracks(ctx, s.ID); err != nil {
		return errors.E(err, "delete tracks", s.ID)
	}
	if err := os.RemoveAll(p.sampleDir(s)); err != nil {
		return errors.E(err, "remove", p.sampleDir(s))
	}
	if err := p.Store.ClearLedger(ctx, s.ID); err != nil {
		return errors.E(err, "clear ledger", s.ID)
	}
	log.Debug.Printf("%s: cleaned up %d datasets", s.Label, len(datasets))
	return nil
}
