package pipeline

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/svpipe/store"
)

// Ledger stages.
const (
	stagePrepare     = "prepare"
	stageClassify    = "classify"
	stageConsolidate = "consolidate"
	stageAssemble    = "assemble"
	stageRefine      = "refine"
	stagePlace       = "place"
	stageCoverage    = "coverage"
	stageMerge       = "merge"
)

// stage runs fn unless the ledger says stage is already done for s, in which
// case the recorded output is returned. The outcome of fn is recorded.
func (p *Pipeline) stage(ctx context.Context, s Sample, name string, fn func() (string, error)) (string, error) {
	e, err := p.Store.Stage(ctx, s.ID, name)
	if err != nil {
		return "", err
	}
	if e.State == store.Done {
		log.Debug.Printf("%s: %s already done", s.Label, name)
		return e.Output, nil
	}
	out, err := fn()
	if err != nil {
		if e := p.Store.SetStage(ctx, s.ID, store.LedgerEntry{Stage: name, State: store.StageFail}); e != nil {
			log.Error.Printf("%s: recording failure of %s: %v", s.Label, name, e)
		}
		return "", err
	}
	if err := p.Store.SetStage(ctx, s.ID, store.LedgerEntry{Stage: name, State: store.Done, Output: out}); err != nil {
		return "", err
	}
	return out, nil
}
