// Package store persists the state of pipeline runs: sample status, the run
// ledger, registered datasets and tracks, contigs and variant calls.
package store

import (
	"context"

	"github.com/grailbio/svpipe/assembly"
	"github.com/grailbio/svpipe/variant"
)

// StageState is the ledger state of one pipeline stage.
type StageState string

const (
	NotStarted StageState = "NOT_STARTED"
	Done       StageState = "DONE"
	StageFail  StageState = "FAILED"
)

// LedgerEntry records the outcome of a stage. Output is a stage-defined
// reference to what the stage produced, usually a path.
type LedgerEntry struct {
	Stage  string
	State  StageState
	Output string
}

// Dataset is a file registered against a sample.
type Dataset struct {
	SampleID string
	Type     string
	Path     string
}

// Track is a browsable file registered for visualization.
type Track struct {
	SampleID string
	Name     string
	Path     string
}

// Store is the datastore the pipeline works against. Implementations must be
// safe for concurrent use.
type Store interface {
	// Status returns the run status of sampleID, Queued if none was set.
	Status(ctx context.Context, sampleID string) (Status, error)
	// SetStatus moves sampleID to next. Transitions not allowed by
	// Status.CanTransition fail with errors.Precondition.
	SetStatus(ctx context.Context, sampleID string, next Status) error
	// ResetStatus puts sampleID back to Queued.
	ResetStatus(ctx context.Context, sampleID string) error

	// Stage returns the ledger entry of stage; NotStarted if absent.
	Stage(ctx context.Context, sampleID, stage string) (LedgerEntry, error)
	SetStage(ctx context.Context, sampleID string, e LedgerEntry) error
	ClearLedger(ctx context.Context, sampleID string) error

	AddDataset(ctx context.Context, d Dataset) error
	// Datasets returns the datasets of sampleID, restricted to types if
	// any are given.
	Datasets(ctx context.Context, sampleID string, types ...string) ([]Dataset, error)
	DeleteDatasets(ctx context.Context, sampleID string, types ...string) error

	AddTrack(ctx context.Context, t Track) error
	Tracks(ctx context.Context, sampleID string) ([]Track, error)
	DeleteTracks(ctx context.Context, sampleID string) error

	// PutContigs inserts or replaces contigs by UID.
	PutContigs(ctx context.Context, contigs []assembly.Contig) error
	// Contigs returns the contigs of sampleID ordered by label.
	Contigs(ctx context.Context, sampleID string) ([]assembly.Contig, error)
	DeleteContigs(ctx context.Context, sampleID string) error

	// PutVariants inserts or replaces candidates by UID.
	PutVariants(ctx context.Context, cands []variant.Candidate) error
	// Variants returns the calls of sampleID made by any of methods, or by
	// any method if none are given.
	Variants(ctx context.Context, sampleID string, methods ...variant.Method) ([]variant.Candidate, error)
	DeleteVariants(ctx context.Context, sampleID string, methods ...variant.Method) error

	Close() error
}
