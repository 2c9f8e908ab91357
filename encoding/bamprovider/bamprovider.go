package bamprovider

import (
	"context"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM files. The path may be anything
// github.com/grailbio/base/file understands.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string

	ctx context.Context
	err errors.Once

	mu      sync.Mutex
	nActive int
	header  *sam.Header
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader

	err  error
	rec  *sam.Record
	done bool
}

// NewProvider creates a BAMProvider for path. ctx is used for every file
// operation issued by the provider and its iterators.
func NewProvider(ctx context.Context, path string) *BAMProvider {
	return &BAMProvider{Path: path, ctx: ctx}
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	in, err := file.Open(b.ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer in.Close(b.ctx) // nolint: errcheck
	reader, err := bam.NewReader(in.Reader(b.ctx), 1)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	b.header = reader.Header()
	return b.header, reader.Close()
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator() Iterator {
	iter := &bamIterator{provider: b}
	b.mu.Lock()
	b.nActive++
	b.mu.Unlock()
	if iter.in, iter.err = file.Open(b.ctx, b.Path); iter.err != nil {
		iter.done = true
		return iter
	}
	if iter.reader, iter.err = bam.NewReader(iter.in.Reader(b.ctx), 1); iter.err != nil {
		iter.done = true
	}
	return iter
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %s", b.nActive, b.Path)
	}
	return b.err.Err()
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if i.done {
		return false
	}
	i.rec, i.err = i.reader.Read()
	if i.err != nil {
		i.done = true
		if i.err == io.EOF {
			i.err = nil
		}
		return false
	}
	return true
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record { return i.rec }

// Err implements the Iterator interface.
func (i *bamIterator) Err() error { return i.err }

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
	}
	if i.in != nil {
		if err := i.in.Close(i.provider.ctx); err != nil && i.err == nil {
			i.err = err
		}
	}
	b := i.provider
	b.mu.Lock()
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %s", b.Path)
	}
	b.mu.Unlock()
	b.err.Set(i.err)
	return i.err
}
