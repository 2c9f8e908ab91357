package bamprovider

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Provider allows reading a BAM file one or more times. Thread compatible.
type Provider interface {
	// GetHeader returns the header for the provided BAM data. The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// NewIterator returns an iterator over all the records in the file, in
	// file order. Multiple iterators may be open at the same time.
	//
	// REQUIRES: Close has not been called.
	NewIterator() Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in file order. Thread compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.
	Record() *sam.Record

	// Err returns the error encoutered during iteration, or nil if no error
	// occurred. An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

// Validate checks that the provider yields a header with at least one
// reference and at least one record. Any failure is reported with kind
// errors.Invalid; callers treat it as a bad input alignment.
func Validate(ctx context.Context, p Provider, path string) error {
	header, err := p.GetHeader()
	if err != nil {
		return errors.E(errors.Invalid, "read header", path, err)
	}
	if len(header.Refs()) == 0 {
		return errors.E(errors.Invalid, path, "alignment has no reference sequences")
	}
	iter := p.NewIterator()
	found := iter.Scan()
	if err := iter.Close(); err != nil {
		return errors.E(errors.Invalid, "read records", path, err)
	}
	if !found {
		return errors.E(errors.Invalid, path, "alignment has no records")
	}
	return nil
}

// ForEach calls fn for every record yielded by p. It stops at the first
// error returned by fn.
func ForEach(p Provider, fn func(r *sam.Record) error) error {
	iter := p.NewIterator()
	for iter.Scan() {
		if err := fn(iter.Record()); err != nil {
			iter.Close() // nolint: errcheck
			return err
		}
	}
	return iter.Close()
}
