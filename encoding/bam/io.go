package bam

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/compress/gzip"
)

// DefaultCompression is the BGZF compression level used for intermediate
// BAM files. They are rewritten several times per run, so speed matters more
// than size.
const DefaultCompression = gzip.BestSpeed

// Writer writes records to a BAM file.
type Writer struct {
	ctx  context.Context
	path string
	out  file.File
	w    *bam.Writer
}

// NewWriter creates path and writes header to it.
func NewWriter(ctx context.Context, path string, header *sam.Header) (*Writer, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	w, err := bam.NewWriterLevel(out.Writer(ctx), header, DefaultCompression, 1)
	if err != nil {
		out.Close(ctx) // nolint: errcheck
		return nil, errors.E(err, "bam header", path)
	}
	return &Writer{ctx: ctx, path: path, out: out, w: w}, nil
}

// Write appends r to the file.
func (w *Writer) Write(r *sam.Record) error {
	return w.w.Write(r)
}

// Close flushes the BGZF stream and closes the file.
func (w *Writer) Close() error {
	err := w.w.Close()
	if e := w.out.Close(w.ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return errors.E(err, "close", w.path)
	}
	return nil
}

// WriteFile writes recs, in order, to a new BAM file at path.
func WriteFile(ctx context.Context, path string, header *sam.Header, recs []*sam.Record) error {
	w, err := NewWriter(ctx, path, header)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			w.Close() // nolint: errcheck
			return errors.E(err, "write", path)
		}
	}
	return w.Close()
}

// ReadFile reads the whole BAM file at path into memory.
func ReadFile(ctx context.Context, path string) (header *sam.Header, recs []*sam.Record, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return nil, nil, errors.E(err, "bam header", path)
	}
	recs, err = readAll(r.Read)
	if e := r.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return nil, nil, errors.E(err, "read", path)
	}
	return r.Header(), recs, nil
}

// WriteSAMFile writes recs as SAM text. Text is the mate-aware form the
// consolidator hands between its steps.
func WriteSAMFile(ctx context.Context, path string, header *sam.Header, recs []*sam.Record) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w, err := sam.NewWriter(out.Writer(ctx), header, sam.FlagDecimal)
	if err != nil {
		return errors.E(err, "sam header", path)
	}
	for _, r := range recs {
		if err := w.Write(r); err != nil {
			return errors.E(err, "write", path)
		}
	}
	return nil
}

// ReadSAMFile reads the whole SAM text file at path into memory.
func ReadSAMFile(ctx context.Context, path string) (header *sam.Header, recs []*sam.Record, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r, err := sam.NewReader(in.Reader(ctx))
	if err != nil {
		return nil, nil, errors.E(err, "sam header", path)
	}
	if recs, err = readAll(r.Read); err != nil {
		return nil, nil, errors.E(err, "read", path)
	}
	return r.Header(), recs, nil
}

func readAll(read func() (*sam.Record, error)) ([]*sam.Record, error) {
	var recs []*sam.Record
	for {
		rec, err := read()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}
