// Package fastq writes reads in FASTQ format. The aligner consumes the
// evidence reads of a sample in this form, both mates of a pair interleaved.
package fastq

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
)

var newline = []byte{'\n'}

// A Read is a FASTQ read, comprising an ID, sequence, line 3
// ("unknown"), and a quality string.
type Read struct {
	ID, Seq, Unk, Qual string
}

var complement = [256]byte{
	'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'N': 'N',
	'a': 't', 'c': 'g', 'g': 'c', 't': 'a', 'n': 'n',
}

// FromRecord converts r back to the read as sequenced: reverse-strand
// alignments are reverse complemented. Missing qualities become '!'.
func FromRecord(r *sam.Record) Read {
	seq := r.Seq.Expand()
	qual := make([]byte, len(seq))
	for i := range qual {
		q := byte(0)
		if i < len(r.Qual) && r.Qual[i] != 0xff {
			q = r.Qual[i]
		}
		qual[i] = q + 33
	}
	if gbam.IsReverse(r) {
		for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
			seq[i], seq[j] = seq[j], seq[i]
			qual[i], qual[j] = qual[j], qual[i]
		}
		for i, b := range seq {
			if c := complement[b]; c != 0 {
				seq[i] = c
			} else {
				seq[i] = 'N'
			}
		}
	}
	return Read{ID: "@" + r.Name, Seq: string(seq), Unk: "+", Qual: string(qual)}
}

// Writer is a FASTQ file writer.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter constructs a new FASTQ writer
// that writes reads to the underlying writer w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes the read r in FASTQ format.
// An error is returned if the write failed.
func (w *Writer) Write(r *Read) error {
	w.writeln(r.ID)
	w.writeln(r.Seq)
	w.writeln(r.Unk)
	w.writeln(r.Qual)
	return w.err
}

func (w *Writer) writeln(line string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, line)
	if w.err == nil {
		_, w.err = w.w.Write(newline)
	}
}

// WriteInterleaved writes the primary records of recs to path. recs must be
// sorted by name so that the two mates of a pair are adjacent, first mate
// first; that is the layout "bwa mem -p" expects.
func WriteInterleaved(ctx context.Context, path string, recs []*sam.Record) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := NewWriter(out.Writer(ctx))
	for _, r := range recs {
		if !gbam.IsPrimary(r) {
			continue
		}
		read := FromRecord(r)
		if err := w.Write(&read); err != nil {
			return errors.E(err, "write", path)
		}
	}
	return nil
}
