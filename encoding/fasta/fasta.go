// Package fasta reads and writes small multi-record FASTA files such as
// assembler contig output and per-contig alignment targets. Records are
// held in memory.
package fasta

import (
	"context"
	"io"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/grailbio/base/file"
	"github.com/pkg/errors"
)

// lineWidth is the number of bases per line in written files.
const lineWidth = 60

// Record is one FASTA record. Name is the header text up to the first
// space; Desc holds the rest of the header line, if any.
type Record struct {
	Name string
	Desc string
	Seq  string
}

// Read parses all records in r.
func Read(r io.Reader) ([]Record, error) {
	var recs []Record
	sc := seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNAredundant)))
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		recs = append(recs, Record{
			Name: s.Name(),
			Desc: s.Description(),
			Seq:  string(alphabet.LettersToBytes(s.Seq)),
		})
	}
	if err := sc.Error(); err != nil {
		return nil, errors.Wrap(err, "malformed FASTA")
	}
	return recs, nil
}

// Write writes recs to w in order.
func Write(w io.Writer, recs []Record) error {
	fw := fasta.NewWriter(w, lineWidth)
	for _, r := range recs {
		s := linear.NewSeq(r.Name, alphabet.BytesToLetters([]byte(r.Seq)), alphabet.DNAredundant)
		s.Desc = r.Desc
		if _, err := fw.Write(s); err != nil {
			return errors.Wrapf(err, "write %s", r.Name)
		}
	}
	return nil
}

// ReadFile reads all records in the file at path.
func ReadFile(ctx context.Context, path string) (recs []Record, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	recs, err = Read(in.Reader(ctx))
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return recs, nil
}

// WriteFile creates path and writes recs to it.
func WriteFile(ctx context.Context, path string, recs []Record) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return Write(out.Writer(ctx), recs)
}
