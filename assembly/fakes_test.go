package assembly

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
)

// fakeVelvet writes canned contigs to <dir>/contigs.fa, keyed by the base
// name of dir.
type fakeVelvet struct {
	outputs map[string][]string
	fail    error

	mu    sync.Mutex
	calls []string
}

func (f *fakeVelvet) Assemble(_ context.Context, dir, reads string, _ Params) error {
	key := filepath.Base(dir)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	var b strings.Builder
	for i, seq := range f.outputs[key] {
		fmt.Fprintf(&b, ">NODE_%d_length_%d_cov_%d.500000\n%s\n", i+3, len(seq), 10*(i+1), seq)
	}
	for _, name := range IntermediateFiles {
		if err := ioutil.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			return err
		}
	}
	return ioutil.WriteFile(filepath.Join(dir, ContigsFile), []byte(b.String()), 0644)
}

func (f *fakeVelvet) called(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == key {
			return true
		}
	}
	return false
}

// fakeAligner reports the reads named in hits as mapped to the target whose
// directory name is the key.
type fakeAligner struct {
	hits map[string][]string

	mu      sync.Mutex
	indexed []string
}

func (f *fakeAligner) Index(_ context.Context, fasta string) error {
	f.mu.Lock()
	f.indexed = append(f.indexed, fasta)
	f.mu.Unlock()
	return nil
}

func (f *fakeAligner) Align(ctx context.Context, ref, reads string, interleaved bool, out string) error {
	key := filepath.Base(filepath.Dir(ref))
	target, err := sam.NewReference(key, "", "", 1000, nil, nil)
	if err != nil {
		return err
	}
	header, err := sam.NewHeader(nil, []*sam.Reference{target})
	if err != nil {
		return err
	}
	recs := []*sam.Record{{
		Name:  "stray",
		Pos:   -1,
		Flags: sam.Paired | sam.Read1 | sam.Unmapped,
		Seq:   sam.NewSeq([]byte("ACGT")),
		Qual:  bytes.Repeat([]byte{30}, 4),
	}}
	for _, name := range f.hits[key] {
		recs = append(recs, &sam.Record{
			Name:  name,
			Ref:   target,
			Pos:   10,
			MapQ:  60,
			Cigar: []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 4)},
			Flags: sam.Paired | sam.Read1,
			Seq:   sam.NewSeq([]byte("ACGT")),
			Qual:  bytes.Repeat([]byte{30}, 4),
		})
	}
	return gbam.WriteSAMFile(ctx, out, header, recs)
}
