package external

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	bext "github.com/biogo/external"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Aligner maps reads or contigs against a FASTA target.
type Aligner interface {
	// Index prepares fasta for alignment. It is a no-op when the index
	// already exists.
	Index(ctx context.Context, fasta string) error
	// Align aligns the sequences in reads (FASTA or FASTQ) to ref and writes
	// SAM text to out. If interleaved, consecutive FASTQ records are mates.
	Align(ctx context.Context, ref, reads string, interleaved bool, out string) error
}

// BWAIndex is "bwa index".
type BWAIndex struct {
	Cmd   string `buildarg:"{{if .}}{{.}}{{else}}bwa{{end}}"`
	Sub   string `buildarg:"index"`
	Fasta string `buildarg:"{{.}}"`
}

// BuildCommand implements CommandBuilder.
func (b BWAIndex) BuildCommand() (*exec.Cmd, error) {
	if b.Fasta == "" {
		return nil, errors.E(errors.Invalid, "bwa index: missing fasta")
	}
	cl, err := bext.Build(b)
	if err != nil {
		return nil, err
	}
	return exec.Command(cl[0], cl[1:]...), nil
}

// BWAMem is "bwa mem". Output goes to stdout.
type BWAMem struct {
	Cmd         string `buildarg:"{{if .}}{{.}}{{else}}bwa{{end}}"`
	Sub         string `buildarg:"mem"`
	Threads     int    `buildarg:"{{if .}}-t{{split}}{{.}}{{end}}"`
	Interleaved bool   `buildarg:"{{if .}}-p{{end}}"`
	// MarkShorterSplits marks shorter split hits as secondary; leave it
	// off so chimeric pieces come out as supplementary.
	MarkShorterSplits bool   `buildarg:"{{if .}}-M{{end}}"`
	Ref               string `buildarg:"{{.}}"`
	Reads             string `buildarg:"{{.}}"`
}

// BuildCommand implements CommandBuilder.
func (b BWAMem) BuildCommand() (*exec.Cmd, error) {
	if b.Ref == "" || b.Reads == "" {
		return nil, errors.E(errors.Invalid, "bwa mem: missing ref or reads")
	}
	cl, err := bext.Build(b)
	if err != nil {
		return nil, err
	}
	return exec.Command(cl[0], cl[1:]...), nil
}

// BWA implements Aligner with the bwa binary.
type BWA struct {
	// Path of the bwa binary. Empty means "bwa" from $PATH.
	Path    string
	Threads int
}

// Index implements Aligner. The index is considered present when the .bwt
// file exists next to fasta.
func (b BWA) Index(ctx context.Context, fasta string) error {
	if _, err := file.Stat(ctx, fasta+".bwt"); err == nil {
		log.Debug.Printf("%s: bwa index exists", fasta)
		return nil
	}
	return Run(ctx, BWAIndex{Cmd: b.Path, Fasta: fasta}, logPath(fasta, "bwa_index"), "")
}

// Align implements Aligner.
func (b BWA) Align(ctx context.Context, ref, reads string, interleaved bool, out string) error {
	mem := BWAMem{Cmd: b.Path, Threads: b.Threads, Interleaved: interleaved, Ref: ref, Reads: reads}
	return Run(ctx, mem, logPath(out, "bwa_mem"), out)
}

// logPath returns <dir of path>/<stem of path>.<tool>_error_log.txt.
func logPath(path, tool string) string {
	dir, base := filepath.Split(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+"."+tool+"_error_log.txt")
}
