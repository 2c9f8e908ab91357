package assembly

import (
	"context"
	"os/exec"
	"path/filepath"
	"text/template"

	bext "github.com/biogo/external"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/svpipe/external"
)

// Files written by the assembler into its working directory.
const (
	ContigsFile = "contigs.fa"
	velvethLog  = "velveth_error_log.txt"
	velvetgLog  = "velvetg_error_log.txt"
)

// IntermediateFiles are the assembler files that are not needed once the
// contigs have been parsed.
var IntermediateFiles = []string{
	"Sequences", "Roadmaps", "PreGraph", "stats.txt", "Log", "LastGraph", "Graph2",
}

// Tool assembles a name-sorted, paired BAM into <dir>/contigs.fa.
type Tool interface {
	Assemble(ctx context.Context, dir, reads string, p Params) error
}

var argFuncs = template.FuncMap{
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}

// Velveth is the hashing step of Velvet.
type Velveth struct {
	Cmd        string   `buildarg:"{{if .}}{{.}}{{else}}velveth{{end}}"`
	Dir        string   `buildarg:"{{.}}"`
	HashLength int      `buildarg:"{{.}}"`
	Extra      []string `buildarg:"{{range $i, $a := .}}{{if $i}}{{split}}{{end}}{{$a}}{{end}}"`
	Format     string   `buildarg:"-bam"`
	ReadType   string   `buildarg:"-shortPaired"`
	Reads      string   `buildarg:"{{.}}"`
}

// BuildCommand implements external.CommandBuilder.
func (v Velveth) BuildCommand() (*exec.Cmd, error) {
	if v.Dir == "" || v.Reads == "" || v.HashLength <= 0 {
		return nil, errors.E(errors.Invalid, "velveth: missing directory, reads or hash length")
	}
	cl, err := bext.Build(v, argFuncs)
	if err != nil {
		return nil, err
	}
	return exec.Command(cl[0], cl[1:]...), nil
}

// Velvetg is the graph step of Velvet.
type Velvetg struct {
	Cmd             string   `buildarg:"{{if .}}{{.}}{{else}}velvetg{{end}}"`
	Dir             string   `buildarg:"{{.}}"`
	InsLength       float64  `buildarg:"-ins_length{{split}}{{printf \"%.2f\" .}}"`
	ExpCov          float64  `buildarg:"-exp_cov{{split}}{{printf \"%.2f\" .}}"`
	Scaffolding     bool     `buildarg:"-scaffolding{{split}}{{yesno .}}"`
	InsLengthSD     float64  `buildarg:"-ins_length_sd{{split}}{{printf \"%.2f\" .}}"`
	CovCutoff       float64  `buildarg:"-cov_cutoff{{split}}{{printf \"%.2f\" .}}"`
	MinContigLength int      `buildarg:"-min_contig_lgth{{split}}{{.}}"`
	ReadTracking    bool     `buildarg:"-read_trkg{{split}}{{yesno .}}"`
	Extra           []string `buildarg:"{{range $i, $a := .}}{{if $i}}{{split}}{{end}}{{$a}}{{end}}"`
}

// BuildCommand implements external.CommandBuilder.
func (v Velvetg) BuildCommand() (*exec.Cmd, error) {
	if v.Dir == "" {
		return nil, errors.E(errors.Invalid, "velvetg: missing directory")
	}
	cl, err := bext.Build(v, argFuncs)
	if err != nil {
		return nil, err
	}
	return exec.Command(cl[0], cl[1:]...), nil
}

// Velvet runs velveth then velvetg. Empty paths mean the binaries on $PATH.
type Velvet struct {
	Velveth string
	Velvetg string
}

// Commands returns the two steps Assemble runs, in order.
func (v Velvet) Commands(dir, reads string, p Params) (Velveth, Velvetg) {
	h := Velveth{
		Cmd:        v.Velveth,
		Dir:        dir,
		HashLength: p.HashLength,
		Extra:      p.VelvethExtra,
		Reads:      reads,
	}
	g := Velvetg{
		Cmd:             v.Velvetg,
		Dir:             dir,
		InsLength:       p.InsLength,
		ExpCov:          p.ExpCov,
		InsLengthSD:     p.InsLengthSD,
		CovCutoff:       p.CovCutoff,
		MinContigLength: p.MinContigLength,
		ReadTracking:    p.ReadTracking,
		Extra:           p.VelvetgExtra,
	}
	return h, g
}

// Assemble implements Tool. Each step keeps its stderr in its own log file
// in dir. A failing step is returned as an *external.ToolError.
func (v Velvet) Assemble(ctx context.Context, dir, reads string, p Params) error {
	h, g := v.Commands(dir, reads, p)
	if err := external.Run(ctx, h, filepath.Join(dir, velvethLog), ""); err != nil {
		return err
	}
	if err := external.Run(ctx, g, filepath.Join(dir, velvetgLog), ""); err != nil {
		return err
	}
	log.Debug.Printf("%s: velvet done", dir)
	return nil
}
