package main

/*
bio-sv detects structural variants in paired-end samples. For each sample it
selects the reads indicating a structural variant, assembles them into
contigs, places the contigs on the reference, and calls deletions from drops
in read depth. Calls and contigs are kept in an SQLite datastore.

Samples are given as a tab-separated sheet with the columns "id", "label" and
"alignment".
*/

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/svpipe/config"
	"github.com/grailbio/svpipe/encoding/vcf"
	"github.com/grailbio/svpipe/pipeline"
	"github.com/grailbio/svpipe/placement"
	"github.com/grailbio/svpipe/store"
	"v.io/x/lib/cmdline"
)

// open loads the settings and opens the datastore they name. The returned
// function closes the datastore.
func open(configPath string) (*pipeline.Pipeline, func(), error) {
	opts, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(opts.Datastore)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := st.Close(); err != nil {
			log.Error.Printf("close %s: %v", opts.Datastore, err)
		}
	}
	return pipeline.New(opts, st), closer, nil
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Run the pipeline on every sample of a sample sheet",
		ArgsName: "samples.tsv",
	}
	configPath := cmd.Flags.String("config", "", "Settings file (YAML, TOML or JSON). Defaults apply to absent keys")
	refPath := cmd.Flags.String("ref", "", "Reference FASTA. Required")
	mePath := cmd.Flags.String("me", "", "Mobile-element FASTA. Optional")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("run takes one sample sheet, but got %v", argv)
		}
		if *refPath == "" {
			return fmt.Errorf("-ref is required")
		}
		ctx := vcontext.Background()
		p, closer, err := open(*configPath)
		if err != nil {
			return err
		}
		defer closer()
		samples, err := pipeline.ReadSamples(ctx, argv[0])
		if err != nil {
			return err
		}
		results, err := p.Run(ctx, placement.Reference{FASTA: *refPath, MobileElementFASTA: *mePath}, samples)
		if err != nil {
			return err
		}
		failed := writeResults(env.Stdout, results)
		if failed > 0 {
			return fmt.Errorf("%d of %d samples failed", failed, len(results))
		}
		return nil
	})
	return cmd
}

// writeResults prints one line per sample and returns the number of failed
// samples.
func writeResults(w io.Writer, results []pipeline.Result) int {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "id\tlabel\tstatus\tcontigs\tvariants\terror") // nolint: errcheck
	failed := 0
	for _, r := range results {
		msg := ""
		if r.Err != nil {
			failed++
			msg = describe(r.Err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", // nolint: errcheck
			r.Sample.ID, r.Sample.Label, r.Status, r.NumContigs, r.NumVariants, msg)
	}
	tw.Flush() // nolint: errcheck
	return failed
}

func describe(err error) string {
	switch {
	case pipeline.IsInputError(err):
		return "invalid input: " + err.Error()
	case pipeline.IsEmptyInput(err):
		return "nothing to do: " + err.Error()
	}
	if te, ok := pipeline.AsToolError(err); ok {
		return fmt.Sprintf("%s failed, see %s", te.Tool, te.LogPath)
	}
	return err.Error()
}

func newCmdContigs() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "contigs",
		Short:    "Assemble the contigs of the samples of a sample sheet without placing them",
		ArgsName: "samples.tsv",
	}
	configPath := cmd.Flags.String("config", "", "Settings file")
	overwrite := cmd.Flags.Bool("overwrite", false, "Discard the results of previous runs first")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("contigs takes one sample sheet, but got %v", argv)
		}
		ctx := vcontext.Background()
		p, closer, err := open(*configPath)
		if err != nil {
			return err
		}
		defer closer()
		samples, err := pipeline.ReadSamples(ctx, argv[0])
		if err != nil {
			return err
		}
		for _, s := range samples {
			contigs, err := p.GenerateContigs(ctx, s, *overwrite)
			if err != nil {
				return fmt.Errorf("%s: %v", s.Label, err)
			}
			for _, c := range contigs {
				fmt.Fprintf(env.Stdout, "%s\t%s\t%d\t%.2f\n", s.ID, c.Label, c.NumBases(), c.Coverage) // nolint: errcheck
			}
		}
		return nil
	})
	return cmd
}

func newCmdCleanup() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "cleanup",
		Short:    "Remove the results of previous runs of the samples of a sample sheet",
		ArgsName: "samples.tsv",
	}
	configPath := cmd.Flags.String("config", "", "Settings file")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("cleanup takes one sample sheet, but got %v", argv)
		}
		ctx := vcontext.Background()
		p, closer, err := open(*configPath)
		if err != nil {
			return err
		}
		defer closer()
		samples, err := pipeline.ReadSamples(ctx, argv[0])
		if err != nil {
			return err
		}
		for _, s := range samples {
			if err := p.Cleanup(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	return cmd
}

func newCmdStatus() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "status",
		Short:    "Show the run status of samples",
		ArgsName: "sample-id...",
	}
	configPath := cmd.Flags.String("config", "", "Settings file")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		ctx := vcontext.Background()
		p, closer, err := open(*configPath)
		if err != nil {
			return err
		}
		defer closer()
		for _, id := range argv {
			st, err := p.Store.Status(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Stdout, "%s\t%s\n", id, st) // nolint: errcheck
		}
		return nil
	})
	return cmd
}

func newCmdVariants() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "variants",
		Short:    "Print the de novo calls of a sample as VCF",
		ArgsName: "sample-id",
	}
	configPath := cmd.Flags.String("config", "", "Settings file")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("variants takes one sample ID, but got %v", argv)
		}
		return printVariants(vcontext.Background(), env.Stdout, *configPath, argv[0])
	})
	return cmd
}

func printVariants(ctx context.Context, w io.Writer, configPath, sampleID string) error {
	p, closer, err := open(configPath)
	if err != nil {
		return err
	}
	defer closer()
	cands, err := p.DeNovoVariants(ctx, sampleID)
	if err != nil {
		return err
	}
	return vcf.Write(w, cands)
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(&cmdline.Command{
		Name:     "bio-sv",
		Short:    "Structural-variant detection by local assembly and read depth",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdRun(),
			newCmdContigs(),
			newCmdCleanup(),
			newCmdStatus(),
			newCmdVariants(),
		},
	})
}
