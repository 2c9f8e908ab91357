// Package config holds the settings of a pipeline run. Settings are read
// from a YAML, TOML or JSON file over the defaults; the resulting Opts value
// is passed by value to every stage and never modified.
package config

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/svpipe/assembly"
	"github.com/grailbio/svpipe/covdel"
	"github.com/grailbio/svpipe/evidence"
	"github.com/grailbio/svpipe/placement"
	"github.com/spf13/viper"
)

// Tools locates the external binaries. Empty paths mean the binary of the
// same name on $PATH.
type Tools struct {
	Velveth    string `mapstructure:"velveth"`
	Velvetg    string `mapstructure:"velvetg"`
	BWA        string `mapstructure:"bwa"`
	BWAThreads int    `mapstructure:"bwa-threads"`
}

// Opts is the root-level settings struct.
type Opts struct {
	// Dir is the root of the per-sample working directories.
	Dir string `mapstructure:"dir"`
	// Datastore is the path of the SQLite datastore.
	Datastore string `mapstructure:"datastore"`
	// Parallelism bounds the number of samples processed at once.
	Parallelism int `mapstructure:"parallelism"`
	// RefineParallelism bounds the number of contigs reassembled at once
	// within a sample.
	RefineParallelism int `mapstructure:"refine-parallelism"`

	Classify  evidence.Opts  `mapstructure:"classify"`
	Assembly  assembly.Opts  `mapstructure:"assembly"`
	Placement placement.Opts `mapstructure:"placement"`
	Coverage  covdel.Opts    `mapstructure:"coverage"`
	Tools     Tools          `mapstructure:"tools"`
}

// DefaultOpts are the settings used for keys absent from the config file.
var DefaultOpts = Opts{
	Dir:               "svpipe",
	Datastore:         "svpipe.db",
	Parallelism:       1,
	RefineParallelism: 1,
	Classify:          evidence.DefaultOpts,
	Assembly:          assembly.DefaultOpts,
	Placement:         placement.DefaultOpts,
	Coverage:          covdel.DefaultOpts,
	Tools:             Tools{BWAThreads: 1},
}

// Load reads the settings file at path over DefaultOpts. An empty path
// yields DefaultOpts. The result is validated.
func Load(path string) (Opts, error) {
	opts := DefaultOpts
	opts.Classify.Categories = append([]evidence.Category(nil), DefaultOpts.Classify.Categories...)
	if path == "" {
		return opts, opts.Validate()
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Opts{}, errors.E(errors.Invalid, "read config", path, err)
	}
	// Lists in the file replace the defaults rather than overlaying them.
	if v.IsSet("classify.categories") {
		opts.Classify.Categories = nil
	}
	if err := v.Unmarshal(&opts); err != nil {
		return Opts{}, errors.E(errors.Invalid, "decode config", path, err)
	}
	return opts, opts.Validate()
}

// Validate reports inconsistent or out-of-range settings with kind
// errors.Invalid.
func (o Opts) Validate() error {
	if o.Parallelism < 1 {
		return errors.E(errors.Invalid, "parallelism must be at least 1")
	}
	if len(o.Classify.Categories) == 0 {
		return errors.E(errors.Invalid, "no evidence categories enabled")
	}
	for _, c := range o.Classify.Categories {
		if _, err := evidence.ParseCategory(string(c)); err != nil {
			return errors.E(errors.Invalid, err)
		}
	}
	if o.Classify.Enabled(evidence.Piled) && o.Classify.PiledBinSize < 1 {
		return errors.E(errors.Invalid, "piled bin size must be positive")
	}
	if k := o.Assembly.HashLength; k < 1 || k > 31 || k%2 == 0 {
		return errors.E(errors.Invalid, "assembly hash length must be odd and at most 31")
	}
	if o.Assembly.MinContigLength < 1 {
		return errors.E(errors.Invalid, "assembly min contig length must be positive")
	}
	if f := o.Coverage.LowFraction; f <= 0 || f >= 1 {
		return errors.E(errors.Invalid, "coverage low fraction must be in (0, 1)")
	}
	return o.Placement.Validate()
}
