package assembly

import (
	"sort"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svpipe/evidence"
)

// Option groups accepted in Opts.Overrides.
const (
	GroupVelveth = "velveth"
	GroupVelvetg = "velvetg"
)

// Opts configures the local assembler.
type Opts struct {
	// HashLength is the k-mer length. Velvet requires it to be odd.
	HashLength int
	// MinContigLength drops shorter contigs.
	MinContigLength int
	// ExpCovFraction and CovCutoffFraction scale the k-mer coverage
	// estimate into velvetg's -exp_cov and -cov_cutoff.
	ExpCovFraction    float64
	CovCutoffFraction float64
	// Overrides replaces computed tool options key by key, per group
	// ("velveth", "velvetg"). Keys without a dedicated Params field are
	// passed to the tool as "-key value". Scaffolding is always off and
	// cannot be overridden.
	Overrides map[string]map[string]string
}

// DefaultOpts are the default assembler settings.
var DefaultOpts = Opts{
	HashLength:        21,
	MinContigLength:   200,
	ExpCovFraction:    0.8,
	CovCutoffFraction: 0.2,
}

// Params are the assembler parameters of one sample run. They are computed
// once by NewParams and never modified.
type Params struct {
	HashLength      int
	InsLength       float64
	InsLengthSD     float64
	ExpCov          float64
	CovCutoff       float64
	MinContigLength int
	ReadTracking    bool
	// VelvethExtra and VelvetgExtra are extra "-key", "value" arguments,
	// sorted by key.
	VelvethExtra []string
	VelvetgExtra []string
}

// KmerCoverage converts the per-base read coverage c into k-mer coverage for
// mean insert length l and hash length k:
//
//	c * (l - k + 1) / l
func KmerCoverage(c, l float64, k int) float64 {
	return c * (l - float64(k) + 1) / l
}

// NewParams derives the assembly parameters from the sample statistics and
// applies opts.Overrides on top.
func NewParams(opts Opts, stats evidence.Stats) (Params, error) {
	if stats.InsertMean <= 0 {
		return Params{}, errors.E(errors.Invalid, "assembly parameters need a positive mean insert length")
	}
	kc := KmerCoverage(stats.AvgCoverage, stats.InsertMean, opts.HashLength)
	p := Params{
		HashLength:      opts.HashLength,
		InsLength:       stats.InsertMean,
		InsLengthSD:     stats.InsertSD,
		ExpCov:          kc * opts.ExpCovFraction,
		CovCutoff:       kc * opts.CovCutoffFraction,
		MinContigLength: opts.MinContigLength,
		ReadTracking:    true,
	}
	if err := p.applyOverrides(opts.Overrides); err != nil {
		return Params{}, err
	}
	return p, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Params) applyOverrides(overrides map[string]map[string]string) error {
	for group := range overrides {
		if group != GroupVelveth && group != GroupVelvetg {
			return errors.E(errors.Invalid, "unknown assembler option group", group)
		}
	}
	h := overrides[GroupVelveth]
	for _, key := range sortedKeys(h) {
		val := h[key]
		if key == "hash_length" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return errors.E(errors.Invalid, "velveth hash_length", err)
			}
			p.HashLength = n
			continue
		}
		p.VelvethExtra = append(p.VelvethExtra, "-"+key, val)
	}
	g := overrides[GroupVelvetg]
	for _, key := range sortedKeys(g) {
		val := g[key]
		var err error
		switch key {
		case "ins_length":
			p.InsLength, err = strconv.ParseFloat(val, 64)
		case "ins_length_sd":
			p.InsLengthSD, err = strconv.ParseFloat(val, 64)
		case "exp_cov":
			p.ExpCov, err = strconv.ParseFloat(val, 64)
		case "cov_cutoff":
			p.CovCutoff, err = strconv.ParseFloat(val, 64)
		case "min_contig_lgth":
			p.MinContigLength, err = strconv.Atoi(val)
		case "scaffolding":
			return errors.E(errors.Invalid, "velvetg scaffolding cannot be overridden")
		case "read_trkg":
			p.ReadTracking = val == "yes"
		default:
			p.VelvetgExtra = append(p.VelvetgExtra, "-"+key, val)
		}
		if err != nil {
			return errors.E(errors.Invalid, "velvetg "+key, err)
		}
	}
	return nil
}
