package placement

import "github.com/grailbio/base/errors"

// Opts configures placement.
type Opts struct {
	// MinMapQ is the minimum mapping quality of a usable contig alignment.
	MinMapQ int
	// MinSVLength is the smallest event reported.
	MinSVLength int
	// MinAnchor is the minimum aligned length of a segment.
	MinAnchor int
	// MaxContigs caps the number of top-ranked contigs evaluated.
	MaxContigs int
	// UseReadAlignment requires MinSupportingReads reads within Window bases
	// of a placed call.
	UseReadAlignment   bool
	MinSupportingReads int
	Window             int
	// SkipExtractedReadAlignment takes the support from the refiner's read
	// count instead of aligning the extracted reads to the reference.
	SkipExtractedReadAlignment bool
}

// DefaultOpts are the default placement settings.
var DefaultOpts = Opts{
	MinMapQ:            20,
	MinSVLength:        50,
	MinAnchor:          30,
	MaxContigs:         1000,
	UseReadAlignment:   true,
	MinSupportingReads: 2,
	Window:             500,
}

// Validate reports inconsistent settings.
func (o Opts) Validate() error {
	if o.SkipExtractedReadAlignment && !o.UseReadAlignment {
		return errors.E(errors.Invalid, "placement: skipping extracted read alignment requires read alignment to be enabled")
	}
	if o.MaxContigs <= 0 {
		return errors.E(errors.Invalid, "placement: MaxContigs must be positive")
	}
	if o.MinSVLength <= 0 {
		return errors.E(errors.Invalid, "placement: MinSVLength must be positive")
	}
	return nil
}
