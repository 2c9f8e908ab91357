package evidence

import "github.com/grailbio/base/errors"

// Category is one class of SV-indicating reads. The set is closed.
type Category string

const (
	// AltAlign selects reads carrying alternative alignment hits (XA tag).
	AltAlign Category = "altalign"
	// Piled selects reads in regions of excess depth.
	Piled Category = "piled"
	// Clipped selects reads with a long, good-quality soft or hard clip.
	Clipped Category = "clipped"
	// Split selects reads whose alignment is broken across loci.
	Split Category = "split"
	// Unmapped selects unmapped reads whose mate is mapped.
	Unmapped Category = "unmapped"
	// Discordant selects pairs that violate the library geometry.
	Discordant Category = "discordant"
)

// AllCategories lists every category in the order their outputs are
// concatenated by Consolidate.
var AllCategories = []Category{AltAlign, Piled, Clipped, Split, Unmapped, Discordant}

// ParseCategory parses a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range AllCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", errors.E(errors.Invalid, "unknown read category", s)
}

// FileName returns the base name of the BAM file holding the category's
// reads, e.g. "bwa_align.split.bam".
func (c Category) FileName() string {
	return "bwa_align." + string(c) + ".bam"
}

// DatasetType names the datastore dataset registered for the category.
func (c Category) DatasetType() string {
	return "sv_indicants_" + string(c)
}

// order returns c's index in AllCategories.
func (c Category) order() int {
	for i, x := range AllCategories {
		if x == c {
			return i
		}
	}
	return len(AllCategories)
}
