// Package variant defines the structural-variant candidates produced by
// contig placement and by coverage-based deletion calling.
package variant

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/grailbio/base/errors"
)

// Method tags the algorithm that produced a candidate.
type Method string

const (
	// DeNovoAssembly marks calls made by placing an assembled contig on the
	// reference.
	DeNovoAssembly Method = "DE_NOVO_ASSEMBLY"
	// GraphWalk marks translocations inferred from contig segments that map
	// to different loci or strands.
	GraphWalk Method = "GRAPH_WALK"
	// MEGraphWalk marks translocations involving a mobile-element sequence.
	MEGraphWalk Method = "ME_GRAPH_WALK"
	// Coverage marks deletions called from depth-of-coverage drops.
	Coverage Method = "COVERAGE"
)

// DeNovoMethods lists every method whose calls belong to a pipeline run. A
// sample's de novo variants are exactly the ones tagged with these.
var DeNovoMethods = []Method{DeNovoAssembly, MEGraphWalk, GraphWalk, Coverage}

// ParseMethod parses a method tag.
func ParseMethod(s string) (Method, error) {
	for _, m := range DeNovoMethods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errors.E(errors.Invalid, "unknown calling method", s)
}

// Type is the structural-variant class, spelled as in the VCF SVTYPE field.
type Type string

const (
	Deletion      Type = "DEL"
	Insertion     Type = "INS"
	Translocation Type = "BND"
)

// Candidate is one structural-variant call.
type Candidate struct {
	// UID identifies the candidate in the datastore and in VCF ID columns.
	UID      string
	SampleID string
	Method   Method
	Type     Type
	// Chrom and Pos give the 1-based position of the event.
	Chrom string
	Pos   int
	// End is the 1-based, closed end position on Chrom. For insertions and
	// translocations End == Pos.
	End int
	// Length is the signed SVLEN: negative for deletions.
	Length int
	// MateChrom and MatePos locate the other breakend of a translocation.
	MateChrom string
	MatePos   int
	// ContigUID refers to the contig the call was derived from, if any.
	ContigUID string
	// Imprecise is set when the breakpoint or length is not fully resolved.
	Imprecise bool
}

// NewUID returns a fresh candidate identifier.
func NewUID() string { return uuid.New().String() }

// Alt returns the symbolic ALT allele for the candidate.
func (c Candidate) Alt() string {
	if c.Type == Translocation {
		return fmt.Sprintf("N[%s:%d[", c.MateChrom, c.MatePos)
	}
	return "<" + string(c.Type) + ">"
}

// String returns a short human-readable description.
func (c Candidate) String() string {
	return fmt.Sprintf("%s %s:%d len=%d (%s)", c.Type, c.Chrom, c.Pos, c.Length, c.Method)
}
