// Package placement maps assembled contigs back to the reference and turns
// their alignments into structural-variant calls.
package placement

import (
	"sort"

	"github.com/grailbio/svpipe/assembly"
)

// score is the ranking key of a contig: bases times coverage.
func score(c *assembly.Contig) float64 {
	return float64(c.NumBases()) * c.Coverage
}

// Rank returns pointers to contigs ordered by decreasing NumBases×Coverage.
// Ties keep their input order. contigs itself is not reordered.
func Rank(contigs []assembly.Contig) []*assembly.Contig {
	ranked := make([]*assembly.Contig, len(contigs))
	for i := range contigs {
		ranked[i] = &contigs[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i]) > score(ranked[j])
	})
	return ranked
}
