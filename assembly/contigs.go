package assembly

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svpipe/encoding/fasta"
	"github.com/grailbio/svpipe/variant"
)

var nodePattern = regexp.MustCompile(`^NODE_(\d+)_`)

// parseHeader extracts the node number and coverage from a Velvet contig
// name such as "NODE_12_length_345_cov_17.250000".
func parseHeader(name string) (node int, cov float64, err error) {
	m := nodePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, errors.E(errors.Invalid, "contig name does not start with NODE_<n>_", name)
	}
	if node, err = strconv.Atoi(m[1]); err != nil {
		return 0, 0, errors.E(errors.Invalid, name, err)
	}
	if cov, err = strconv.ParseFloat(name[strings.LastIndexByte(name, '_')+1:], 64); err != nil {
		return 0, 0, errors.E(errors.Invalid, "contig coverage", name, err)
	}
	return node, cov, nil
}

// labelFormat returns the Printf format for the labels of n contigs. Ordinals
// are zero-padded to one digit more than n has.
func labelFormat(n int) string {
	return "%s_%0" + strconv.Itoa(len(strconv.Itoa(n))+1) + "d"
}

// ParseContigs reads the assembler output at path. Contigs are labelled
// <sampleLabel>_<ordinal>, ordinals counting from 1 in file order. Gap
// markers are removed from the sequence. Timestamp is set to ts; the other
// ownership fields are left to the caller.
func ParseContigs(ctx context.Context, path, sampleID, sampleLabel string, ts time.Time) ([]Contig, error) {
	recs, err := fasta.ReadFile(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Invalid, "read contigs", path, err)
	}
	format := labelFormat(len(recs))
	contigs := make([]Contig, 0, len(recs))
	for i, rec := range recs {
		node, cov, err := parseHeader(rec.Name)
		if err != nil {
			return nil, errors.E(err, path)
		}
		contigs = append(contigs, Contig{
			UID:        variant.NewUID(),
			Label:      fmt.Sprintf(format, sampleLabel, i+1),
			SampleID:   sampleID,
			NodeNumber: node,
			Coverage:   cov,
			Sequence:   strings.Replace(rec.Seq, "N", "", -1),
			Timestamp:  ts,
		})
	}
	return contigs, nil
}
