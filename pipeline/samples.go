package pipeline

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
)

// sampleRow is one line of a sample sheet.
type sampleRow struct {
	ID        string `tsv:"id"`
	Label     string `tsv:"label"`
	Alignment string `tsv:"alignment"`
}

// ReadSamples parses a tab-separated sample sheet with the header columns
// "id", "label" and "alignment". Lines starting with '#' are ignored. IDs
// and labels must be unique.
func ReadSamples(ctx context.Context, path string) (samples []Sample, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(errors.Invalid, "open sample sheet", path, err)
	}
	defer file.CloseAndReport(ctx, in, &err)
	return readSamples(in.Reader(ctx), path)
}

func readSamples(r io.Reader, path string) ([]Sample, error) {
	tr := tsv.NewReader(r)
	tr.HasHeaderRow = true
	tr.UseHeaderNames = true
	tr.Comment = '#'
	var (
		samples []Sample
		ids     = map[string]bool{}
		labels  = map[string]bool{}
	)
	for {
		var row sampleRow
		if err := tr.Read(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.E(errors.Invalid, path, err)
		}
		if row.ID == "" || row.Label == "" || row.Alignment == "" {
			return nil, errors.E(errors.Invalid, path, "sample row with an empty field", row.ID)
		}
		if ids[row.ID] || labels[row.Label] {
			return nil, errors.E(errors.Invalid, path, "duplicate sample", row.ID, row.Label)
		}
		ids[row.ID], labels[row.Label] = true, true
		samples = append(samples, Sample{ID: row.ID, Label: row.Label, AlignmentPath: row.Alignment})
	}
	if len(samples) == 0 {
		return nil, errors.E(errors.Invalid, path, "no samples")
	}
	return samples, nil
}
