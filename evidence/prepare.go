package evidence

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/bamprovider"
)

const bothMates = 1<<1 | 1<<2

// PrepareSource copies src to dst, dropping every record whose read name
// does not have both a primary first and a primary second mate in src. The
// output keeps the source order. It returns the number of records dropped.
func PrepareSource(ctx context.Context, src bamprovider.Provider, dst string) (int, error) {
	header, err := src.GetHeader()
	if err != nil {
		return 0, errors.E(errors.Invalid, "read header", err)
	}
	mates := map[string]uint8{}
	err = bamprovider.ForEach(src, func(r *sam.Record) error {
		if gbam.IsPrimary(r) && gbam.IsPaired(r) {
			mates[r.Name] |= 1 << uint(gbam.MateNumber(r))
		}
		return nil
	})
	if err != nil {
		return 0, errors.E(errors.Invalid, "scan alignment", err)
	}
	w, err := gbam.NewWriter(ctx, dst, header)
	if err != nil {
		return 0, err
	}
	dropped := 0
	err = bamprovider.ForEach(src, func(r *sam.Record) error {
		if mates[r.Name]&bothMates != bothMates {
			dropped++
			return nil
		}
		return w.Write(r)
	})
	if e := w.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return 0, errors.E(err, "filter unpaired reads", dst)
	}
	log.Printf("%s: dropped %d unpaired records", dst, dropped)
	return dropped, nil
}
