package covdel

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/svpipe/encoding/bamprovider"
	"github.com/grailbio/svpipe/encoding/vcf"
	"github.com/grailbio/svpipe/variant"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func read(ref *sam.Reference, pos int, flags sam.Flags, mapQ byte) *sam.Record {
	return &sam.Record{
		Name:  "r",
		Ref:   ref,
		Pos:   pos,
		MapQ:  mapQ,
		Flags: flags,
		Cigar: []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 100)},
		Seq:   sam.NewSeq(bytes.Repeat([]byte{'G'}, 100)),
		Qual:  bytes.Repeat([]byte{30}, 100),
	}
}

// tiledAlignment covers chr1 with 100-base reads every 50 bases, except for
// [800, 1200) where only a duplicate and a low-quality read map.
func tiledAlignment(t *testing.T) bamprovider.Provider {
	chr1, err := sam.NewReference("chr1", "", "", 2000, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1})
	assert.NoError(t, err)
	var recs []*sam.Record
	for pos := 0; pos <= 1900; pos += 50 {
		if pos > 700 && pos < 1200 {
			continue
		}
		recs = append(recs, read(chr1, pos, 0, 60))
	}
	recs = append(recs,
		read(chr1, 900, sam.Duplicate, 60),
		read(chr1, 1000, 0, 3))
	return bamprovider.NewFakeProvider(header, recs)
}

func TestDetect(t *testing.T) {
	cands, err := Detect(context.Background(), tiledAlignment(t), "s1", DefaultOpts)
	assert.NoError(t, err)
	assert.EQ(t, len(cands), 1)
	c := cands[0]
	expect.EQ(t, c.Chrom, "chr1")
	expect.EQ(t, c.Pos, 801)
	expect.EQ(t, c.End, 1200)
	expect.EQ(t, c.Length, -400)
	expect.EQ(t, c.Method, variant.Coverage)
	expect.EQ(t, c.Type, variant.Deletion)
	expect.True(t, c.Imprecise)

	opts := DefaultOpts
	opts.MinLength = 500
	cands, err = Detect(context.Background(), tiledAlignment(t), "s1", opts)
	assert.NoError(t, err)
	expect.EQ(t, len(cands), 0)
}

func TestDetectNoCoverage(t *testing.T) {
	chr1, err := sam.NewReference("chr1", "", "", 2000, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1})
	assert.NoError(t, err)
	p := bamprovider.NewFakeProvider(header, []*sam.Record{read(chr1, 10, 0, 0)})
	_, err = Detect(context.Background(), p, "s1", DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestDetectUncoveredReference(t *testing.T) {
	chr1, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	assert.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 300, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	assert.NoError(t, err)
	var recs []*sam.Record
	// The last read runs past the end of chr1.
	for pos := 0; pos <= 950; pos += 50 {
		recs = append(recs, read(chr1, pos, 0, 60))
	}
	cands, err := Detect(context.Background(), bamprovider.NewFakeProvider(header, recs), "s1", DefaultOpts)
	assert.NoError(t, err)
	assert.EQ(t, len(cands), 1)
	expect.EQ(t, cands[0].Chrom, "chr2")
	expect.EQ(t, cands[0].Pos, 1)
	expect.EQ(t, cands[0].End, 300)
	expect.EQ(t, cands[0].Length, -300)
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	res, err := Run(ctx, tiledAlignment(t), "s1", tmpDir, DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, res.Path, filepath.Join(tmpDir, VCFFile))
	cands, err := vcf.ReadFile(ctx, res.Path, "s1")
	assert.NoError(t, err)
	assert.EQ(t, len(cands), 1)
	expect.EQ(t, cands[0].UID, res.Candidates[0].UID)
	expect.EQ(t, cands[0].Pos, 801)

	opts := DefaultOpts
	opts.MinLength = 1000
	res, err = Run(ctx, tiledAlignment(t), "s1", filepath.Join(tmpDir, "none"), opts)
	assert.NoError(t, err)
	expect.EQ(t, res.Path, "")
}
