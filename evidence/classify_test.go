package evidence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/bamprovider"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestClassify(t *testing.T) {
	ctx := context.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	p := bamprovider.NewFakeProvider(header, testAlignment(t))
	params := Params{Opts: DefaultOpts, MaxInsert: 1000, MeanDepth: 1}
	tests := []struct {
		cat  Category
		want []string
	}{
		{Clipped, []string{"clip", "hardclip", "lowq", "split"}},
		{Split, []string{"split"}},
		{AltAlign, []string{"alt"}},
		{Unmapped, []string{"unmapped"}},
		{Discordant, []string{"hardclip", "hardclip", "discordant", "discordant"}},
	}
	for _, test := range tests {
		dst := filepath.Join(tmpDir, test.cat.FileName())
		n, err := Classify(ctx, p, test.cat, params, dst)
		assert.NoError(t, err)
		expect.EQ(t, n, len(test.want), "category %s", test.cat)
		_, recs, err := gbam.ReadFile(ctx, dst)
		assert.NoError(t, err)
		expect.EQ(t, names(recs), test.want, "category %s", test.cat)
	}
}

func TestClassifyPiled(t *testing.T) {
	ctx := context.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	var recs []*sam.Record
	for i := 0; i < 10; i++ {
		recs = append(recs, newRecord("pile", chr1, 100, r1f, chr1, 100, c100M, 30))
	}
	recs = append(recs, newRecord("lonely", chr1, 5000, r1f, chr1, 5000, c100M, 30))
	p := bamprovider.NewFakeProvider(header, recs)

	opts := DefaultOpts
	opts.PiledDepthFactor = 3
	params := Params{Opts: opts, MaxInsert: 1000, MeanDepth: 2}
	dst := filepath.Join(tmpDir, Piled.FileName())
	n, err := Classify(ctx, p, Piled, params, dst)
	assert.NoError(t, err)
	expect.EQ(t, n, 10)

	// The bin size comes from the options only.
	params.PiledBinSize = 0
	_, err = Classify(ctx, p, Piled, params, dst)
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestPrepareSource(t *testing.T) {
	ctx := context.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	recs := testAlignment(t)
	dst := filepath.Join(tmpDir, "bwa_align.no_unpaired.bam")
	dropped, err := PrepareSource(ctx, bamprovider.NewFakeProvider(header, recs), dst)
	assert.NoError(t, err)
	expect.EQ(t, dropped, 1)
	_, got, err := gbam.ReadFile(ctx, dst)
	assert.NoError(t, err)
	expect.EQ(t, len(got), len(recs)-1)
	for _, r := range got {
		expect.NEQ(t, r.Name, "orphan")
	}
}

func TestComputeStats(t *testing.T) {
	stats, err := ComputeStats(bamprovider.NewFakeProvider(header, testAlignment(t)))
	assert.NoError(t, err)
	expect.EQ(t, stats.InsertMean, 300.0)
	expect.EQ(t, stats.GenomeLength, 20000)
	expect.True(t, stats.InsertSD > 14 && stats.InsertSD < 15)
	expect.True(t, stats.AvgCoverage > 0)

	params := NewParams(DefaultOpts, stats)
	expect.EQ(t, params.MaxInsert, 371)

	_, err = ComputeStats(bamprovider.NewFakeProvider(header, nil))
	expect.NotNil(t, err)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("split")
	assert.NoError(t, err)
	expect.EQ(t, c, Split)
	_, err = ParseCategory("bogus")
	expect.True(t, errors.Is(errors.Invalid, err))
	expect.EQ(t, Discordant.FileName(), "bwa_align.discordant.bam")
}
