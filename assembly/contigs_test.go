package assembly

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestLabelFormat(t *testing.T) {
	expect.EQ(t, labelFormat(3), "%s_%02d")
	expect.EQ(t, labelFormat(12), "%s_%03d")
	expect.EQ(t, labelFormat(100), "%s_%04d")
}

func TestParseContigs(t *testing.T) {
	ctx := context.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	path := filepath.Join(tmpDir, ContigsFile)
	data := ">NODE_4_length_10_cov_12.500000\nACGTNNACGT\nAC\n" +
		">NODE_17_length_4_cov_3.000000\nGGGG\n"
	assert.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))

	ts := time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC)
	contigs, err := ParseContigs(ctx, path, "id1", "sampleA", ts)
	assert.NoError(t, err)
	assert.EQ(t, len(contigs), 2)

	expect.EQ(t, contigs[0].Label, "sampleA_01")
	expect.EQ(t, contigs[0].NodeNumber, 4)
	expect.EQ(t, contigs[0].Coverage, 12.5)
	expect.EQ(t, contigs[0].Sequence, "ACGTACGTAC")
	expect.EQ(t, contigs[0].NumBases(), 10)
	expect.EQ(t, contigs[0].SampleID, "id1")
	expect.True(t, contigs[0].Timestamp.Equal(ts))

	expect.EQ(t, contigs[1].Label, "sampleA_02")
	expect.EQ(t, contigs[1].NodeNumber, 17)
	expect.EQ(t, contigs[1].Coverage, 3.0)
	expect.True(t, contigs[0].UID != contigs[1].UID)
}

func TestParseContigsBadHeader(t *testing.T) {
	ctx := context.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	path := filepath.Join(tmpDir, ContigsFile)
	assert.NoError(t, ioutil.WriteFile(path, []byte(">scaffold_1\nACGT\n"), 0644))
	_, err := ParseContigs(ctx, path, "id1", "s", time.Now())
	expect.True(t, errors.Is(errors.Invalid, err))
}
