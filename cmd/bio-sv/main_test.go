package main

import (
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/svpipe/external"
	"github.com/grailbio/svpipe/pipeline"
	"github.com/grailbio/svpipe/store"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestWriteResults(t *testing.T) {
	results := []pipeline.Result{
		{Sample: pipeline.Sample{ID: "s1", Label: "a"}, Status: store.Completed, NumContigs: 3, NumVariants: 2},
		{
			Sample: pipeline.Sample{ID: "s2", Label: "b"},
			Status: store.Failed,
			Err:    errors.E(&external.ToolError{Tool: "velvetg", LogPath: "/tmp/b/velvetg_error_log.txt"}, "assemble"),
		},
		{
			Sample: pipeline.Sample{ID: "s3", Label: "c"},
			Status: store.Failed,
			Err:    errors.E(errors.Invalid, "alignment has no records"),
		},
	}
	var out strings.Builder
	expect.EQ(t, writeResults(&out, results), 2)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.EQ(t, len(lines), 4)
	expect.True(t, strings.HasPrefix(lines[1], "s1"))
	assert.HasSubstr(t, lines[1], "COMPLETED")
	assert.HasSubstr(t, lines[2], "velvetg failed, see /tmp/b/velvetg_error_log.txt")
	assert.HasSubstr(t, lines[3], "invalid input")
}
