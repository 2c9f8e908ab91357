package fastq

import (
	"bytes"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
)

func TestFromRecord(t *testing.T) {
	fwd := &sam.Record{Name: "r1", Flags: sam.Paired | sam.Read1, Seq: sam.NewSeq([]byte("AACG")), Qual: []byte{10, 20, 30, 40}}
	read := FromRecord(fwd)
	expect.EQ(t, read, Read{ID: "@r1", Seq: "AACG", Unk: "+", Qual: "+5?I"})

	rev := &sam.Record{Name: "r1", Flags: sam.Paired | sam.Read2 | sam.Reverse, Seq: sam.NewSeq([]byte("AACG")), Qual: []byte{10, 20, 30, 40}}
	read = FromRecord(rev)
	expect.EQ(t, read.Seq, "CGTT")
	expect.EQ(t, read.Qual, "I?5+")
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	expect.NoError(t, w.Write(&Read{ID: "@a", Seq: "ACGT", Unk: "+", Qual: "IIII"}))
	expect.EQ(t, buf.String(), "@a\nACGT\n+\nIIII\n")
}
