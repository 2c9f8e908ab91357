// Package vcf serializes structural-variant candidates as VCF 4.2. Only the
// eight fixed columns are used; per-call metadata travels in INFO.
package vcf

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/svpipe/variant"
)

// INFO keys.
const (
	infoSVType    = "SVTYPE"
	infoSVLen     = "SVLEN"
	infoEnd       = "END"
	infoMethod    = "METHOD"
	infoContigUID = "INFO_contig_uid"
	infoImprecise = "IMPRECISE"
)

var metaLines = []string{
	"##fileformat=VCFv4.2",
	"##source=svpipe",
	`##INFO=<ID=SVTYPE,Number=1,Type=String,Description="Type of structural variant">`,
	`##INFO=<ID=SVLEN,Number=1,Type=Integer,Description="Difference in length between REF and ALT alleles">`,
	`##INFO=<ID=END,Number=1,Type=Integer,Description="End position of the variant">`,
	`##INFO=<ID=METHOD,Number=1,Type=String,Description="Calling method">`,
	`##INFO=<ID=INFO_contig_uid,Number=1,Type=String,Description="Contig the call was derived from">`,
	`##INFO=<ID=IMPRECISE,Number=0,Type=Flag,Description="Imprecise structural variation">`,
	`##ALT=<ID=DEL,Description="Deletion">`,
	`##ALT=<ID=INS,Description="Insertion">`,
}

// row is one data line. The tag on the first field makes RowWriter emit the
// standard "#CHROM ..." header line.
type row struct {
	Chrom  string `tsv:"#CHROM"`
	Pos    int64  `tsv:"POS"`
	ID     string `tsv:"ID"`
	Ref    string `tsv:"REF"`
	Alt    string `tsv:"ALT"`
	Qual   string `tsv:"QUAL"`
	Filter string `tsv:"FILTER"`
	Info   string `tsv:"INFO"`
}

func toRow(c variant.Candidate) row {
	info := []string{
		infoSVType + "=" + string(c.Type),
		infoMethod + "=" + string(c.Method),
	}
	if c.Type != variant.Translocation {
		info = append(info,
			infoSVLen+"="+strconv.Itoa(c.Length),
			infoEnd+"="+strconv.Itoa(c.End))
	}
	if c.ContigUID != "" {
		info = append(info, infoContigUID+"="+c.ContigUID)
	}
	if c.Imprecise {
		info = append(info, infoImprecise)
	}
	return row{
		Chrom:  c.Chrom,
		Pos:    int64(c.Pos),
		ID:     c.UID,
		Ref:    "N",
		Alt:    c.Alt(),
		Qual:   ".",
		Filter: "PASS",
		Info:   strings.Join(info, ";"),
	}
}

func fromRow(r row, sampleID string) (variant.Candidate, error) {
	c := variant.Candidate{
		UID:      r.ID,
		SampleID: sampleID,
		Chrom:    r.Chrom,
		Pos:      int(r.Pos),
		End:      int(r.Pos),
	}
	if c.UID == "." || c.UID == "" {
		c.UID = variant.NewUID()
	}
	for _, kv := range strings.Split(r.Info, ";") {
		key, val := kv, ""
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key, val = kv[:i], kv[i+1:]
		}
		var err error
		switch key {
		case infoSVType:
			c.Type = variant.Type(val)
		case infoMethod:
			c.Method, err = variant.ParseMethod(val)
		case infoSVLen:
			c.Length, err = strconv.Atoi(val)
		case infoEnd:
			c.End, err = strconv.Atoi(val)
		case infoContigUID:
			c.ContigUID = val
		case infoImprecise:
			c.Imprecise = true
		}
		if err != nil {
			return c, errors.E(errors.Invalid, fmt.Sprintf("%s:%d: INFO %s", r.Chrom, r.Pos, key), err)
		}
	}
	if c.Type == variant.Translocation {
		c.MateChrom, c.MatePos = parseBreakend(r.Alt)
	}
	return c, nil
}

// parseBreakend extracts chrom and pos from an ALT such as "N[chr2:100[".
func parseBreakend(alt string) (string, int) {
	start := strings.IndexAny(alt, "[]")
	end := strings.LastIndexAny(alt, "[]")
	if start < 0 || end <= start {
		return "", 0
	}
	loc := alt[start+1 : end]
	i := strings.LastIndexByte(loc, ':')
	if i < 0 {
		return "", 0
	}
	pos, err := strconv.Atoi(loc[i+1:])
	if err != nil {
		return "", 0
	}
	return loc[:i], pos
}

// Write writes cands to w, in order, preceded by the VCF header.
func Write(w io.Writer, cands []variant.Candidate) error {
	for _, line := range metaLines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	rw := tsv.NewRowWriter(w)
	for _, c := range cands {
		r := toRow(c)
		if err := rw.Write(&r); err != nil {
			return err
		}
	}
	return rw.Flush()
}

// Read parses every data line of r into a candidate owned by sampleID.
func Read(r io.Reader, sampleID string) ([]variant.Candidate, error) {
	tr := tsv.NewReader(r)
	tr.Comment = '#'
	var cands []variant.Candidate
	for {
		var line row
		if err := tr.Read(&line); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(errors.Invalid, "malformed VCF line", err)
		}
		c, err := fromRow(line, sampleID)
		if err != nil {
			return nil, err
		}
		cands = append(cands, c)
	}
	return cands, nil
}

// WriteFile creates path and writes cands to it.
func WriteFile(ctx context.Context, path string, cands []variant.Candidate) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	return Write(out.Writer(ctx), cands)
}

// ReadFile parses the VCF file at path.
func ReadFile(ctx context.Context, path, sampleID string) (cands []variant.Candidate, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	cands, err = Read(in.Reader(ctx), sampleID)
	if err != nil {
		return nil, errors.E(err, path)
	}
	return cands, nil
}
