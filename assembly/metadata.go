package assembly

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
)

// MetadataFile is the name of the assembly metadata file in the assembly
// directory.
const MetadataFile = "metadata.rio"

const (
	metadataVersionHeader = "svassemblyversion"
	metadataVersion       = "SVASM_V1"
)

// RunInfo describes one sample-level assembly. It is stored in the trailer of
// the metadata file; the contigs are its records.
type RunInfo struct {
	SampleID     string
	SampleLabel  string
	EvidencePath string
	Params       Params
	Opts         Opts
	Timestamp    time.Time
}

// WriteMetadata writes info and contigs to path.
func WriteMetadata(ctx context.Context, path string, info RunInfo, contigs []Contig) (err error) {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(metadataVersionHeader, metadataVersion)
	w.AddHeader(recordio.KeyTrailer, true)
	for i := range contigs {
		var b bytes.Buffer
		if err := gob.NewEncoder(&b).Encode(&contigs[i]); err != nil {
			return errors.E(err, "encode contig", contigs[i].Label)
		}
		w.Append(b.Bytes())
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(&info); err != nil {
		return errors.E(err, "encode assembly info")
	}
	w.SetTrailer(b.Bytes())
	return w.Finish()
}

// ReadMetadata reads back a file written by WriteMetadata.
func ReadMetadata(ctx context.Context, path string) (info RunInfo, contigs []Contig, err error) {
	recordiozstd.Init()
	in, err := file.Open(ctx, path)
	if err != nil {
		return RunInfo{}, nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	version := ""
	for _, kv := range r.Header() {
		if kv.Key == metadataVersionHeader {
			version, _ = kv.Value.(string)
		}
	}
	if version != metadataVersion {
		return RunInfo{}, nil, errors.E(errors.Invalid, path, "assembly metadata version", version)
	}
	for r.Scan() {
		var c Contig
		if err := gob.NewDecoder(bytes.NewReader(r.Get().([]byte))).Decode(&c); err != nil {
			return RunInfo{}, nil, errors.E(errors.Invalid, path, err)
		}
		contigs = append(contigs, c)
	}
	if err := r.Err(); err != nil {
		return RunInfo{}, nil, errors.E(err, path)
	}
	if err := gob.NewDecoder(bytes.NewReader(r.Trailer())).Decode(&info); err != nil {
		return RunInfo{}, nil, errors.E(errors.Invalid, path, "assembly info", err)
	}
	return info, contigs, nil
}
