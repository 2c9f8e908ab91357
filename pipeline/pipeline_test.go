package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/svpipe/assembly"
	"github.com/grailbio/svpipe/config"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/fasta"
	"github.com/grailbio/svpipe/external"
	"github.com/grailbio/svpipe/placement"
	"github.com/grailbio/svpipe/store"
	"github.com/grailbio/svpipe/variant"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const (
	chromLen = 5000
	readLen  = 100
)

func newRecord(name string, ref *sam.Reference, pos int, flags sam.Flags, matePos, tlen int) *sam.Record {
	return &sam.Record{
		Name:    name,
		Ref:     ref,
		Pos:     pos,
		MapQ:    60,
		Cigar:   []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, readLen)},
		Flags:   flags,
		MateRef: ref,
		MatePos: matePos,
		TempLen: tlen,
		Seq:     sam.NewSeq(bytes.Repeat([]byte{'A'}, readLen)),
		Qual:    bytes.Repeat([]byte{30}, readLen),
	}
}

// writeAlignment writes a single-chromosome alignment of evenly tiled proper
// pairs, with no coverage over [2000, 2600), plus two discordant pairs.
func writeAlignment(t *testing.T, path string) {
	chr1, err := sam.NewReference("chr1", "", "", chromLen, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1})
	assert.NoError(t, err)
	header.SortOrder = sam.Coordinate

	const (
		r1 = sam.Paired | sam.Read1 | sam.MateReverse
		r2 = sam.Paired | sam.Read2 | sam.Reverse
	)
	var recs []*sam.Record
	for p := 0; p <= 4700; p += 50 {
		if p >= 1750 && p <= 2550 {
			continue
		}
		name := fmt.Sprintf("pair%04d", p)
		recs = append(recs,
			newRecord(name, chr1, p, r1|sam.ProperPair, p+200, 300),
			newRecord(name, chr1, p+200, r2|sam.ProperPair, p, -300))
	}
	for _, d := range []struct {
		name      string
		pos, mate int
	}{{"disc1", 1000, 4000}, {"disc2", 3000, 4500}} {
		tlen := d.mate + readLen - d.pos
		recs = append(recs,
			newRecord(d.name, chr1, d.pos, r1, d.mate, tlen),
			newRecord(d.name, chr1, d.mate, r2, d.pos, -tlen))
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Pos < recs[j].Pos })
	assert.NoError(t, gbam.WriteFile(context.Background(), path, header, recs))
}

// fakeVelvet assembles two contigs for a sample and one for each contig
// during refinement. Samples labelled "bad" fail to assemble.
type fakeVelvet struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeVelvet) Assemble(_ context.Context, dir, reads string, _ assembly.Params) error {
	key := filepath.Base(dir)
	if key == "assembly" {
		key = filepath.Base(filepath.Dir(dir))
	}
	f.mu.Lock()
	f.calls[key]++
	f.mu.Unlock()
	if key == "bad" {
		return &external.ToolError{Tool: "velveth", Args: []string{"velveth", dir}, Err: errors.New("exit status 1")}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	var recs []fasta.Record
	if filepath.Base(dir) == "assembly" {
		recs = []fasta.Record{
			{Name: "NODE_1_length_300_cov_20.000000", Seq: strings.Repeat("ACGT", 75)},
			{Name: "NODE_2_length_300_cov_10.000000", Seq: strings.Repeat("TTGCA", 60)},
		}
	} else {
		recs = []fasta.Record{{Name: "NODE_1_length_300_cov_5.000000", Seq: strings.Repeat("GATC", 75)}}
	}
	return fasta.WriteFile(context.Background(), filepath.Join(dir, assembly.ContigsFile), recs)
}

func (f *fakeVelvet) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// fakeAligner maps every read to the contig during refinement. When
// placing, it splits the first contig around a 200 base deletion on chr1 and
// leaves the others unmapped.
type fakeAligner struct{}

func (fakeAligner) Index(context.Context, string) error { return nil }

func (fakeAligner) Align(ctx context.Context, ref, reads string, interleaved bool, out string) error {
	if filepath.Base(reads) == "contigs_to_place.fa" {
		return placeContigs(ctx, reads, out)
	}
	names, err := fastqNames(reads)
	if err != nil {
		return err
	}
	target, err := sam.NewReference(filepath.Base(filepath.Dir(ref)), "", "", 300, nil, nil)
	if err != nil {
		return err
	}
	header, err := sam.NewHeader(nil, []*sam.Reference{target})
	if err != nil {
		return err
	}
	var recs []*sam.Record
	for _, name := range names {
		recs = append(recs, &sam.Record{
			Name:  name,
			Ref:   target,
			Pos:   10,
			MapQ:  60,
			Cigar: []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 4)},
			Seq:   sam.NewSeq([]byte("ACGT")),
			Qual:  bytes.Repeat([]byte{30}, 4),
		})
	}
	return gbam.WriteSAMFile(ctx, out, header, recs)
}

func fastqNames(path string) ([]string, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close() // nolint: errcheck
	var names []string
	sc := bufio.NewScanner(in)
	for i := 0; sc.Scan(); i++ {
		if i%4 == 0 {
			names = append(names, strings.TrimPrefix(sc.Text(), "@"))
		}
	}
	return names, sc.Err()
}

func placeContigs(ctx context.Context, query, out string) error {
	contigs, err := fasta.ReadFile(ctx, query)
	if err != nil {
		return err
	}
	chr1, err := sam.NewReference("chr1", "", "", chromLen, nil, nil)
	if err != nil {
		return err
	}
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1})
	if err != nil {
		return err
	}
	var recs []*sam.Record
	for i, c := range contigs {
		if i > 0 {
			recs = append(recs, &sam.Record{Name: c.Name, Pos: -1, MatePos: -1, Flags: sam.Unmapped,
				Seq: sam.NewSeq([]byte(c.Seq)), Qual: bytes.Repeat([]byte{30}, len(c.Seq))})
			continue
		}
		primary, err := sam.ParseCigar([]byte("150M150S"))
		if err != nil {
			return err
		}
		supp, err := sam.ParseCigar([]byte("150H150M"))
		if err != nil {
			return err
		}
		recs = append(recs,
			&sam.Record{Name: c.Name, Ref: chr1, Pos: 1000, MapQ: 60, Cigar: primary, MatePos: -1,
				Seq: sam.NewSeq(bytes.Repeat([]byte{'A'}, 300)), Qual: bytes.Repeat([]byte{30}, 300)},
			&sam.Record{Name: c.Name, Ref: chr1, Pos: 1350, MapQ: 60, Cigar: supp, MatePos: -1, Flags: sam.Supplementary,
				Seq: sam.NewSeq(bytes.Repeat([]byte{'A'}, 150)), Qual: bytes.Repeat([]byte{30}, 150)})
	}
	return gbam.WriteSAMFile(ctx, out, header, recs)
}

type testEnv struct {
	ctx      context.Context
	dir      string
	pipeline *Pipeline
	velvet   *fakeVelvet
	ref      placement.Reference
	samples  []Sample
}

func newTestEnv(t *testing.T, dir string) *testEnv {
	alignment := filepath.Join(dir, "sample.bam")
	writeAlignment(t, alignment)
	db, err := store.Open(filepath.Join(dir, "sv.db"))
	assert.NoError(t, err)

	opts := config.DefaultOpts
	opts.Dir = filepath.Join(dir, "work")
	opts.Placement.SkipExtractedReadAlignment = true
	opts.Placement.MinSupportingReads = 1
	velvet := &fakeVelvet{calls: map[string]int{}}
	return &testEnv{
		ctx: context.Background(),
		dir: dir,
		pipeline: &Pipeline{
			Store:     db,
			Assembler: velvet,
			Aligner:   fakeAligner{},
			Opts:      opts,
		},
		velvet: velvet,
		ref:    placement.Reference{FASTA: filepath.Join(dir, "ref.fa")},
		samples: []Sample{
			{ID: "sample-good", Label: "good", AlignmentPath: alignment},
			{ID: "sample-bad", Label: "bad", AlignmentPath: alignment},
		},
	}
}

// callSummary describes calls without their UIDs, which change between
// runs.
func callSummary(cands []variant.Candidate) []string {
	var s []string
	for _, c := range cands {
		s = append(s, fmt.Sprintf("%s %s %s:%d-%d %d", c.Method, c.Type, c.Chrom, c.Pos, c.End, c.Length))
	}
	sort.Strings(s)
	return s
}

func TestRun(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	env := newTestEnv(t, tmpDir)
	defer env.pipeline.Store.Close() // nolint: errcheck
	ctx, p := env.ctx, env.pipeline

	results, err := p.Run(ctx, env.ref, env.samples)
	assert.NoError(t, err)
	expect.EQ(t, len(results), 2)

	good := results[0]
	expect.NoError(t, good.Err)
	expect.EQ(t, good.Status, store.Completed)
	expect.EQ(t, good.NumContigs, 2)
	expect.EQ(t, good.NumVariants, 2)

	vars, err := p.DeNovoVariants(ctx, "sample-good")
	assert.NoError(t, err)
	expect.EQ(t, callSummary(vars), []string{
		"COVERAGE DEL chr1:2001-2600 -600",
		"DE_NOVO_ASSEMBLY DEL chr1:1151-1350 -200",
	})

	contigs, err := p.Store.Contigs(ctx, "sample-good")
	assert.NoError(t, err)
	expect.EQ(t, len(contigs), 2)
	placed := contigs[0]
	expect.EQ(t, placed.Label, "good_01")
	expect.True(t, placed.Metadata.IsPlaceable)
	expect.True(t, placed.Metadata.Reassembled)
	expect.EQ(t, placed.Sequence, strings.Repeat("GATC", 75))
	expect.EQ(t, placed.Metadata.SupportingReads, 4)
	expect.EQ(t, len(placed.Metadata.Variants), 1)
	expect.False(t, contigs[1].Metadata.IsPlaceable)
	expect.EQ(t, contigs[1].Metadata.Placement, "unmapped")
	for _, v := range vars {
		if v.Method == variant.DeNovoAssembly {
			expect.EQ(t, v.ContigUID, placed.UID)
			expect.EQ(t, placed.Metadata.Variants[0], v.UID)
		} else {
			expect.EQ(t, v.ContigUID, "")
		}
	}

	tracks, err := p.Store.Tracks(ctx, "sample-good")
	assert.NoError(t, err)
	expect.EQ(t, len(tracks), 3)

	bad := results[1]
	expect.EQ(t, bad.Status, store.Failed)
	toolErr, ok := AsToolError(bad.Err)
	expect.True(t, ok)
	if ok {
		expect.EQ(t, toolErr.Tool, "velveth")
	}
	vars, err = p.DeNovoVariants(ctx, "sample-bad")
	assert.NoError(t, err)
	expect.EQ(t, callSummary(vars), []string{"COVERAGE DEL chr1:2001-2600 -600"})
	contigs, err = p.Store.Contigs(ctx, "sample-bad")
	assert.NoError(t, err)
	expect.EQ(t, len(contigs), 0)
}

// statusLog records the statuses a store accepts, per sample.
type statusLog struct {
	store.Store

	mu      sync.Mutex
	history map[string][]store.Status
}

func (s *statusLog) SetStatus(ctx context.Context, sampleID string, next store.Status) error {
	if err := s.Store.SetStatus(ctx, sampleID, next); err != nil {
		return err
	}
	s.mu.Lock()
	s.history[sampleID] = append(s.history[sampleID], next)
	s.mu.Unlock()
	return nil
}

func TestRunStatusHistory(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	env := newTestEnv(t, tmpDir)
	defer env.pipeline.Store.Close() // nolint: errcheck
	statuses := &statusLog{Store: env.pipeline.Store, history: map[string][]store.Status{}}
	env.pipeline.Store = statuses
	ctx, p := env.ctx, env.pipeline

	_, err := p.Run(ctx, env.ref, env.samples)
	assert.NoError(t, err)
	expect.EQ(t, statuses.history["sample-good"], []store.Status{
		store.Assembling, store.WaitingToParse, store.ParsingVariants, store.Completed})
	expect.EQ(t, statuses.history["sample-bad"], []store.Status{store.Assembling, store.Failed})

	// No read passes the mapping quality filter, so coverage detection
	// fails while assembly succeeds.
	statuses.history = map[string][]store.Status{}
	p.Opts.Coverage.MinMapQ = 61
	results, err := p.Run(ctx, env.ref, env.samples[:1])
	assert.NoError(t, err)
	expect.EQ(t, results[0].Status, store.Failed)
	expect.True(t, IsInputError(results[0].Err))
	expect.EQ(t, statuses.history["sample-good"], []store.Status{store.Assembling, store.Failed})
	vars, err := p.DeNovoVariants(ctx, "sample-good")
	assert.NoError(t, err)
	expect.EQ(t, callSummary(vars), []string{"DE_NOVO_ASSEMBLY DEL chr1:1151-1350 -200"})
}

func TestRunInvalidInput(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	env := newTestEnv(t, tmpDir)
	defer env.pipeline.Store.Close() // nolint: errcheck
	ctx, p := env.ctx, env.pipeline

	chr1, err := sam.NewReference("chr1", "", "", chromLen, nil, nil)
	assert.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1})
	assert.NoError(t, err)
	empty := filepath.Join(tmpDir, "empty.bam")
	assert.NoError(t, gbam.WriteFile(ctx, empty, header, nil))

	results, err := p.Run(ctx, env.ref, []Sample{{ID: "sample-empty", Label: "empty", AlignmentPath: empty}})
	assert.NoError(t, err)
	expect.EQ(t, results[0].Status, store.Failed)
	expect.True(t, IsInputError(results[0].Err))
	expect.EQ(t, env.velvet.count("empty"), 0)
}

func TestGenerateContigs(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	env := newTestEnv(t, tmpDir)
	defer env.pipeline.Store.Close() // nolint: errcheck
	ctx, p, s := env.ctx, env.pipeline, env.samples[0]

	first, err := p.GenerateContigs(ctx, s, false)
	assert.NoError(t, err)
	expect.EQ(t, len(first), 2)
	expect.EQ(t, first[0].Label, "good_01")
	expect.EQ(t, first[0].Coverage, 20.0)
	expect.EQ(t, first[0].Sequence, strings.Repeat("ACGT", 75))

	second, err := p.GenerateContigs(ctx, s, false)
	assert.NoError(t, err)
	expect.EQ(t, len(second), len(first))
	for i := range second {
		expect.EQ(t, second[i].UID, first[i].UID)
		expect.EQ(t, second[i].Label, first[i].Label)
	}
	expect.EQ(t, env.velvet.count("good"), 1)

	stored, err := p.Store.Contigs(ctx, s.ID)
	assert.NoError(t, err)
	expect.EQ(t, len(stored), 2)
	expect.EQ(t, stored[0].UID, first[0].UID)

	third, err := p.GenerateContigs(ctx, s, true)
	assert.NoError(t, err)
	expect.EQ(t, env.velvet.count("good"), 2)
	expect.EQ(t, len(third), 2)
	expect.True(t, third[0].UID != first[0].UID)
	expect.EQ(t, third[0].Sequence, first[0].Sequence)
}

func TestCleanup(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	env := newTestEnv(t, tmpDir)
	defer env.pipeline.Store.Close() // nolint: errcheck
	ctx, p, s := env.ctx, env.pipeline, env.samples[0]

	// Never run.
	assert.NoError(t, p.Cleanup(ctx, s))

	_, err := p.Run(ctx, env.ref, env.samples[:1])
	assert.NoError(t, err)
	firstVars, err := p.DeNovoVariants(ctx, s.ID)
	assert.NoError(t, err)
	firstContigs, err := p.Store.Contigs(ctx, s.ID)
	assert.NoError(t, err)
	datasets, err := p.Store.Datasets(ctx, s.ID)
	assert.NoError(t, err)
	expect.True(t, len(datasets) > 0)

	assert.NoError(t, p.Cleanup(ctx, s))
	vars, err := p.DeNovoVariants(ctx, s.ID)
	assert.NoError(t, err)
	expect.EQ(t, len(vars), 0)
	contigs, err := p.Store.Contigs(ctx, s.ID)
	assert.NoError(t, err)
	expect.EQ(t, len(contigs), 0)
	left, err := p.Store.Datasets(ctx, s.ID)
	assert.NoError(t, err)
	expect.EQ(t, len(left), 0)
	tracks, err := p.Store.Tracks(ctx, s.ID)
	assert.NoError(t, err)
	expect.EQ(t, len(tracks), 0)
	for _, d := range datasets {
		_, err := os.Stat(d.Path)
		expect.True(t, os.IsNotExist(err), d.Path)
	}
	_, err = os.Stat(p.sampleDir(s))
	expect.True(t, os.IsNotExist(err))
	e, err := p.Store.Stage(ctx, s.ID, stageAssemble)
	assert.NoError(t, err)
	expect.EQ(t, e.State, store.NotStarted)

	// A rerun after cleanup produces the same calls and contigs.
	results, err := p.Run(ctx, env.ref, env.samples[:1])
	assert.NoError(t, err)
	expect.EQ(t, results[0].Status, store.Completed)
	vars, err = p.DeNovoVariants(ctx, s.ID)
	assert.NoError(t, err)
	expect.EQ(t, callSummary(vars), callSummary(firstVars))
	contigs, err = p.Store.Contigs(ctx, s.ID)
	assert.NoError(t, err)
	expect.EQ(t, len(contigs), len(firstContigs))
	for i := range contigs {
		expect.EQ(t, contigs[i].Label, firstContigs[i].Label)
		expect.EQ(t, contigs[i].Sequence, firstContigs[i].Sequence)
	}
}
