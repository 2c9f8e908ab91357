package evidence

import (
	"context"
	"encoding/binary"
	"sort"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/svpipe/encoding/bam"
	"github.com/grailbio/svpipe/encoding/bamprovider"
)

// CategoryTag is the aux tag listing the categories that selected a record.
// Mates added back during consolidation do not carry it.
var CategoryTag = sam.NewTag("YC")

// Input is one classifier output.
type Input struct {
	Category Category
	Path     string
}

// Set is the consolidated evidence for one sample.
type Set struct {
	// Path is the name-sorted BAM consumed by the assembler.
	Path string
	// CoordinateSortedPath holds the same records in coordinate order, for
	// browsing.
	CoordinateSortedPath string
	// Categories lists the categories that contributed at least one record,
	// in AllCategories order.
	Categories []Category
	// NumRecords is the number of records in Path.
	NumRecords int
}

// Paths derived from the stem passed to Consolidate.
const (
	suffixNoDups           = ".no_dups.sam"
	suffixWithPairsSAM     = ".with_pairs.sam"
	suffixWithPairsBAM     = ".with_pairs.bam"
	suffixFiltered         = ".with_pairs.filtered.bam"
	suffixNameSorted       = ".with_pairs.filtered.name_sorted.bam"
	suffixCoordinateSorted = ".with_pairs.filtered.coordinate_sorted.bam"
)

// EvidencePath returns the name-sorted evidence path Consolidate produces
// for stem.
func EvidencePath(stem string) string { return stem + suffixNameSorted }

// dedupKey identifies an alignment record. Two records with the same key
// are copies of the same alignment selected by different categories.
func dedupKey(r *sam.Record) uint64 {
	const keyFlags = sam.Read1 | sam.Read2 | sam.Secondary | sam.Supplementary | sam.Unmapped
	var buf [16]byte
	refID := -1
	if r.Ref != nil {
		refID = r.Ref.ID()
	}
	binary.LittleEndian.PutUint32(buf[0:], uint32(r.Flags&keyFlags))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(refID)))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(r.Pos)))
	return farm.Fingerprint64(append([]byte(r.Name), buf[:]...))
}

// Consolidate merges the classifier outputs into one evidence set. source
// is the pair-complete alignment the inputs were classified from; it
// supplies mates missing from the inputs. Intermediate and final files are
// named stem + suffix. Inputs are processed in AllCategories order, so the
// output does not depend on the order of inputs.
func Consolidate(ctx context.Context, source bamprovider.Provider, inputs []Input, opts Opts, stem string) (Set, error) {
	header, err := source.GetHeader()
	if err != nil {
		return Set{}, errors.E(errors.Invalid, "read header", err)
	}
	inputs = append([]Input(nil), inputs...)
	sort.SliceStable(inputs, func(i, j int) bool {
		return inputs[i].Category.order() < inputs[j].Category.order()
	})

	// Concatenate and deduplicate.
	var (
		recs    []*sam.Record
		tags    [][]string
		index   = map[uint64]int{}
		contrib []Category
	)
	for _, in := range inputs {
		_, catRecs, err := gbam.ReadFile(ctx, in.Path)
		if err != nil {
			return Set{}, err
		}
		if len(catRecs) > 0 {
			contrib = append(contrib, in.Category)
		}
		for _, r := range catRecs {
			k := dedupKey(r)
			if i, ok := index[k]; ok {
				tags[i] = append(tags[i], string(in.Category))
				continue
			}
			index[k] = len(recs)
			recs = append(recs, r)
			tags = append(tags, []string{string(in.Category)})
		}
	}
	for i, r := range recs {
		aux, err := sam.NewAux(CategoryTag, strings.Join(tags[i], ","))
		if err != nil {
			return Set{}, err
		}
		r.AuxFields = append(r.AuxFields, aux)
	}
	noDups := stem + suffixNoDups
	if err := gbam.WriteSAMFile(ctx, noDups, header, recs); err != nil {
		return Set{}, err
	}
	log.Printf("%s: %d unique evidence records from %d categories", noDups, len(recs), len(contrib))

	// Reintroduce mates.
	_, recs, err = gbam.ReadSAMFile(ctx, noDups)
	if err != nil {
		return Set{}, err
	}
	present := map[string]uint8{}
	for _, r := range recs {
		if _, ok := present[r.Name]; !ok {
			present[r.Name] = 0
		}
		if gbam.IsPrimary(r) {
			present[r.Name] |= 1 << uint(gbam.MateNumber(r))
		}
	}
	nAdded := 0
	err = bamprovider.ForEach(source, func(r *sam.Record) error {
		bits, ok := present[r.Name]
		if !ok || !gbam.IsPrimary(r) {
			return nil
		}
		bit := uint8(1) << uint(gbam.MateNumber(r))
		if bits&bit != 0 {
			return nil
		}
		present[r.Name] = bits | bit
		recs = append(recs, r)
		nAdded++
		return nil
	})
	if err != nil {
		return Set{}, errors.E(err, "add mates")
	}
	if err := gbam.WriteSAMFile(ctx, stem+suffixWithPairsSAM, header, recs); err != nil {
		return Set{}, err
	}
	if err := gbam.WriteFile(ctx, stem+suffixWithPairsBAM, header, recs); err != nil {
		return Set{}, err
	}
	log.Printf("%s: added %d mates", stem, nAdded)

	// Drop low-quality and incomplete pairs.
	recs = filterPairs(recs, opts.MinPairQuality)
	if err := gbam.WriteFile(ctx, stem+suffixFiltered, header, recs); err != nil {
		return Set{}, err
	}

	sortByName(recs)
	nameHeader := sortedHeader(header, sam.QueryName)
	set := Set{
		Path:                 stem + suffixNameSorted,
		CoordinateSortedPath: stem + suffixCoordinateSorted,
		Categories:           contrib,
		NumRecords:           len(recs),
	}
	if err := gbam.WriteFile(ctx, set.Path, nameHeader, recs); err != nil {
		return Set{}, err
	}
	coord := append([]*sam.Record(nil), recs...)
	sortByCoordinate(coord)
	coordHeader := sortedHeader(header, sam.Coordinate)
	if err := gbam.WriteFile(ctx, set.CoordinateSortedPath, coordHeader, coord); err != nil {
		return Set{}, err
	}
	log.Printf("%s: %d evidence records", set.Path, set.NumRecords)
	return set, nil
}

// headerVersion is the @HD VN written when the source header has none.
// Without an @HD line the sort order is not recorded.
const headerVersion = "1.4"

func sortedHeader(h *sam.Header, so sam.SortOrder) *sam.Header {
	h = h.Clone()
	if h.Version == "" {
		h.Version = headerVersion
	}
	h.SortOrder = so
	return h
}

// filterPairs keeps the records of names that have both primary mates, each
// with mean base quality at least minQual.
func filterPairs(recs []*sam.Record, minQual float64) []*sam.Record {
	type pairQual struct {
		mates uint8
		ok    bool
	}
	pairs := map[string]*pairQual{}
	for _, r := range recs {
		if !gbam.IsPrimary(r) {
			continue
		}
		pq := pairs[r.Name]
		if pq == nil {
			pq = &pairQual{ok: true}
			pairs[r.Name] = pq
		}
		pq.mates |= 1 << uint(gbam.MateNumber(r))
		if gbam.MeanQuality(r.Qual) < minQual {
			pq.ok = false
		}
	}
	out := recs[:0]
	for _, r := range recs {
		if pq := pairs[r.Name]; pq != nil && pq.ok && pq.mates&bothMates == bothMates {
			out = append(out, r)
		}
	}
	return out
}

func refID(r *sam.Record) int {
	if r.Ref == nil {
		return -1
	}
	return r.Ref.ID()
}

// sortByName orders records by name, first mate before second, primary
// records before secondary and supplementary ones.
func sortByName(recs []*sam.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if ma, mb := gbam.MateNumber(a), gbam.MateNumber(b); ma != mb {
			return ma < mb
		}
		if pa, pb := gbam.IsPrimary(a), gbam.IsPrimary(b); pa != pb {
			return pa
		}
		if ra, rb := refID(a), refID(b); ra != rb {
			return ra < rb
		}
		return a.Pos < b.Pos
	})
}

// sortByCoordinate orders records by reference and position, unmapped
// records last.
func sortByCoordinate(recs []*sam.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		ra, rb := refID(a), refID(b)
		if ra != rb {
			if ra < 0 || rb < 0 {
				return rb < 0
			}
			return ra < rb
		}
		if a.Pos != b.Pos {
			return a.Pos < b.Pos
		}
		return a.Name < b.Name
	})
}
