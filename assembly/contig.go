package assembly

import "time"

// Contig is an assembled sequence owned by one sample run.
type Contig struct {
	// UID is unique across samples and runs.
	UID string
	// Label is the sample label followed by a zero-padded ordinal, e.g.
	// "sampleA_007". It is unique within a run.
	Label    string
	SampleID string
	// NodeNumber is the assembler's graph node the contig came from.
	NodeNumber int
	// Coverage is the k-mer coverage the assembler reported.
	Coverage float64
	// Sequence is gap-free. The refiner may replace it.
	Sequence string
	// Timestamp records when the assembly that produced the contig ran.
	Timestamp time.Time
	// EvidencePath is the evidence BAM the contig was assembled from.
	EvidencePath string
	Metadata     Metadata
}

// Metadata holds facts added to a contig after creation.
type Metadata struct {
	// AssemblyDir is the directory of the sample-level assembly.
	AssemblyDir string
	// Dir is the contig's own working directory.
	Dir string
	// FastaPath is the contig's final single-record FASTA.
	FastaPath string
	// ReadsPath is the BAM of reads that aligned to the contig.
	ReadsPath string
	// SupportingReads is the number of reads in ReadsPath.
	SupportingReads int
	// Reassembled is set when isolated reassembly replaced the sequence.
	Reassembled bool
	// IsPlaceable is set when placement produced a variant for the contig.
	IsPlaceable bool
	// Placement describes the placement outcome.
	Placement string
	// Variants lists the UIDs of the calls derived from the contig.
	Variants []string
}

// NumBases returns the length of the contig sequence.
func (c *Contig) NumBases() int { return len(c.Sequence) }
