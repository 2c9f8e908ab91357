package pipeline

import (
	"github.com/grailbio/svpipe/evidence"
	"github.com/grailbio/svpipe/variant"
)

// Dataset types registered by the pipeline, in addition to the per-category
// evidence types of evidence.Category.DatasetType.
const (
	DatasetNoUnpaired       = "bwa_align_no_unpaired"
	DatasetEvidence         = "bwa_sv_indicants"
	DatasetEvidenceSorted   = "bwa_sv_indicants_coordinate_sorted"
	DatasetAssemblyMetadata = "de_novo_assembly_metadata"
)

// vcfDatasets maps each calling method to the dataset type of its VCF.
var vcfDatasets = map[variant.Method]string{
	variant.DeNovoAssembly: "vcf_de_novo_assembled_contigs",
	variant.GraphWalk:      "vcf_de_novo_assembly_translocations",
	variant.MEGraphWalk:    "vcf_de_novo_assembly_me_translocations",
	variant.Coverage:       "vcf_cov_detect_deletion",
}

// VCFDatasetTypes returns the dataset types of the candidate VCFs in
// variant.DeNovoMethods order.
func VCFDatasetTypes() []string {
	types := make([]string, len(variant.DeNovoMethods))
	for i, m := range variant.DeNovoMethods {
		types[i] = vcfDatasets[m]
	}
	return types
}

// datasetTypes lists every dataset type the pipeline owns.
func datasetTypes() []string {
	types := []string{DatasetNoUnpaired, DatasetEvidence, DatasetEvidenceSorted, DatasetAssemblyMetadata}
	for _, c := range evidence.AllCategories {
		types = append(types, c.DatasetType())
	}
	return append(types, VCFDatasetTypes()...)
}
