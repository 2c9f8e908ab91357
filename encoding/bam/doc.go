// Package bam provides types and functions that augment the BAM and SAM
// packages in github.com/grailbio/hts: flag predicates, clip geometry, and
// whole-file readers and writers used to pass read sets between stages.
package bam
