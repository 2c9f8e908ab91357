// Package bamprovider provides sequential access to an alignment file.
//
// The Provider is an interface for reading a BAM file from start to end any
// number of times. The read classifiers, the coverage detector and the
// sample statistics all scan the same source alignment through it.
package bamprovider
