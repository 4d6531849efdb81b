// Package io provides input utilities for tabular data ingestion.
package io

// Reader is the interface for reading a complete tabular source.
type Reader interface {
	// Read returns the header and every record of the source.
	Read() (*RawTable, error)

	// Close releases resources.
	Close() error
}

// RawTable is an untyped table exactly as read from its source.
// Header names are not trimmed and cells are not parsed.
type RawTable struct {
	Header  []string
	Records [][]string
}

// NumRows returns the number of data records.
func (t *RawTable) NumRows() int {
	return len(t.Records)
}
