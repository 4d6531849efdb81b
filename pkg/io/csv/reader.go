// Package csv provides CSV file reading for tabular data.
package csv

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"

	gio "github.com/hed1ad/goguardml/pkg/io"
)

// Reader reads data from CSV files.
type Reader struct {
	file      *os.File
	reader    *csv.Reader
	hasHeader bool
	headers   []string
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.reader.Comma = c
	}
}

// NewReader creates a new CSV reader.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open dataset")
	}

	r := &Reader{
		file:      file,
		reader:    csv.NewReader(file),
		hasHeader: true,
	}
	r.reader.TrimLeadingSpace = false

	for _, opt := range opts {
		opt(r)
	}

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			file.Close()
			if err == io.EOF {
				return nil, errors.Errorf("%s: missing header row", filename)
			}
			return nil, errors.Wrap(err, "read header")
		}
		r.headers = append([]string(nil), headers...)
	}

	return r, nil
}

// Read returns the header and all records. Unlike a numeric reader, rows
// are never skipped: a record with the wrong field count fails the read.
func (r *Reader) Read() (*gio.RawTable, error) {
	table := &gio.RawTable{Header: r.headers}

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read record %d", len(table.Records)+1)
		}
		table.Records = append(table.Records, record)
	}

	if !r.hasHeader && len(table.Records) > 0 {
		table.Header = make([]string, len(table.Records[0]))
		for i := range table.Header {
			table.Header[i] = defaultColumnName(i)
		}
	}

	return table, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ReadFile reads a whole CSV file into a raw table.
func ReadFile(filename string, opts ...Option) (*gio.RawTable, error) {
	r, err := NewReader(filename, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.Read()
}

func defaultColumnName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	name := ""
	for i >= 0 {
		name = string(letters[i%26]) + name
		i = i/26 - 1
	}
	return "col_" + name
}

var _ gio.Reader = (*Reader)(nil)
