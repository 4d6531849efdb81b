// Package dataset loads labeled traffic records and cleans them into an
// aligned numeric feature matrix and label vector.
package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hed1ad/goguardml/pkg/errs"
	gio "github.com/hed1ad/goguardml/pkg/io"
	"github.com/hed1ad/goguardml/pkg/io/csv"
)

// DefaultLabelColumn is the name of the mandatory target column.
const DefaultLabelColumn = "Label"

// DefaultMissingThreshold is the minimum non-missing fraction a column
// needs to survive cleaning.
const DefaultMissingThreshold = 0.9

// Options controls loading and cleaning.
type Options struct {
	// LabelColumn is the target column, matched after trimming headers.
	LabelColumn string
	// MissingThreshold drops any feature column whose non-missing
	// fraction is below it.
	MissingThreshold float64
}

// DefaultOptions returns the options used by the training pipeline.
func DefaultOptions() Options {
	return Options{
		LabelColumn:      DefaultLabelColumn,
		MissingThreshold: DefaultMissingThreshold,
	}
}

// Column is one named column of a Table.
type Column struct {
	Name string
	// Numeric reports whether every non-missing cell parsed as a number.
	Numeric bool
	// Cells holds the raw cell text.
	Cells []string
	// Values holds parsed cells for numeric columns; NaN marks missing.
	Values []float64

	missing []bool
}

// Table is a cleaned record table. Column names are trimmed and unique.
type Table struct {
	labelColumn string
	columns     []*Column
	index       map[string]int
	rows        []int

	// DroppedColumns lists columns removed for too many missing values.
	DroppedColumns []string
	// DroppedRows counts rows removed for a remaining missing value.
	DroppedRows int
	// SourceColumns lists every trimmed header name before cleaning.
	SourceColumns []string
	// SourceRows is the record count before cleaning.
	SourceRows int
}

// Load reads a delimited file with a header row and cleans it.
func Load(path string, opts Options, readerOpts ...csv.Option) (*Table, error) {
	raw, err := csv.ReadFile(path, readerOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return FromRaw(raw, opts)
}

// FromRaw builds and cleans a table from raw records. The raw table is
// not modified.
func FromRaw(raw *gio.RawTable, opts Options) (*Table, error) {
	if opts.LabelColumn == "" {
		opts.LabelColumn = DefaultLabelColumn
	}
	if opts.MissingThreshold < 0 || opts.MissingThreshold > 1 {
		return nil, errs.Configuration("missing threshold %v outside [0, 1]", opts.MissingThreshold)
	}

	t := &Table{
		labelColumn: opts.LabelColumn,
		index:       make(map[string]int, len(raw.Header)),
		SourceRows:  raw.NumRows(),
	}

	for i, name := range raw.Header {
		name = strings.TrimSpace(name)
		if _, dup := t.index[name]; dup {
			return nil, errs.Schema("duplicate column %q after trimming header whitespace", name)
		}
		t.index[name] = i
		t.columns = append(t.columns, &Column{Name: name})
	}

	t.SourceColumns = t.Columns()

	if _, ok := t.index[opts.LabelColumn]; !ok {
		return nil, errs.Schema("dataset must contain a %q column, found %v", opts.LabelColumn, t.Columns())
	}

	for i, rec := range raw.Records {
		if len(rec) != len(t.columns) {
			return nil, errs.Schema("record %d has %d fields, header has %d", i+1, len(rec), len(t.columns))
		}
	}

	for j, col := range t.columns {
		col.Cells = make([]string, len(raw.Records))
		for i, rec := range raw.Records {
			col.Cells[i] = rec[j]
		}
		parseColumn(col)
	}

	t.rows = make([]int, len(raw.Records))
	for i := range t.rows {
		t.rows[i] = i
	}

	t.dropSparseColumns(opts.MissingThreshold)
	t.dropIncompleteRows()

	return t, nil
}

// Columns returns the column names in file order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// LabelColumn returns the name of the target column.
func (t *Table) LabelColumn() string {
	return t.labelColumn
}

// NumRows returns the number of rows that survived cleaning.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// Rows returns the source record index of every surviving row.
func (t *Table) Rows() []int {
	return append([]int(nil), t.rows...)
}

func (t *Table) dropSparseColumns(threshold float64) {
	n := len(t.rows)
	minCount := threshold * float64(n)

	kept := t.columns[:0]
	for _, col := range t.columns {
		present := 0
		for i := range col.Cells {
			if !col.missing[i] {
				present++
			}
		}
		if col.Name != t.labelColumn && float64(present) < minCount {
			t.DroppedColumns = append(t.DroppedColumns, col.Name)
			continue
		}
		kept = append(kept, col)
	}
	t.columns = kept
	t.reindex()
}

func (t *Table) dropIncompleteRows() {
	keep := make([]int, 0, len(t.rows))
	for pos := range t.rows {
		complete := true
		for _, col := range t.columns {
			if col.missing[pos] {
				complete = false
				break
			}
		}
		if complete {
			keep = append(keep, pos)
		}
	}

	t.DroppedRows = len(t.rows) - len(keep)
	if t.DroppedRows == 0 {
		return
	}

	rows := make([]int, len(keep))
	for i, pos := range keep {
		rows[i] = t.rows[pos]
	}
	t.rows = rows

	for _, col := range t.columns {
		cells := make([]string, len(keep))
		missing := make([]bool, len(keep))
		var values []float64
		if col.Values != nil {
			values = make([]float64, len(keep))
		}
		for i, pos := range keep {
			cells[i] = col.Cells[pos]
			missing[i] = col.missing[pos]
			if values != nil {
				values[i] = col.Values[pos]
			}
		}
		col.Cells, col.missing, col.Values = cells, missing, values
	}
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c.Name] = i
	}
}

var missingMarkers = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"null": {}, "NULL": {}, "None": {}, "#N/A": {}, "<NA>": {},
}

// parseColumn classifies every cell as missing or present and infers
// whether the column is numeric. Infinite values, including literals
// that overflow a float64, count as missing.
func parseColumn(col *Column) {
	n := len(col.Cells)
	col.missing = make([]bool, n)
	values := make([]float64, n)
	numeric := true

	for i, cell := range col.Cells {
		s := strings.TrimSpace(cell)
		if _, ok := missingMarkers[s]; ok {
			col.missing[i] = true
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			numeric = false
			continue
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			col.missing[i] = true
			v = math.NaN()
		}
		values[i] = v
	}

	col.Numeric = numeric
	if numeric {
		col.Values = values
		return
	}

	// Non-numeric columns keep only textual missing markers.
	for i, cell := range col.Cells {
		_, marker := missingMarkers[strings.TrimSpace(cell)]
		col.missing[i] = marker
	}
}
