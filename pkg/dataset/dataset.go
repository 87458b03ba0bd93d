// Package dataset loads a CSV file into an immutable in-memory table.
//
// A Dataset is loaded once per run and shared read-only by every pipeline stage. All
// accessors return copies, so no stage can alter what a later stage observes.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"csvanalyst/pkg/logx"
)

// Sentinel errors. Load wraps them with the offending path and position.
var (
	ErrNotFound  = errors.New("csv file not found")
	ErrEmpty     = errors.New("csv file is empty")
	ErrMalformed = errors.New("malformed csv")
)

//nolint:gochecknoglobals // Package logger for dataset loading
var logger = logx.NewLogger("dataset")

// candidateDelimiters are tried, in order, when no delimiter is configured.
var candidateDelimiters = []rune{',', ';', '\t', '|'} //nolint:gochecknoglobals

// LoadOptions controls CSV parsing.
type LoadOptions struct {
	// Delimiter is the field separator; 0 means sniff from the header line.
	Delimiter rune
	// MaxRows limits how many data rows are kept; 0 means unlimited.
	MaxRows int
}

// Dataset is a parsed CSV table with a normalised header.
type Dataset struct {
	path      string
	name      string
	delimiter rune
	header    []string
	rows      [][]string
	totalRows int
}

// Load reads and parses the CSV at path.
//
// The header is normalised: surrounding whitespace is trimmed, blank names become
// "Unnamed: <index>" and repeated names get ".1", ".2" suffixes. Rows shorter than the header
// are padded with empty fields; rows longer than the header are an ErrMalformed.
func Load(path string, opts LoadOptions) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(firstLine(text))
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1

	rawHeader, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
		}
		return nil, fmt.Errorf("%w: %s: header: %v", ErrMalformed, path, err)
	}

	ds := &Dataset{
		path:      path,
		name:      filepath.Base(path),
		delimiter: delim,
		header:    normaliseHeader(rawHeader),
	}
	width := len(ds.header)

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
		if len(record) > width {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%w: %s: line %d has %d fields, header has %d",
				ErrMalformed, path, line, len(record), width)
		}

		ds.totalRows++
		if opts.MaxRows > 0 && len(ds.rows) >= opts.MaxRows {
			continue
		}
		row := make([]string, width)
		copy(row, record)
		ds.rows = append(ds.rows, row)
	}

	if ds.totalRows > len(ds.rows) {
		logger.Info("Kept %d of %d rows from %s (max_rows)", len(ds.rows), ds.totalRows, ds.name)
	}
	return ds, nil
}

// FromRecords builds a Dataset from an in-memory header and rows, applying the same header
// normalisation and row width rules as Load. name is used as both path and display name.
func FromRecords(name string, header []string, rows [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, name)
	}
	ds := &Dataset{
		path:      name,
		name:      filepath.Base(name),
		delimiter: ',',
		header:    normaliseHeader(header),
	}
	width := len(ds.header)
	for i, record := range rows {
		if len(record) > width {
			return nil, fmt.Errorf("%w: %s: row %d has %d fields, header has %d",
				ErrMalformed, name, i+1, len(record), width)
		}
		row := make([]string, width)
		copy(row, record)
		ds.rows = append(ds.rows, row)
	}
	ds.totalRows = len(ds.rows)
	return ds, nil
}

// decode strips a UTF-8 byte order mark and re-decodes non-UTF-8 input as Windows-1252,
// the encoding spreadsheet exports fall back to. It is a superset of Latin-1's printable range.
func decode(data []byte) (string, error) {
	dec := unicode.UTF8BOM.NewDecoder()
	if !utf8.Valid(data) {
		dec = charmap.Windows1252.NewDecoder()
	}
	out, err := dec.Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func firstLine(text string) string {
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		return text[:i]
	}
	return text
}

// sniffDelimiter picks the candidate that occurs most often outside quotes in the header
// line. Ties go to the earlier candidate; no occurrences means comma.
func sniffDelimiter(line string) rune {
	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, r := range line {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestCount := ',', 0
	for _, c := range candidateDelimiters {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}

func normaliseHeader(raw []string) []string {
	header := make([]string, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, base := range raw {
		base = strings.TrimSpace(base)
		if base == "" {
			base = fmt.Sprintf("Unnamed: %d", i)
		}
		name := base
		for n := 1; seen[name]; n++ {
			name = fmt.Sprintf("%s.%d", base, n)
		}
		seen[name] = true
		header[i] = name
	}
	return header
}

// Path returns the path the dataset was loaded from.
func (d *Dataset) Path() string { return d.path }

// Name returns the file's base name.
func (d *Dataset) Name() string { return d.name }

// Delimiter returns the field separator used to parse the file.
func (d *Dataset) Delimiter() rune { return d.delimiter }

// NumRows returns the number of rows kept in memory.
func (d *Dataset) NumRows() int { return len(d.rows) }

// TotalRows returns the number of data rows in the file, including rows dropped by MaxRows.
func (d *Dataset) TotalRows() int { return d.totalRows }

// NumColumns returns the header width.
func (d *Dataset) NumColumns() int { return len(d.header) }

// Columns returns a copy of the normalised header.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.header))
	copy(out, d.header)
	return out
}

// Index returns the position of column name, or -1.
func (d *Dataset) Index(name string) int {
	for i, h := range d.header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the values of column name.
func (d *Dataset) Column(name string) ([]string, bool) {
	i := d.Index(name)
	if i < 0 {
		return nil, false
	}
	return d.ColumnAt(i), true
}

// ColumnAt returns a copy of the values of the i-th column.
func (d *Dataset) ColumnAt(i int) []string {
	out := make([]string, len(d.rows))
	for r, row := range d.rows {
		out[r] = row[i]
	}
	return out
}

// Head returns copies of the first n rows (all rows when n exceeds NumRows).
func (d *Dataset) Head(n int) [][]string {
	n = max(0, min(n, len(d.rows)))
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		out[i] = append([]string(nil), d.rows[i]...)
	}
	return out
}
