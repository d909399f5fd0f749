// Package table loads the screening table: one row per mammogram view with
// its report text and cancer labels.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/menta2k/mmbcd/pkg/types"
)

var (
	// ErrColumn is returned when a required column is absent from the header.
	ErrColumn = errors.New("table: missing column")
	// ErrLabel is returned when a label cell is not 0 or 1.
	ErrLabel = errors.New("table: label must be 0 or 1")
)

// Columns lists the header names a table must provide.
var Columns = []string{"im_path", "text", "cancer", "all_views_cancer"}

// Cells treated as missing, matching the usual CSV conventions for NaN.
var missing = map[string]bool{
	"": true, "nan": true, "NaN": true, "NA": true, "N/A": true, "n/a": true,
	"null": true, "NULL": true, "None": true, "<NA>": true, "-NaN": true, "-nan": true,
}

// Text is a report cell that may be missing.
type Text struct {
	Value string
	Valid bool
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (t *Text) UnmarshalCSV(s string) error {
	if missing[strings.TrimSpace(s)] {
		*t = Text{}
		return nil
	}
	*t = Text{Value: s, Valid: true}
	return nil
}

// Label is a binary label cell. Float spellings such as "1.0" are accepted.
type Label int

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (l *Label) UnmarshalCSV(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("label %q: %w", s, err)
	}
	if v != 0 && v != 1 {
		*l = -1
		return nil
	}
	*l = Label(v)
	return nil
}

// Valid reports whether the label is 0 or 1.
func (l Label) Valid() bool {
	return l == 0 || l == 1
}

// Record is one row of the table as stored on disk.
type Record struct {
	ImPath         string `csv:"im_path"`
	Text           Text   `csv:"text"`
	Cancer         Label  `csv:"cancer"`
	AllViewsCancer Label  `csv:"all_views_cancer"`
}

// Sample converts the record to its in-memory form
func (r *Record) Sample() types.Sample {
	return types.Sample{
		ImagePath:     r.ImPath,
		Text:          r.Text.Value,
		HasText:       r.Text.Valid,
		Label:         int(r.Cancer),
		AllViewsLabel: int(r.AllViewsCancer),
	}
}

// Load reads the table at path.
func Load(path string) ([]types.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	samples, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// Read parses a table from r. Extra columns are ignored.
func Read(r io.Reader) ([]types.Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if err := checkHeader(data); err != nil {
		return nil, err
	}

	var records []*Record
	if err := gocsv.UnmarshalBytes(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse table: %w", err)
	}

	samples := make([]types.Sample, len(records))
	for i, rec := range records {
		if !rec.Cancer.Valid() || !rec.AllViewsCancer.Valid() {
			return nil, fmt.Errorf("%w: row %d (%s)", ErrLabel, i+1, rec.ImPath)
		}
		samples[i] = rec.Sample()
	}
	return samples, nil
}

func checkHeader(data []byte) error {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}
	for _, c := range Columns {
		if !have[c] {
			return fmt.Errorf("%w: %s", ErrColumn, c)
		}
	}
	return nil
}
