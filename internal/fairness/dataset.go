package fairness

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
)

// Columns that identify or label a row and are never scored.
var nonFeatureColumns = map[string]bool{
	"Loan_ID":     true,
	"Loan_Status": true,
}

// Dataset is a reference population read from CSV. Empty cells are omitted
// from a record so they read as missing features.
type Dataset struct {
	Columns []string
	Records []map[string]string
}

func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ds, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ds, nil
}

func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	ds := &Dataset{Columns: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := make(map[string]string, len(header))
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			rec[header[i]] = cell
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

func (d *Dataset) Has(column string) bool {
	for _, c := range d.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Vector parses and derives record i the same way a decision request is.
func (d *Dataset) Vector(i int) (*features.Vector, error) {
	raw := make(map[string]any, len(d.Records[i]))
	for k, v := range d.Records[i] {
		if nonFeatureColumns[k] {
			continue
		}
		raw[k] = v
	}
	v, _, err := features.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("row %d: %w", i+1, err)
	}
	return features.Derive(v), nil
}

// Sample returns up to n derived vectors from the top of the dataset, for
// use as a scorer background sample.
func (d *Dataset) Sample(n int) ([]*features.Vector, error) {
	if n <= 0 || n > len(d.Records) {
		n = len(d.Records)
	}
	out := make([]*features.Vector, 0, n)
	for i := 0; i < n; i++ {
		v, err := d.Vector(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
