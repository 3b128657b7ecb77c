package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"agri-yield-platform/internal/models"
)

// LoadStats counts rows read and rows dropped for missing or bad values.
type LoadStats struct {
	Total   int
	Dropped int
}

// Loaded returns the number of rows kept.
func (s LoadStats) Loaded() int { return s.Total - s.Dropped }

// LoadCSV reads the table from a CSV file on disk.
func LoadCSV(path string) (*Table, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, &models.DataLoadError{Source: path, Reason: "open csv", Err: err}
	}
	defer f.Close()

	return ReadCSV(f, path)
}

// ReadCSV parses a CSV stream whose header names the crop yield columns
// (canonical names or known aliases, any order). Extra columns are ignored.
// Rows with a missing or unparsable value are dropped.
func ReadCSV(r io.Reader, source string) (*Table, LoadStats, error) {
	var stats LoadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, &models.DataLoadError{Source: source, Reason: "empty file"}
		}
		return nil, stats, &models.DataLoadError{Source: source, Reason: "read header", Err: err}
	}

	columns, err := resolveHeader(header)
	if err != nil {
		return nil, stats, &models.DataLoadError{Source: source, Reason: "invalid header", Err: err}
	}

	records := make([]models.Record, 0, 1024)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, &models.DataLoadError{Source: source, Reason: fmt.Sprintf("read row %d", stats.Total+2), Err: err}
		}
		stats.Total++

		raw := make(models.RawCropRecord, len(columns))
		for idx, field := range columns {
			if idx < len(row) {
				raw[field] = row[idx]
			}
		}

		rec, err := raw.ToRecord()
		if err != nil {
			stats.Dropped++
			continue
		}
		records = append(records, *rec)
	}

	return New(records, source), stats, nil
}

// resolveHeader maps column index to schema field and checks every field is present.
func resolveHeader(header []string) (map[int]models.Field, error) {
	columns := make(map[int]models.Field, len(header))
	found := make(map[models.Field]bool, len(models.AllFields))

	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		f, ok := models.FieldForHeader(name)
		if !ok || found[f] {
			continue
		}
		columns[i] = f
		found[f] = true
	}

	var missing []string
	for _, f := range models.AllFields {
		if !found[f] {
			missing = append(missing, f.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}
