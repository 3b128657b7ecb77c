// Package dataset holds the in-memory crop yield table: loading from CSV, the
// SQL store or the synthetic generator, distinct-value lookup and filtering.
package dataset

import (
	"sort"
	"strconv"

	"agri-yield-platform/internal/models"
)

// Table is an immutable, ordered set of records sharing the crop yield schema.
type Table struct {
	records []models.Record
	source  string
}

// New copies records into a new table.
func New(records []models.Record, source string) *Table {
	owned := make([]models.Record, len(records))
	copy(owned, records)
	return &Table{records: owned, source: source}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.records) }

// Source describes where the rows came from.
func (t *Table) Source() string { return t.source }

// Records returns a copy of every row.
func (t *Table) Records() []models.Record {
	return t.Filter(nil)
}

// Filter returns copies of the rows matching every non-empty constraint.
// An empty filter returns all rows.
func (t *Table) Filter(spec models.FilterSpec) []models.Record {
	if spec.IsEmpty() {
		out := make([]models.Record, len(t.records))
		copy(out, t.records)
		return out
	}

	out := make([]models.Record, 0)
	for i := range t.records {
		if spec.Matches(&t.records[i]) {
			out = append(out, t.records[i])
		}
	}
	return out
}

// UniqueValues returns the distinct values of field, sorted ascending:
// lexicographically for labels, numerically for Year and measurements.
func (t *Table) UniqueValues(f models.Field) []string {
	if f.IsCategorical() {
		seen := make(map[string]struct{})
		for i := range t.records {
			seen[t.records[i].Label(f)] = struct{}{}
		}
		out := make([]string, 0, len(seen))
		for v := range seen {
			out = append(out, v)
		}
		sort.Strings(out)
		return out
	}

	seen := make(map[float64]struct{})
	for i := range t.records {
		v, _ := t.records[i].Numeric(f)
		seen[v] = struct{}{}
	}
	nums := make([]float64, 0, len(seen))
	for v := range seen {
		nums = append(nums, v)
	}
	sort.Float64s(nums)

	out := make([]string, len(nums))
	for i, v := range nums {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}
