package models

import "strings"

// FilterSpec maps a field to an equality constraint. Empty values mean no
// constraint on that field.
type FilterSpec map[Field]string

// NewFilter builds a filter from the optional region and crop query values.
func NewFilter(region, crop string) FilterSpec {
	return FilterSpec{FieldRegion: region, FieldCrop: crop}
}

// With returns a copy of the filter with one more constraint.
func (s FilterSpec) With(f Field, value string) FilterSpec {
	out := make(FilterSpec, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[f] = value
	return out
}

// Matches reports whether r satisfies every non-empty constraint.
func (s FilterSpec) Matches(r *Record) bool {
	for f, want := range s {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		if r.Label(f) != want {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the filter constrains nothing.
func (s FilterSpec) IsEmpty() bool {
	for _, v := range s {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
