// Package model defines the records, decisions, and runs shared across the cleanup pipeline.
package model

import (
	"strconv"
	"strings"
)

// MetricRecord is a single numeric metric extracted from a source document.
// Records are produced once by extraction and never mutated in place; the
// cleanup pass produces a Decision for each one instead.
type MetricRecord struct {
	SourceID   string  `json:"source_id" csv:"source_id"`
	OriginalID string  `json:"original_id" csv:"original_id"`
	Value      float64 `json:"value" csv:"value"`
	Unit       string  `json:"unit" csv:"unit"`
	Year       *int    `json:"year,omitempty" csv:"year,omitempty"`
	MetricType string  `json:"metric_type" csv:"metric_type"`
	Context    string  `json:"context" csv:"context"`
	Confidence float64 `json:"confidence" csv:"confidence"`

	// Seq is the 0-based insertion order within the batch, assigned at load.
	Seq int `json:"-" csv:"-"`
}

// HasYear reports whether the record carries a year.
func (r MetricRecord) HasYear() bool {
	return r.Year != nil
}

// YearValue returns the record year, or 0 when unset.
func (r MetricRecord) YearValue() int {
	if r.Year == nil {
		return 0
	}
	return *r.Year
}

// FormatValue renders the value without trailing zeros ("19", "4.5", "1200000").
// Negative zero renders as "0".
func FormatValue(v float64) string {
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GroupKey is the exact (value, unit, year) tuple used for duplicate detection.
func (r MetricRecord) GroupKey() string {
	year := "null"
	if r.Year != nil {
		year = strconv.Itoa(*r.Year)
	}
	return strings.Join([]string{FormatValue(r.Value), r.Unit, year}, "|")
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
