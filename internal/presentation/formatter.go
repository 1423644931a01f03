// Package presentation renders ledger data and collection reports for
// machine consumption.
package presentation

import (
	"encoding/json"
	"io"
)

// Formatter writes indented JSON documents, one per call.
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatRuns writes a run listing. An empty listing is written as [].
func (f *Formatter) FormatRuns(runs []RunDTO) error {
	if runs == nil {
		runs = []RunDTO{}
	}
	return f.encode(runs)
}

// FormatRun writes a single run with its editions.
func (f *Formatter) FormatRun(run RunDTO) error {
	return f.encode(run)
}

// FormatRarity writes a trait rarity report.
func (f *Formatter) FormatRarity(report RarityDTO) error {
	if report.Traits == nil {
		report.Traits = []TraitTypeDTO{}
	}
	return f.encode(report)
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
