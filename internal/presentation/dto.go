package presentation

import (
	"time"

	"github.com/zjrosen/layerforge/internal/ledger"
	"github.com/zjrosen/layerforge/internal/metadata"
)

// RunDTO represents a ledger run for presentation
type RunDTO struct {
	ID          string       `json:"id"`
	Collection  string       `json:"collection"`
	Network     string       `json:"network"`
	Seed        uint64       `json:"seed"`
	Target      int          `json:"target"`
	Status      string       `json:"status"`
	Editions    int          `json:"editions"`
	Duplicates  int          `json:"duplicates"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Items       []EditionDTO `json:"items,omitempty"`
}

// EditionDTO represents one accepted edition
type EditionDTO struct {
	Edition       int       `json:"edition"`
	Configuration int       `json:"configuration"`
	DNA           string    `json:"dna"`
	Hash          string    `json:"hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// FromLedgerRun converts a run and, optionally, its editions.
func FromLedgerRun(r *ledger.Run, editions []*ledger.Edition) RunDTO {
	dto := RunDTO{
		ID:         r.ID,
		Collection: r.Collection,
		Network:    r.Network,
		Seed:       r.Seed,
		Target:     r.Target,
		Status:     r.Status.String(),
		Editions:   r.Editions,
		Duplicates: r.Duplicates,
		Error:      r.Error,
		StartedAt:  r.StartedAt.UTC(),
	}
	if r.CompletedAt != nil {
		at := r.CompletedAt.UTC()
		dto.CompletedAt = &at
	}
	for _, e := range editions {
		dto.Items = append(dto.Items, EditionDTO{
			Edition:       e.Edition,
			Configuration: e.Configuration,
			DNA:           e.DNA,
			Hash:          e.Hash,
			CreatedAt:     e.CreatedAt.UTC(),
		})
	}
	return dto
}

// FromLedgerRuns converts a run listing.
func FromLedgerRuns(runs []*ledger.Run) []RunDTO {
	dtos := make([]RunDTO, len(runs))
	for i, r := range runs {
		dtos[i] = FromLedgerRun(r, nil)
	}
	return dtos
}

// RarityDTO is the trait distribution of a generated collection.
type RarityDTO struct {
	Editions int            `json:"editions"`
	Traits   []TraitTypeDTO `json:"traits"`
}

// TraitTypeDTO groups the values of one trait type.
type TraitTypeDTO struct {
	TraitType string          `json:"trait_type"`
	Values    []TraitValueDTO `json:"values"`
}

// TraitValueDTO is one value and how often it occurs.
type TraitValueDTO struct {
	Value   string  `json:"value"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// FromTraitCounts groups a tally by trait type. The tally order is kept,
// so trait types appear in layer order and values most common first.
func FromTraitCounts(counts []metadata.TraitCount, editions int) RarityDTO {
	report := RarityDTO{Editions: editions}
	for _, tc := range counts {
		n := len(report.Traits)
		if n == 0 || report.Traits[n-1].TraitType != tc.TraitType {
			report.Traits = append(report.Traits, TraitTypeDTO{TraitType: tc.TraitType})
			n++
		}
		report.Traits[n-1].Values = append(report.Traits[n-1].Values, TraitValueDTO{
			Value:   tc.Value,
			Count:   tc.Count,
			Percent: tc.Percent,
		})
	}
	return report
}
