package sqlite

import (
	"time"

	"github.com/zjrosen/layerforge/internal/ledger"
)

// runModel is a row of the runs table. Times are Unix milliseconds.
type runModel struct {
	ID          string
	Collection  string
	Network     string
	Seed        int64 // bit pattern of the uint64 seed
	Target      int
	Status      string
	Editions    int
	Duplicates  int
	Error       *string // nullable
	StartedAt   int64
	CompletedAt *int64 // nullable
}

func toRunModel(r *ledger.Run) *runModel {
	m := &runModel{
		ID:         r.ID,
		Collection: r.Collection,
		Network:    r.Network,
		Seed:       int64(r.Seed),
		Target:     r.Target,
		Status:     string(r.Status),
		Editions:   r.Editions,
		Duplicates: r.Duplicates,
		StartedAt:  r.StartedAt.UnixMilli(),
	}
	if r.Error != "" {
		msg := r.Error
		m.Error = &msg
	}
	if r.CompletedAt != nil {
		at := r.CompletedAt.UnixMilli()
		m.CompletedAt = &at
	}
	return m
}

func (m *runModel) toDomain() *ledger.Run {
	r := &ledger.Run{
		ID:         m.ID,
		Collection: m.Collection,
		Network:    m.Network,
		Seed:       uint64(m.Seed),
		Target:     m.Target,
		Status:     ledger.RunStatus(m.Status),
		Editions:   m.Editions,
		Duplicates: m.Duplicates,
		StartedAt:  time.UnixMilli(m.StartedAt),
	}
	if m.Error != nil {
		r.Error = *m.Error
	}
	if m.CompletedAt != nil {
		at := time.UnixMilli(*m.CompletedAt)
		r.CompletedAt = &at
	}
	return r
}

// editionModel is a row of the editions table.
type editionModel struct {
	RunID         string
	Edition       int
	Configuration int
	DNA           string
	Hash          string
	CreatedAt     int64
}

func toEditionModel(e *ledger.Edition) *editionModel {
	return &editionModel{
		RunID:         e.RunID,
		Edition:       e.Edition,
		Configuration: e.Configuration,
		DNA:           e.DNA,
		Hash:          e.Hash,
		CreatedAt:     e.CreatedAt.UnixMilli(),
	}
}

func (m *editionModel) toDomain() *ledger.Edition {
	return &ledger.Edition{
		RunID:         m.RunID,
		Edition:       m.Edition,
		Configuration: m.Configuration,
		DNA:           m.DNA,
		Hash:          m.Hash,
		CreatedAt:     time.UnixMilli(m.CreatedAt),
	}
}
