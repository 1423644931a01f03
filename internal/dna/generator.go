package dna

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/zjrosen/layerforge/internal/layers"
)

// ErrZeroWeight is returned when a slot has no positive weight to draw from.
var ErrZeroWeight = errors.New("slot has zero total weight")

// Generator draws one element per slot with probability proportional to its
// weight. It is not safe for concurrent use; the scheduler owns one per run.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator drawing from rng.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate draws a DNA for the ordered slot list.
func (g *Generator) Generate(slots []layers.Slot) (DNA, error) {
	tokens := make([]Token, 0, len(slots))
	for _, slot := range slots {
		e, err := g.pick(slot)
		if err != nil {
			return DNA{}, fmt.Errorf("slot %d (%s): %w", slot.ID, slot.Name, err)
		}
		tokens = append(tokens, NewToken(slot, e))
	}
	return DNA{Tokens: tokens}, nil
}

func (g *Generator) pick(slot layers.Slot) (layers.Element, error) {
	var total float64
	last := -1
	for i, e := range slot.Elements {
		if e.Weight > 0 {
			total += e.Weight
			last = i
		}
	}
	if last < 0 || total <= 0 {
		return layers.Element{}, ErrZeroWeight
	}

	r := g.rng.Float64() * total
	for _, e := range slot.Elements {
		if e.Weight <= 0 {
			continue
		}
		// subtract the current weight until the running value goes negative
		r -= e.Weight
		if r < 0 {
			return e, nil
		}
	}
	// Float rounding can leave r at exactly zero after the last subtraction.
	return slot.Elements[last], nil
}
