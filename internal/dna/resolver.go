package dna

import (
	"errors"
	"fmt"

	"github.com/zjrosen/layerforge/internal/layers"
)

// ErrResolution marks a DNA that does not belong to the given slot list.
var ErrResolution = errors.New("dna does not match layer configuration")

// ResolutionError describes the first token that failed to resolve.
type ResolutionError struct {
	Slot      int
	SlotName  string
	ElementID int
	Reason    string
}

func (e *ResolutionError) Error() string {
	if e.SlotName == "" {
		return fmt.Sprintf("resolve dna: %s", e.Reason)
	}
	return fmt.Sprintf("resolve dna: slot %d (%s): %s", e.Slot, e.SlotName, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return ErrResolution }

// Resolved is one slot paired with its selected element.
type Resolved struct {
	Slot    layers.Slot
	Element layers.Element
}

// Resolve maps each token to the element of the slot at the same position.
// The result keeps slot order.
func Resolve(d DNA, slots []layers.Slot) ([]Resolved, error) {
	if d.Len() != len(slots) {
		return nil, &ResolutionError{
			Slot:   -1,
			Reason: fmt.Sprintf("dna has %d tokens, configuration has %d slots", d.Len(), len(slots)),
		}
	}

	out := make([]Resolved, len(slots))
	for i, slot := range slots {
		tok := d.Tokens[i]
		e, ok := slot.ElementByID(tok.ElementID)
		if !ok {
			return nil, &ResolutionError{
				Slot:      i,
				SlotName:  slot.Name,
				ElementID: tok.ElementID,
				Reason:    fmt.Sprintf("no element with id %d", tok.ElementID),
			}
		}
		out[i] = Resolved{Slot: slot, Element: e}
	}
	return out, nil
}
