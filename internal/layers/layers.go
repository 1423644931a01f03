// Package layers holds the read-only layer model used by one edition
// configuration: elements discovered in a slot directory and the ordered slot
// list with per-slot display options.
package layers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// DNADelimiter separates slot tokens inside a DNA string. Slot names and
// element filenames may not contain it.
const DNADelimiter = "-"

var (
	// ErrEmptySlot is returned when a slot directory yields no elements.
	ErrEmptySlot = errors.New("layer slot has no elements")

	// ErrInvalidSlot is returned for a malformed slot specification.
	ErrInvalidSlot = errors.New("invalid layer slot")
)

// BlendMode selects how a slot is composited over the layers below it.
type BlendMode string

const (
	BlendNormal     BlendMode = "normal"
	BlendMultiply   BlendMode = "multiply"
	BlendScreen     BlendMode = "screen"
	BlendOverlay    BlendMode = "overlay"
	BlendDarken     BlendMode = "darken"
	BlendLighten    BlendMode = "lighten"
	BlendDifference BlendMode = "difference"
)

// ParseBlendMode normalizes a configured blend name. The empty string and the
// canvas name "source-over" both mean normal.
func ParseBlendMode(s string) (BlendMode, error) {
	switch m := BlendMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", "source-over":
		return BlendNormal, nil
	case BlendNormal, BlendMultiply, BlendScreen, BlendOverlay, BlendDarken, BlendLighten, BlendDifference:
		return m, nil
	default:
		return "", fmt.Errorf("unknown blend mode %q", s)
	}
}

// Element is one candidate image within a slot.
type Element struct {
	ID       int     // discovery index inside the slot directory
	Name     string  // label with rarity suffix and extension stripped
	Filename string  // file name as listed
	Path     string  // full path used to load the image
	Weight   float64 // relative rarity weight
}

// Slot is a named position in the layering order.
type Slot struct {
	ID          int
	Name        string // directory name
	DisplayName string // trait type shown in metadata
	Elements    []Element
	Blend       BlendMode
	Opacity     float64
	BypassDNA   bool
}

// TotalWeight returns the sum of element weights.
func (s Slot) TotalWeight() float64 {
	var total float64
	for _, e := range s.Elements {
		total += e.Weight
	}
	return total
}

// ElementByID returns the element with the given discovery id.
func (s Slot) ElementByID(id int) (Element, bool) {
	for _, e := range s.Elements {
		if e.ID == id {
			return e, true
		}
	}
	return Element{}, false
}

// Combinations returns the number of distinct normalized DNA strings the
// slots can produce, saturating at math.MaxInt. Bypassed slots do not
// contribute.
func Combinations(slots []Slot) int {
	if len(slots) == 0 {
		return 0
	}
	n := 1
	for _, s := range slots {
		if s.BypassDNA {
			continue
		}
		k := len(s.Elements)
		if k == 0 {
			return 0
		}
		if n > math.MaxInt/k {
			n = math.MaxInt
			continue
		}
		n *= k
	}
	return n
}

// Options are the per-slot display settings of a configuration entry.
// A nil Opacity means fully opaque.
type Options struct {
	DisplayName string
	Blend       string
	Opacity     *float64
	BypassDNA   bool
}

// Spec names one slot of a configuration in layering order.
type Spec struct {
	Name    string
	Options Options
}

// Catalog lists the elements of a named slot.
type Catalog interface {
	Elements(ctx context.Context, slot string) ([]Element, error)
}

// Build assembles the ordered slot list for one configuration. Every spec is
// validated and its elements loaded before any slot is returned so drawing
// never starts on a partially valid configuration.
func Build(ctx context.Context, catalog Catalog, specs []Spec) ([]Slot, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: layers_order is empty", ErrInvalidSlot)
	}

	slots := make([]Slot, 0, len(specs))
	for i, spec := range specs {
		slot, err := newSlot(i, spec)
		if err != nil {
			return nil, err
		}

		elements, err := catalog.Elements(ctx, spec.Name)
		if err != nil {
			return nil, fmt.Errorf("slot %d (%s): %w", i, spec.Name, err)
		}
		if len(elements) == 0 {
			return nil, fmt.Errorf("slot %d (%s): %w", i, spec.Name, ErrEmptySlot)
		}
		slot.Elements = elements
		slots = append(slots, slot)
	}
	return slots, nil
}

func newSlot(id int, spec Spec) (Slot, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return Slot{}, fmt.Errorf("%w: slot %d: name is required", ErrInvalidSlot, id)
	}
	if strings.Contains(name, DNADelimiter) || strings.ContainsAny(name, `/\`) {
		return Slot{}, fmt.Errorf("%w: slot %d (%s): name may not contain %q or path separators", ErrInvalidSlot, id, name, DNADelimiter)
	}

	blend, err := ParseBlendMode(spec.Options.Blend)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: slot %d (%s): %v", ErrInvalidSlot, id, name, err)
	}

	opacity := 1.0
	if spec.Options.Opacity != nil {
		opacity = *spec.Options.Opacity
	}
	if opacity < 0 || opacity > 1 {
		return Slot{}, fmt.Errorf("%w: slot %d (%s): opacity must be between 0 and 1, got %v", ErrInvalidSlot, id, name, opacity)
	}

	display := spec.Options.DisplayName
	if display == "" {
		display = name
	}

	return Slot{
		ID:          id,
		Name:        name,
		DisplayName: display,
		Blend:       blend,
		Opacity:     opacity,
		BypassDNA:   spec.Options.BypassDNA,
	}, nil
}
