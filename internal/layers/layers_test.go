package layers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

type mapCatalog map[string][]Element

func (m mapCatalog) Elements(_ context.Context, slot string) ([]Element, error) {
	elems, ok := m[slot]
	if !ok {
		return nil, errors.New("no such slot")
	}
	return elems, nil
}

func elems(names ...string) []Element {
	out := make([]Element, len(names))
	for i, n := range names {
		out[i] = Element{ID: i, Name: n, Filename: n + ".png", Weight: 1}
	}
	return out
}

func ptr(f float64) *float64 { return &f }

func TestBuild_Defaults(t *testing.T) {
	cat := mapCatalog{"Background": elems("Black"), "Eyeball": elems("Red", "White")}

	slots, err := Build(context.Background(), cat, []Spec{{Name: "Background"}, {Name: "Eyeball"}})
	require.NoError(t, err)
	require.Len(t, slots, 2)

	require.Equal(t, 0, slots[0].ID)
	require.Equal(t, "Background", slots[0].DisplayName)
	require.Equal(t, BlendNormal, slots[0].Blend)
	require.Equal(t, 1.0, slots[0].Opacity)
	require.False(t, slots[0].BypassDNA)
	require.Equal(t, 1, slots[1].ID)
	require.Len(t, slots[1].Elements, 2)
}

func TestBuild_Options(t *testing.T) {
	cat := mapCatalog{"Shine": elems("Shapes")}

	slots, err := Build(context.Background(), cat, []Spec{{
		Name: "Shine",
		Options: Options{
			DisplayName: "Glow",
			Blend:       "source-over",
			Opacity:     ptr(0),
			BypassDNA:   true,
		},
	}})
	require.NoError(t, err)
	require.Equal(t, "Glow", slots[0].DisplayName)
	require.Equal(t, BlendNormal, slots[0].Blend)
	require.Equal(t, 0.0, slots[0].Opacity, "explicit zero opacity is kept")
	require.True(t, slots[0].BypassDNA)
}

func TestBuild_Errors(t *testing.T) {
	cat := mapCatalog{"Empty": nil, "Ok": elems("A")}

	tests := []struct {
		name  string
		specs []Spec
		is    error
		msg   string
	}{
		{name: "no specs", specs: nil, is: ErrInvalidSlot, msg: "layers_order is empty"},
		{name: "blank name", specs: []Spec{{Name: " "}}, is: ErrInvalidSlot, msg: "name is required"},
		{name: "delimiter in name", specs: []Spec{{Name: "Top-lid"}}, is: ErrInvalidSlot, msg: "may not contain"},
		{name: "bad blend", specs: []Spec{{Name: "Ok", Options: Options{Blend: "glitter"}}}, is: ErrInvalidSlot, msg: "unknown blend mode"},
		{name: "opacity range", specs: []Spec{{Name: "Ok", Options: Options{Opacity: ptr(1.5)}}}, is: ErrInvalidSlot, msg: "opacity"},
		{name: "empty slot", specs: []Spec{{Name: "Ok"}, {Name: "Empty"}}, is: ErrEmptySlot, msg: "slot 1 (Empty)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), cat, tt.specs)
			require.ErrorIs(t, err, tt.is)
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseBlendMode(t *testing.T) {
	m, err := ParseBlendMode(" Multiply ")
	require.NoError(t, err)
	require.Equal(t, BlendMultiply, m)

	m, err = ParseBlendMode("")
	require.NoError(t, err)
	require.Equal(t, BlendNormal, m)
}

func TestSlot_TotalWeightAndLookup(t *testing.T) {
	s := Slot{Elements: []Element{{ID: 0, Weight: 3}, {ID: 1, Weight: 1.5}}}
	require.InDelta(t, 4.5, s.TotalWeight(), 1e-9)

	e, ok := s.ElementByID(1)
	require.True(t, ok)
	require.Equal(t, 1.5, e.Weight)

	_, ok = s.ElementByID(7)
	require.False(t, ok)
}

func TestCombinations_SkipsBypass(t *testing.T) {
	slots := []Slot{
		{Elements: elems("a", "b")},
		{Elements: elems("c", "d", "e"), BypassDNA: true},
		{Elements: elems("f", "g")},
	}
	require.Equal(t, 4, Combinations(slots))
	require.Equal(t, 0, Combinations(nil))
}

func TestCombinations_SaturatesOnOverflow(t *testing.T) {
	wide := make([]string, 1000)
	for i := range wide {
		wide[i] = fmt.Sprintf("e%d", i)
	}
	slots := make([]Slot, 12)
	for i := range slots {
		slots[i] = Slot{Elements: elems(wide...)}
	}
	require.Equal(t, math.MaxInt, Combinations(slots))

	slots = append(slots, Slot{Elements: elems("only")})
	require.Equal(t, math.MaxInt, Combinations(slots))
}
