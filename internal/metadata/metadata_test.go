package metadata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/layerforge/internal/dna"
	"github.com/zjrosen/layerforge/internal/layers"
)

var fixedNow = func() time.Time { return time.UnixMilli(1700000000123) }

func resolvedFixture() []dna.Resolved {
	return []dna.Resolved{
		{Slot: layers.Slot{ID: 0, Name: "Background", DisplayName: "Background"}, Element: layers.Element{ID: 0, Name: "Black"}},
		{Slot: layers.Slot{ID: 1, Name: "Eye color", DisplayName: "Eyes"}, Element: layers.Element{ID: 2, Name: "Green"}},
	}
}

func mustParse(t *testing.T, s string) dna.DNA {
	t.Helper()
	d, err := dna.Parse(s)
	require.NoError(t, err)
	return d
}

func TestCollectTraits_SlotOrderAndDisplayName(t *testing.T) {
	traits := CollectTraits(resolvedFixture())
	require.Equal(t, []Trait{
		{TraitType: "Background", Value: "Black"},
		{TraitType: "Eyes", Value: "Green"},
	}, traits)
}

func TestBuild_Canonical(t *testing.T) {
	b := NewBuilder(Collection{
		NamePrefix:  "Eyes",
		Description: "A collection of eyes",
		BaseURI:     "ipfs://cid",
		Extra:       map[string]any{"creator": "studio"},
	}, fixedNow)
	d := mustParse(t, "0:Black#1.png-2:Green#5.png")

	rec := b.Build(d, 7, CollectTraits(resolvedFixture()))
	require.Equal(t, "Eyes #7", rec.Name)
	require.Equal(t, "ipfs://cid/7.png", rec.Image)
	require.Equal(t, d.Hash(), rec.DNA)
	require.Equal(t, int64(1700000000123), rec.Date)
	require.Equal(t, DefaultCompiler, rec.Compiler)

	raw, err := json.Marshal(b.Render(rec))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "studio", decoded["creator"])
	require.Equal(t, float64(7), decoded["edition"])
	require.Len(t, decoded["attributes"], 2)
	require.NotContains(t, decoded, "symbol")
}

func TestRecord_FixedFieldsWinOverExtra(t *testing.T) {
	rec := Record{Name: "real", Extra: map[string]any{"name": "shadow"}}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"name":"real"`)
	require.NotContains(t, string(raw), "shadow")
}

func TestBuild_DeterministicAcrossRuns(t *testing.T) {
	wire := "0:Black#1.png-2:Green#5.png?bypassDNA=true"
	first := NewBuilder(Collection{NamePrefix: "X"}, fixedNow).Build(mustParse(t, wire), 1, CollectTraits(resolvedFixture()))
	second := NewBuilder(Collection{NamePrefix: "X"}, fixedNow).Build(mustParse(t, wire), 1, CollectTraits(resolvedFixture()))

	require.Equal(t, first, second)

	reordered := NewBuilder(Collection{NamePrefix: "X"}, fixedNow).Build(mustParse(t, "2:Green#5.png?bypassDNA=true-0:Black#1.png"), 1, nil)
	require.NotEqual(t, first.DNA, reordered.DNA, "slot order is part of the content id")
}

func TestRender_Solana(t *testing.T) {
	b := NewBuilder(Collection{
		NamePrefix:  "Eyes",
		Description: "desc",
		BaseURI:     "ipfs://cid",
		Network:     NetworkSol,
		Extra:       map[string]any{"collection": "eyes"},
		Solana: Solana{
			Symbol:               "EYE",
			SellerFeeBasisPoints: 1000,
			ExternalURL:          "https://example.com",
			Creators:             []Creator{{Address: "addr", Share: 100}},
		},
	}, fixedNow)
	traits := CollectTraits(resolvedFixture())
	rec := b.Build(mustParse(t, "0:a.png-2:b.png"), 3, traits)

	rendered, ok := b.Render(rec).(SolanaRecord)
	require.True(t, ok)
	require.Equal(t, "Eyes #3", rendered.Name)
	require.Equal(t, "EYE", rendered.Symbol)
	require.Equal(t, "3.png", rendered.Image)
	require.Equal(t, []File{{URI: "3.png", Type: "image/png"}}, rendered.Properties.Files)
	require.Equal(t, "image", rendered.Properties.Category)
	require.Equal(t, traits, rendered.Attributes)

	// The canonical record is untouched by rendering.
	require.Equal(t, "ipfs://cid/3.png", rec.Image)

	raw, err := json.Marshal(rendered)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, float64(1000), decoded["seller_fee_basis_points"])
	require.Equal(t, "eyes", decoded["collection"])
	require.NotContains(t, decoded, "dna")
	require.NotContains(t, decoded, "compiler")
}
