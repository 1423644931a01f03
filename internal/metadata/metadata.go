// Package metadata derives trait records from a resolved DNA and assembles
// the per-edition metadata in the canonical shape or the Solana shape.
package metadata

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/zjrosen/layerforge/internal/dna"
)

// Network selects the rendered record shape.
type Network string

const (
	NetworkEth Network = "eth"
	NetworkSol Network = "sol"
)

// DefaultCompiler is written to the compiler field of canonical records.
const DefaultCompiler = "layerforge"

// Trait is one attribute entry.
type Trait struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// CollectTraits returns one trait per resolved slot in slot order.
func CollectTraits(resolved []dna.Resolved) []Trait {
	traits := make([]Trait, len(resolved))
	for i, r := range resolved {
		traits[i] = Trait{TraitType: r.Slot.DisplayName, Value: r.Element.Name}
	}
	return traits
}

// Record is the canonical per-edition metadata.
type Record struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Image       string         `json:"image"`
	DNA         string         `json:"dna"`
	Edition     int            `json:"edition"`
	Date        int64          `json:"date"`
	Extra       map[string]any `json:"-"`
	Attributes  []Trait        `json:"attributes"`
	Compiler    string         `json:"compiler"`
}

// MarshalJSON merges Extra into the top-level object.
// Fixed fields win over extra keys with the same name.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+9)
	maps.Copy(out, r.Extra)
	out["name"] = r.Name
	out["description"] = r.Description
	out["image"] = r.Image
	out["dna"] = r.DNA
	out["edition"] = r.Edition
	out["date"] = r.Date
	out["attributes"] = r.Attributes
	out["compiler"] = r.Compiler
	return json.Marshal(out)
}

// Creator is a Solana royalty recipient.
type Creator struct {
	Address string `json:"address" mapstructure:"address"`
	Share   int    `json:"share" mapstructure:"share"`
}

// File is a Solana properties file entry.
type File struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

// Properties is the Solana properties block.
type Properties struct {
	Files    []File    `json:"files"`
	Category string    `json:"category"`
	Creators []Creator `json:"creators"`
}

// SolanaRecord is the alternate marketplace shape.
type SolanaRecord struct {
	Name                 string         `json:"name"`
	Symbol               string         `json:"symbol"`
	Description          string         `json:"description"`
	SellerFeeBasisPoints int            `json:"seller_fee_basis_points"`
	Image                string         `json:"image"`
	ExternalURL          string         `json:"external_url"`
	Edition              int            `json:"edition"`
	Extra                map[string]any `json:"-"`
	Attributes           []Trait        `json:"attributes"`
	Properties           Properties     `json:"properties"`
}

// MarshalJSON merges Extra into the top-level object like Record does.
func (r SolanaRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+10)
	maps.Copy(out, r.Extra)
	out["name"] = r.Name
	out["symbol"] = r.Symbol
	out["description"] = r.Description
	out["seller_fee_basis_points"] = r.SellerFeeBasisPoints
	out["image"] = r.Image
	out["external_url"] = r.ExternalURL
	out["edition"] = r.Edition
	out["attributes"] = r.Attributes
	out["properties"] = r.Properties
	return json.Marshal(out)
}

// Solana holds the fields only the Solana shape carries.
type Solana struct {
	Symbol               string
	SellerFeeBasisPoints int
	ExternalURL          string
	Creators             []Creator
}

// Collection holds the collection-wide inputs of every record.
type Collection struct {
	NamePrefix  string
	Description string
	BaseURI     string
	Extra       map[string]any
	Compiler    string
	Network     Network
	Solana      Solana
}

// Builder assembles records for one collection. Safe for reuse across
// editions; it holds no per-edition state.
type Builder struct {
	collection Collection
	now        func() time.Time
}

// NewBuilder returns a builder stamping records with now.
func NewBuilder(c Collection, now func() time.Time) *Builder {
	if c.Compiler == "" {
		c.Compiler = DefaultCompiler
	}
	if c.Network == "" {
		c.Network = NetworkEth
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{collection: c, now: now}
}

// Build returns the canonical record of an accepted edition.
func (b *Builder) Build(d dna.DNA, edition int, traits []Trait) Record {
	return Record{
		Name:        fmt.Sprintf("%s #%d", b.collection.NamePrefix, edition),
		Description: b.collection.Description,
		Image:       fmt.Sprintf("%s/%d.png", b.collection.BaseURI, edition),
		DNA:         d.Hash(),
		Edition:     edition,
		Date:        b.now().UnixMilli(),
		Extra:       maps.Clone(b.collection.Extra),
		Attributes:  append([]Trait(nil), traits...),
		Compiler:    b.collection.Compiler,
	}
}

// Render returns the value to persist for r in the configured network shape.
func (b *Builder) Render(r Record) any {
	if b.collection.Network != NetworkSol {
		return r
	}
	return b.solana(r)
}

func (b *Builder) solana(r Record) SolanaRecord {
	image := fmt.Sprintf("%d.png", r.Edition)
	creators := make([]Creator, len(b.collection.Solana.Creators))
	copy(creators, b.collection.Solana.Creators)
	return SolanaRecord{
		Name:                 r.Name,
		Symbol:               b.collection.Solana.Symbol,
		Description:          r.Description,
		SellerFeeBasisPoints: b.collection.Solana.SellerFeeBasisPoints,
		Image:                image,
		ExternalURL:          b.collection.Solana.ExternalURL,
		Edition:              r.Edition,
		Extra:                maps.Clone(r.Extra),
		Attributes:           append([]Trait(nil), r.Attributes...),
		Properties: Properties{
			Files:    []File{{URI: image, Type: "image/png"}},
			Category: "image",
			Creators: creators,
		},
	}
}
