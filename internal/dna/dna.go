// Package dna encodes per-slot element selections into the delimited DNA
// string, parses it back into a typed form, tracks uniqueness across a run and
// resolves DNA into concrete elements.
//
// Wire format, one token per slot joined by "-":
//
//	<elementID>:<filename>[?bypassDNA=true]
//
// A token whose bypassDNA option is true is left out of the normalized form,
// so that slot never takes part in uniqueness checks.
package dna

import (
	"crypto/sha1" //nolint:gosec // content identifier, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/zjrosen/layerforge/internal/layers"
)

// BypassOption is the token option that excludes a slot from uniqueness.
const BypassOption = "bypassDNA"

// ErrMalformed is returned by Parse for a token that is not <id>:<filename>.
var ErrMalformed = errors.New("malformed dna")

// Token is the typed form of one slot's selection.
type Token struct {
	ElementID int
	Filename  string
	Options   url.Values
}

// Bypass reports whether the token is excluded from uniqueness checks.
func (t Token) Bypass() bool {
	return t.Options.Get(BypassOption) == "true"
}

func (t Token) String() string {
	s := strconv.Itoa(t.ElementID) + ":" + t.Filename
	if len(t.Options) > 0 {
		s += "?" + t.Options.Encode()
	}
	return s
}

// DNA is an ordered list of tokens, one per slot.
type DNA struct {
	Tokens []Token
}

// String returns the wire form.
func (d DNA) String() string {
	parts := make([]string, len(d.Tokens))
	for i, t := range d.Tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, layers.DNADelimiter)
}

// Normalized returns the wire form without bypass-marked tokens.
func (d DNA) Normalized() string {
	parts := make([]string, 0, len(d.Tokens))
	for _, t := range d.Tokens {
		if t.Bypass() {
			continue
		}
		parts = append(parts, t.String())
	}
	return strings.Join(parts, layers.DNADelimiter)
}

// Hash is the content identifier of the full DNA, bypass markers included.
func (d DNA) Hash() string {
	sum := sha1.Sum([]byte(d.String())) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// Len returns the number of slot tokens.
func (d DNA) Len() int { return len(d.Tokens) }

// Parse decodes a wire DNA string. Query-style options after "?" are kept on
// the token; the element id is everything before the first ":".
func Parse(s string) (DNA, error) {
	if s == "" {
		return DNA{}, fmt.Errorf("%w: empty string", ErrMalformed)
	}

	raw := strings.Split(s, layers.DNADelimiter)
	tokens := make([]Token, 0, len(raw))
	for i, part := range raw {
		tok, err := parseToken(part)
		if err != nil {
			return DNA{}, fmt.Errorf("%w: token %d %q: %v", ErrMalformed, i, part, err)
		}
		tokens = append(tokens, tok)
	}
	return DNA{Tokens: tokens}, nil
}

func parseToken(part string) (Token, error) {
	body, query, hasQuery := strings.Cut(part, "?")

	idText, filename, ok := strings.Cut(body, ":")
	if !ok {
		return Token{}, errors.New("missing ':'")
	}
	id, err := strconv.Atoi(idText)
	if err != nil {
		return Token{}, fmt.Errorf("element id: %w", err)
	}

	tok := Token{ElementID: id, Filename: filename}
	if hasQuery {
		opts, err := url.ParseQuery(query)
		if err != nil {
			return Token{}, fmt.Errorf("options: %w", err)
		}
		tok.Options = opts
	}
	return tok, nil
}

// NewToken builds the token for an element of slot.
func NewToken(slot layers.Slot, e layers.Element) Token {
	tok := Token{ElementID: e.ID, Filename: e.Filename}
	if slot.BypassDNA {
		tok.Options = url.Values{BypassOption: []string{"true"}}
	}
	return tok
}
