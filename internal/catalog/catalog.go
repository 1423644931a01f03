// Package catalog discovers the candidate elements of a layer slot from a
// directory listing. Each file is named <name>[<delimiter><weight>]<ext>; the
// weight defaults to 1 when absent or unparsable.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zjrosen/layerforge/internal/layers"
	"github.com/zjrosen/layerforge/internal/log"
)

// DefaultRarityDelimiter separates an element name from its weight.
const DefaultRarityDelimiter = "#"

// ErrInvalidElement is returned when a file in a slot directory cannot be
// used as an element.
var ErrInvalidElement = errors.New("invalid layer element")

// ElementError describes the offending file.
type ElementError struct {
	Slot     string
	Filename string
	Reason   string
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("layer %s: element %q %s", e.Slot, e.Filename, e.Reason)
}

func (e *ElementError) Unwrap() error { return ErrInvalidElement }

// Catalog reads slot directories below a layers root.
type Catalog struct {
	root      string
	delimiter string
}

// New returns a catalog rooted at dir. An empty delimiter selects
// DefaultRarityDelimiter.
func New(dir, rarityDelimiter string) *Catalog {
	if rarityDelimiter == "" {
		rarityDelimiter = DefaultRarityDelimiter
	}
	return &Catalog{root: dir, delimiter: rarityDelimiter}
}

// Root returns the layers directory.
func (c *Catalog) Root() string { return c.root }

// Elements lists the elements of one slot in discovery order. Hidden files
// and subdirectories are skipped.
func (c *Catalog) Elements(ctx context.Context, slot string) ([]layers.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(c.root, slot)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading layer directory %s: %w", dir, err)
	}

	elements := make([]layers.Element, 0, len(entries))
	for _, entry := range entries {
		filename := entry.Name()
		if entry.IsDir() || isHidden(filename) {
			continue
		}
		if strings.Contains(filename, layers.DNADelimiter) || strings.ContainsAny(filename, ":?") {
			return nil, &ElementError{Slot: slot, Filename: filename, Reason: fmt.Sprintf("may not contain %q, \":\" or \"?\"", layers.DNADelimiter)}
		}

		weight := c.weight(filename)
		if weight <= 0 || math.IsInf(weight, 0) {
			return nil, &ElementError{Slot: slot, Filename: filename, Reason: fmt.Sprintf("has non-positive weight %v", weight)}
		}

		elements = append(elements, layers.Element{
			ID:       len(elements),
			Name:     c.cleanName(filename),
			Filename: filename,
			Path:     filepath.Join(dir, filename),
			Weight:   weight,
		})
	}

	log.Debug(log.CatCatalog, "Loaded layer elements", "slot", slot, "count", len(elements))
	return elements, nil
}

// cleanName strips the extension and the rarity suffix.
func (c *Catalog) cleanName(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	name, _, _ := strings.Cut(base, c.delimiter)
	return name
}

// weight parses the text after the last delimiter.
func (c *Catalog) weight(filename string) float64 {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	idx := strings.LastIndex(base, c.delimiter)
	if idx < 0 {
		return 1
	}
	w, err := strconv.ParseFloat(base[idx+len(c.delimiter):], 64)
	if err != nil || math.IsNaN(w) {
		return 1
	}
	return w
}

// isHidden matches dot-files such as .DS_Store but not "." or "..".
func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.' && name[1] != '.'
}

// Slots lists the subdirectories of the layers root in name order. Used to
// seed a layers_order when writing a fresh configuration.
func (c *Catalog) Slots() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("reading layers directory %s: %w", c.root, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !isHidden(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
