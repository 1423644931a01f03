package metadata

import "sort"

// TraitCount is how often one trait value occurs in a collection.
type TraitCount struct {
	TraitType string
	Value     string
	Count     int
	Percent   float64 // of all editions, 0..100
}

// Tally counts trait values over the attribute lists of a collection. Trait
// types keep their first-seen order; values within a type are sorted by
// count, most common first, then by name.
func Tally(attributes [][]Trait) []TraitCount {
	type key struct{ traitType, value string }
	counts := make(map[key]int)
	var typeOrder []string
	seenType := make(map[string]bool)
	for _, attrs := range attributes {
		for _, t := range attrs {
			if !seenType[t.TraitType] {
				seenType[t.TraitType] = true
				typeOrder = append(typeOrder, t.TraitType)
			}
			counts[key{t.TraitType, t.Value}]++
		}
	}

	rank := make(map[string]int, len(typeOrder))
	for i, tt := range typeOrder {
		rank[tt] = i
	}

	total := len(attributes)
	out := make([]TraitCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, TraitCount{
			TraitType: k.traitType,
			Value:     k.value,
			Count:     n,
			Percent:   100 * float64(n) / float64(total),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TraitType != b.TraitType {
			return rank[a.TraitType] < rank[b.TraitType]
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Value < b.Value
	})
	return out
}
