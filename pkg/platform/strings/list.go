// Package strings parses the comma-separated lists used in environment config.
package strings

import (
	"slices"
	"strings"
)

// SplitList splits a comma-separated value, trims each item and drops empty
// and repeated items. Order of first occurrence is kept.
//
//	SplitList(" k1:9092, k2:9092,,k1:9092") // ["k1:9092" "k2:9092"]
func SplitList(raw string) []string {
	return split(raw, func(s string) string { return s })
}

// SplitListLower is SplitList with items lowercased before deduplication,
// for case-insensitive values such as e-mail addresses.
func SplitListLower(raw string) []string {
	return split(raw, strings.ToLower)
}

func split(raw string, normalize func(string) string) []string {
	var out []string
	for item := range strings.SplitSeq(raw, ",") {
		item = normalize(strings.TrimSpace(item))
		if item == "" || slices.Contains(out, item) {
			continue
		}
		out = append(out, item)
	}
	return out
}
