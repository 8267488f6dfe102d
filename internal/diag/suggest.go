package diag

import (
	"fmt"
	"sort"
	"strings"
)

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// SuggestSimilar returns the candidates within edit-distance reach of name,
// closest first. Ties are ordered lexicographically so the result does not
// depend on candidate order.
func SuggestSimilar(name string, candidates []string) []string {
	type scored struct {
		name string
		dist int
	}

	limit := max(1, len([]rune(name))/3)
	var matches []scored
	seen := make(map[string]bool)
	for _, c := range candidates {
		if c == name || seen[c] {
			continue
		}
		seen[c] = true
		d := Levenshtein(strings.ToLower(name), strings.ToLower(c))
		if d <= limit {
			matches = append(matches, scored{c, d})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].name < matches[j].name
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}

// DidYouMean formats a hint for the closest candidate, or "" when nothing
// is close enough.
func DidYouMean(name string, candidates []string) string {
	s := SuggestSimilar(name, candidates)
	if len(s) == 0 {
		return ""
	}
	return fmt.Sprintf("did you mean '%s'?", s[0])
}
