package index

import (
	"regexp"
	"strings"
)

// trigramIndex maps each 3-byte substring of a normalized name to the
// positions of the entries containing it. Wildcard queries intersect the
// posting lists of the pattern's literal runs and verify only the survivors,
// which keeps multi-hundred-thousand-name catalogs answerable.
type trigramIndex struct {
	postings map[string][]int32
}

func buildTrigrams(entries []Entry) *trigramIndex {
	postings := map[string][]int32{}
	for i, e := range entries {
		seen := map[string]bool{}
		for _, t := range trigramsOf(e.Normalized) {
			if seen[t] {
				continue
			}
			seen[t] = true
			postings[t] = append(postings[t], int32(i))
		}
	}
	return &trigramIndex{postings: postings}
}

func trigramsOf(s string) []string {
	if len(s) < 3 {
		return nil
	}
	out := make([]string, 0, len(s)-2)
	for i := 0; i+3 <= len(s); i++ {
		out = append(out, s[i:i+3])
	}
	return out
}

// match answers a wildcard pattern. When no literal run yields a usable
// trigram the query degrades to a bounded linear scan.
func (t *trigramIndex) match(entries []Entry, pattern string, max int) []string {
	var candidate []int32
	seeded := false
	for _, run := range strings.Split(pattern, "*") {
		for _, tri := range trigramsOf(run) {
			list := t.postings[tri]
			if !seeded {
				candidate = list
				seeded = true
				continue
			}
			candidate = intersect(candidate, list)
			if len(candidate) == 0 {
				return nil
			}
		}
	}

	re := compileWildcard(pattern)
	out := make([]string, 0)
	if !seeded {
		for i := 0; i < len(entries) && len(out) < max; i++ {
			if re.MatchString(entries[i].Normalized) {
				out = append(out, entries[i].Raw)
			}
		}
		return out
	}
	// Posting lists are position-ordered, which is also lexicographic order.
	for _, idx := range candidate {
		if len(out) >= max {
			break
		}
		if re.MatchString(entries[idx].Normalized) {
			out = append(out, entries[idx].Raw)
		}
	}
	return out
}

func intersect(a, b []int32) []int32 {
	out := make([]int32, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// compileWildcard turns a lowercase "*"-wildcard pattern into an anchored
// regexp with every other metacharacter escaped.
func compileWildcard(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`^` + strings.Join(parts, ".*") + `$`)
}
