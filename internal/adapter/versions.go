package adapter

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// HighestStable picks the highest stable semantic version among ids. When no
// id parses as a stable version the highest pre-release wins, and when
// nothing parses at all the lexicographically largest id is returned. An
// empty slice yields "".
func HighestStable(ids []string) string {
	var bestStable, bestPre *semver.Version
	var bestStableID, bestPreID string
	for _, id := range ids {
		v, err := semver.NewVersion(id)
		if err != nil {
			continue
		}
		if v.Prerelease() == "" {
			if bestStable == nil || v.GreaterThan(bestStable) {
				bestStable, bestStableID = v, id
			}
		} else if bestPre == nil || v.GreaterThan(bestPre) {
			bestPre, bestPreID = v, id
		}
	}
	if bestStableID != "" {
		return bestStableID
	}
	if bestPreID != "" {
		return bestPreID
	}
	var best string
	for _, id := range ids {
		if id > best {
			best = id
		}
	}
	return best
}

// SortVersionIDs orders ids ascending, semver-aware where both sides parse
// and lexicographic otherwise, so version collections page deterministically.
func SortVersionIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		vi, ei := semver.NewVersion(ids[i])
		vj, ej := semver.NewVersion(ids[j])
		if ei == nil && ej == nil {
			return vi.LessThan(vj)
		}
		return ids[i] < ids[j]
	})
}
