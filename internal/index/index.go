package index

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"pkghub/pkg/logging"
)

// trigramThreshold is the catalog size beyond which wildcard lookups go
// through the trigram index instead of a naive scan.
const trigramThreshold = 100_000

// Entry is one indexed package identifier. Normalized is the ecosystem's
// canonical lowercase form used for matching; Raw is the identifier as the
// upstream spells it.
type Entry struct {
	Normalized string
	Raw        string
}

// Snapshot is an immutable, fully built name index. All lookups run against
// one snapshot so a request observes a consistent catalog even while a
// refresh is rebuilding in the background.
type Snapshot struct {
	entries  []Entry
	trigrams *trigramIndex
}

// Build sorts the entries lexicographically by normalized name and, for
// catalogs above the trigram threshold, builds the trigram posting lists.
func Build(entries []Entry) *Snapshot {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Normalized < sorted[j].Normalized
	})
	// Drop duplicate normalized names; first raw spelling wins.
	deduped := sorted[:0]
	for i, e := range sorted {
		if i > 0 && sorted[i-1].Normalized == e.Normalized {
			continue
		}
		deduped = append(deduped, e)
	}
	s := &Snapshot{entries: deduped}
	if len(deduped) > trigramThreshold {
		s.trigrams = buildTrigrams(deduped)
	}
	return s
}

// Len returns the number of indexed names.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Lookup finds the entry whose normalized name equals name.
func (s *Snapshot) Lookup(name string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Normalized >= name
	})
	if i < len(s.entries) && s.entries[i].Normalized == name {
		return s.entries[i], true
	}
	return Entry{}, false
}

// Range returns the [offset, offset+limit) window of the lexicographic
// iteration, for pagination without filters.
func (s *Snapshot) Range(offset, limit int) []Entry {
	if s == nil || offset >= len(s.entries) {
		return nil
	}
	end := offset + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return s.entries[offset:end]
}

// Match returns up to max raw names whose normalized form matches the
// pattern. The pattern is an xRegistry filter literal: case-insensitive,
// with "*" matching any run of characters. Results come back in
// lexicographic order of the normalized name.
func (s *Snapshot) Match(pattern string, max int) []string {
	if s == nil || max <= 0 {
		return nil
	}
	p := strings.ToLower(pattern)

	if !strings.Contains(p, "*") {
		if e, ok := s.Lookup(p); ok {
			return []string{e.Raw}
		}
		return nil
	}

	if p == "*" || strings.Trim(p, "*") == "" {
		out := make([]string, 0, max)
		for _, e := range s.Range(0, max) {
			out = append(out, e.Raw)
		}
		return out
	}

	// A leading literal run narrows the scan to a prefix range.
	if star := strings.IndexByte(p, '*'); star > 0 && !strings.ContainsAny(p[:star], "*") {
		return s.matchInPrefix(p[:star], p, max)
	}

	if s.trigrams != nil {
		return s.trigrams.match(s.entries, p, max)
	}
	return s.scan(0, len(s.entries), p, max)
}

func (s *Snapshot) matchInPrefix(prefix, pattern string, max int) []string {
	lo := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Normalized >= prefix
	})
	hi := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Normalized > prefix+"\xff\xff\xff\xff"
	})
	return s.scan(lo, hi, pattern, max)
}

func (s *Snapshot) scan(lo, hi int, pattern string, max int) []string {
	re := compileWildcard(pattern)
	out := make([]string, 0)
	for i := lo; i < hi && len(out) < max; i++ {
		if re.MatchString(s.entries[i].Normalized) {
			out = append(out, s.entries[i].Raw)
		}
	}
	return out
}

// Index holds the live snapshot behind an atomic pointer. Readers load the
// pointer once per request; the refresher is the only writer.
type Index struct {
	ptr atomic.Pointer[Snapshot]
}

// New creates an Index serving an empty snapshot until the first swap.
func New() *Index {
	idx := &Index{}
	idx.ptr.Store(Build(nil))
	return idx
}

// Snapshot returns the current snapshot.
func (i *Index) Snapshot() *Snapshot {
	return i.ptr.Load()
}

// Swap atomically replaces the live snapshot.
func (i *Index) Swap(s *Snapshot) {
	i.ptr.Store(s)
}

// Match implements engine.NameMatcher against the current snapshot.
func (i *Index) Match(pattern string, max int) []string {
	return i.Snapshot().Match(pattern, max)
}

// Len returns the size of the current snapshot.
func (i *Index) Len() int {
	return i.Snapshot().Len()
}

// Loader fetches the full upstream catalog for one adapter.
type Loader func(ctx context.Context) ([]Entry, error)

// Refresh builds a new snapshot from the loader and swaps it in. The old
// snapshot keeps serving until the swap.
func (i *Index) Refresh(ctx context.Context, name string, load Loader) error {
	started := time.Now()
	entries, err := load(ctx)
	if err != nil {
		return err
	}
	i.Swap(Build(entries))
	logging.Info("Index", "%s index refreshed: %d names in %s", name, len(entries), time.Since(started).Round(time.Millisecond))
	return nil
}

// RunRefresher refreshes the index on the given cadence until ctx is done.
// A failed refresh leaves the previous snapshot serving and is retried at
// the next tick.
func (i *Index) RunRefresher(ctx context.Context, name string, interval time.Duration, load Loader) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := i.Refresh(ctx, name, load); err != nil {
				logging.Warn("Index", "%s index refresh failed, serving previous snapshot: %v", name, err)
			}
		}
	}
}
