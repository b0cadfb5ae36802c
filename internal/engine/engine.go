package engine

import (
	"context"
	"net/url"
	"sort"

	"pkghub/pkg/problems"
	"pkghub/pkg/xregistry"
)

// Opts tunes the collection engine per adapter.
type Opts struct {
	// DefaultLimit is the page size applied to inlined collections and to
	// other bounded expansions when the client did not choose one.
	DefaultLimit int

	// MaxLimit caps the client-requested limit and bounds unpaginated
	// responses.
	MaxLimit int

	// CandidateLimit bounds the name-phase candidate superset on indexed
	// collections.
	CandidateLimit int

	// RequireNameFilter marks collections backed by a large name index:
	// requests without a name constraint return an empty page with a notice
	// rather than scanning the index.
	RequireNameFilter bool
}

// DefaultOpts are the engine defaults shared by every adapter.
func DefaultOpts() Opts {
	return Opts{
		DefaultLimit:   50,
		MaxLimit:       100,
		CandidateLimit: 2000,
	}
}

// NoticeNameFilterRequired is the X-xRegistry-Notice text accompanying an
// empty page when the mandatory name constraint is missing.
const NoticeNameFilterRequired = "filters on this collection must constrain the 'name' attribute; returning an empty result"

// Result is the outcome of applying the per-request transformations to a
// collection.
type Result struct {
	Page   []xregistry.Entity
	Total  int
	Links  []Link
	Notice string
}

// NameMatcher is the subset of the name index the engine consumes during the
// name phase. Match returns raw names, sorted lexicographically, whose
// normalized form matches the (possibly wildcarded) pattern.
type NameMatcher interface {
	Match(pattern string, max int) []string
}

// EntityLoader materializes the full entity for one raw name, typically via
// the metadata cache. A not-found problem drops the candidate silently.
type EntityLoader func(ctx context.Context, name string) (xregistry.Entity, error)

// Apply runs filter, sort, and pagination over an already materialized
// collection and reports the page plus navigation links. The engine never
// mutates items.
func Apply(items []xregistry.Entity, flags Flags, opts Opts, requestURL *url.URL) Result {
	opts = withDefaults(opts)

	survivors := make([]xregistry.Entity, 0, len(items))
	for _, e := range items {
		if !flags.Filters.Matches(e) {
			continue
		}
		if flags.Epoch != nil && e.Epoch() != *flags.Epoch {
			continue
		}
		survivors = append(survivors, e)
	}

	Sort(survivors, flags.Sort)
	return paginate(survivors, flags, opts, requestURL)
}

// ApplyIndexed runs the two-phase evaluation for collections backed by a
// large name index: the name phase intersects name constraints against the
// index and the attribute phase loads metadata only as far as needed.
func ApplyIndexed(ctx context.Context, idx NameMatcher, load EntityLoader, flags Flags, opts Opts, requestURL *url.URL) (Result, error) {
	opts = withDefaults(opts)

	var candidates []string
	if flags.Filters.HasNameConstraint() {
		candidates = namePhase(idx, flags.Filters.NameConstraints(), opts.CandidateLimit)
	} else if opts.RequireNameFilter {
		return Result{Page: []xregistry.Entity{}, Notice: NoticeNameFilterRequired}, nil
	} else {
		candidates = idx.Match("*", opts.CandidateLimit)
	}

	if !needsAttributePhase(flags) {
		// Every predicate was answered by the index; metadata is needed for
		// the returned window only.
		total := len(candidates)
		start, end := window(total, flags, opts)
		page := make([]xregistry.Entity, 0, end-start)
		for _, name := range candidates[start:end] {
			e, err := load(ctx, name)
			if err != nil {
				if problems.IsKind(err, problems.KindNotFound) {
					continue
				}
				return Result{}, err
			}
			page = append(page, e)
		}
		return finishIndexed(page, total, flags, opts, requestURL), nil
	}

	survivors := make([]xregistry.Entity, 0, len(candidates))
	for _, name := range candidates {
		e, err := load(ctx, name)
		if err != nil {
			if problems.IsKind(err, problems.KindNotFound) {
				continue
			}
			return Result{}, err
		}
		if !flags.Filters.Matches(e) {
			continue
		}
		if flags.Epoch != nil && e.Epoch() != *flags.Epoch {
			continue
		}
		survivors = append(survivors, e)
	}

	Sort(survivors, flags.Sort)
	return paginate(survivors, flags, opts, requestURL), nil
}

// namePhase produces the lexicographically sorted candidate superset: the
// union over OR clauses of the intersection of each clause's name patterns.
func namePhase(idx NameMatcher, constraints [][]Expr, max int) []string {
	seen := map[string]bool{}
	for _, exprs := range constraints {
		if len(exprs) == 0 {
			continue
		}
		var clauseSet map[string]bool
		for _, expr := range exprs {
			matches := idx.Match(expr.Literal, max)
			if clauseSet == nil {
				clauseSet = make(map[string]bool, len(matches))
				for _, m := range matches {
					clauseSet[m] = true
				}
				continue
			}
			next := make(map[string]bool, len(clauseSet))
			for _, m := range matches {
				if clauseSet[m] {
					next[m] = true
				}
			}
			clauseSet = next
		}
		for name := range clauseSet {
			seen[name] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > max {
		names = names[:max]
	}
	return names
}

// needsAttributePhase reports whether any predicate cannot be answered from
// the name index alone.
func needsAttributePhase(flags Flags) bool {
	if flags.Epoch != nil {
		return true
	}
	if flags.Sort != nil && flags.Sort.Attr != "name" {
		return true
	}
	if flags.Sort != nil && flags.Sort.Descending {
		return true
	}
	for _, clause := range flags.Filters {
		for _, expr := range clause {
			if expr.Attr != "name" || expr.Op != OpEqual || expr.Literal == "null" {
				return true
			}
		}
	}
	return false
}

func paginate(survivors []xregistry.Entity, flags Flags, opts Opts, requestURL *url.URL) Result {
	total := len(survivors)
	start, end := window(total, flags, opts)
	res := Result{Page: survivors[start:end], Total: total}
	if flags.Limit != nil {
		res.Links = BuildLinks(requestURL, effectiveLimit(flags, opts), flags.Offset, total)
	}
	return res
}

func finishIndexed(page []xregistry.Entity, total int, flags Flags, opts Opts, requestURL *url.URL) Result {
	res := Result{Page: page, Total: total}
	if flags.Limit != nil {
		res.Links = BuildLinks(requestURL, effectiveLimit(flags, opts), flags.Offset, total)
	}
	return res
}

func effectiveLimit(flags Flags, opts Opts) int {
	if flags.Limit == nil {
		return opts.MaxLimit
	}
	if *flags.Limit > opts.MaxLimit {
		return opts.MaxLimit
	}
	return *flags.Limit
}

func window(total int, flags Flags, opts Opts) (int, int) {
	offset := 0
	if flags.Limit != nil {
		offset = flags.Offset
	}
	return slicePage(total, offset, effectiveLimit(flags, opts))
}

func withDefaults(opts Opts) Opts {
	d := DefaultOpts()
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = d.DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = d.MaxLimit
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = d.CandidateLimit
	}
	return opts
}
