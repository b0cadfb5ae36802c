package engine

import (
	"net/url"
	"strconv"

	"pkghub/pkg/problems"
)

// Flags carries the per-request xRegistry query flags parsed by the HTTP
// middleware. A zero Flags value means "no transformation requested".
type Flags struct {
	// Filters is the parsed filter expression tree (OR of AND clauses).
	Filters Filter

	// RawFilters preserves the unparsed filter values for diagnostics.
	RawFilters []string

	// Sort is the requested ordering, nil when absent.
	Sort *SortSpec

	// Inline is the requested inline expansion.
	Inline InlineSpec

	// Limit is nil when the client did not paginate. A nil Limit suppresses
	// Link headers and returns the full result bounded by the adapter max.
	Limit *int

	// Offset into the filtered, sorted result. Defaults to 0.
	Offset int

	// Epoch restricts the result to entities whose epoch equals it.
	Epoch *int

	// Doc requests documentation attributes inline.
	Doc bool

	// Collections requests nested collection URLs in headers rather than
	// the body.
	Collections bool

	// SpecVersion is the client-requested spec version, echoed if supported.
	SpecVersion string
}

// ParseFlags extracts and validates the xRegistry query flags from a request
// query. Parse failures return a bad-request problem naming the offending
// parameter.
func ParseFlags(q url.Values) (Flags, error) {
	var f Flags

	if raw, ok := q["filter"]; ok {
		filters, err := ParseFilters(raw)
		if err != nil {
			return f, err
		}
		f.Filters = filters
		f.RawFilters = raw
	}

	if v := q.Get("sort"); v != "" {
		spec, err := ParseSort(v)
		if err != nil {
			return f, err
		}
		f.Sort = spec
	}

	if v := q.Get("inline"); v != "" {
		spec, err := ParseInline(v)
		if err != nil {
			return f, err
		}
		f.Inline = spec
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, problems.BadRequest("limit must be a positive integer, got %q", v)
		}
		f.Limit = &n
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, problems.BadRequest("offset must be a non-negative integer, got %q", v)
		}
		f.Offset = n
	}

	if v := q.Get("epoch"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, problems.BadRequest("epoch must be a positive integer, got %q", v)
		}
		f.Epoch = &n
	}

	if v := q.Get("doc"); v != "" {
		f.Doc = v == "true"
	}
	if v := q.Get("collections"); v != "" {
		f.Collections = v == "true"
	}
	f.SpecVersion = q.Get("specversion")

	return f, nil
}
