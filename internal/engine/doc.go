// Package engine implements the collection transformations shared by every
// adapter: filter expression parsing and evaluation, sorting with
// deterministic tie-breaking, inline expansion, and offset/limit pagination
// with RFC 5988 Link headers.
//
// Collections over a large name index use the two-phase evaluation in
// ApplyIndexed: the name phase intersects name constraints against the
// in-memory index to produce a bounded candidate superset, and the attribute
// phase loads full metadata (through the metadata cache) only for candidates
// that can still influence the response. Requests without a name constraint
// on such collections yield an empty 200 page with an X-xRegistry-Notice
// rather than an unbounded index scan.
package engine
