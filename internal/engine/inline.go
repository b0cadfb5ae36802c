package engine

import (
	"context"
	"strconv"
	"strings"

	"pkghub/pkg/problems"
	"pkghub/pkg/xregistry"
)

// InlineSpec is a parsed inline query parameter: a comma list of collection
// names, "*" for every nested collection, or an integer depth.
type InlineSpec struct {
	// All inlines every nested collection the entity declares.
	All bool

	// Depth bounds the recursion. Zero means inlining is off entirely;
	// name-list and "*" forms default to 1.
	Depth int

	names map[string]bool
}

// ParseInline parses the inline query parameter value.
func ParseInline(value string) (InlineSpec, error) {
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 {
			return InlineSpec{}, problems.BadRequest("inline depth must be non-negative, got %d", n)
		}
		return InlineSpec{All: true, Depth: n}, nil
	}
	if value == "*" {
		return InlineSpec{All: true, Depth: 1}, nil
	}
	spec := InlineSpec{Depth: 1, names: map[string]bool{}}
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		spec.names[name] = true
	}
	return spec, nil
}

// Active reports whether any inlining is requested at the current depth.
func (s InlineSpec) Active() bool {
	return s.Depth > 0 && (s.All || len(s.names) > 0)
}

// Wants reports whether the named collection should be attached.
// Unrecognized names in the request are silently ignored by callers simply
// never asking about them.
func (s InlineSpec) Wants(name string) bool {
	if s.Depth <= 0 {
		return false
	}
	if s.All {
		return true
	}
	if s.names[name] {
		return true
	}
	// Dotted form (e.g. "packages.versions") addresses a nested collection.
	for n := range s.names {
		if strings.HasPrefix(n, name+".") {
			return true
		}
	}
	return false
}

// Child derives the spec that applies inside an inlined member of the named
// collection: depth decremented, dotted names descended.
func (s InlineSpec) Child(name string) InlineSpec {
	child := InlineSpec{All: s.All, Depth: s.Depth - 1}
	if len(s.names) > 0 {
		child.names = map[string]bool{}
		for n := range s.names {
			if rest, ok := strings.CutPrefix(n, name+"."); ok {
				child.names[rest] = true
				if child.Depth < 1 {
					child.Depth = 1
				}
			}
		}
	}
	return child
}

// CollectionLoader produces the bounded member map of one nested collection.
// Implementations apply the engine's pagination defaults so inlining never
// triggers unbounded fetches.
type CollectionLoader func(ctx context.Context) (map[string]xregistry.Entity, error)

// Expand attaches the requested nested collections onto a copy of the entity.
// loaders maps collection names the entity actually declares to their
// loaders; requested names with no loader are ignored.
func Expand(ctx context.Context, e xregistry.Entity, spec InlineSpec, loaders map[string]CollectionLoader) (xregistry.Entity, error) {
	if !spec.Active() {
		return e, nil
	}
	out := e.Clone()
	for name, load := range loaders {
		if !spec.Wants(name) {
			continue
		}
		members, err := load(ctx)
		if err != nil {
			return nil, err
		}
		out[name] = members
	}
	return out, nil
}
