package engine

import (
	"sort"
	"strings"

	"pkghub/pkg/problems"
	"pkghub/pkg/xregistry"
)

// SortSpec is a parsed "attr[=asc|=desc]" sort parameter.
type SortSpec struct {
	Attr       string
	Descending bool
}

// ParseSort parses the sort query parameter.
func ParseSort(value string) (*SortSpec, error) {
	attr := value
	desc := false
	if idx := strings.IndexByte(value, '='); idx >= 0 {
		attr = value[:idx]
		switch dir := value[idx+1:]; dir {
		case "asc", "":
			desc = false
		case "desc":
			desc = true
		default:
			return nil, problems.BadRequest("sort direction must be asc or desc, got %q", dir)
		}
	}
	if !attrPathPattern.MatchString(attr) {
		return nil, problems.BadRequest("unparseable sort attribute %q", attr)
	}
	return &SortSpec{Attr: attr, Descending: desc}, nil
}

// Sort orders entities by the spec's attribute, breaking ties by ascending
// xid so responses are deterministic. Entities missing the attribute sort
// after those carrying it regardless of direction. A nil spec sorts by xid.
func Sort(items []xregistry.Entity, spec *SortSpec) {
	sort.SliceStable(items, func(i, j int) bool {
		if spec != nil {
			vi, oki := items[i].Attr(spec.Attr)
			vj, okj := items[j].Attr(spec.Attr)
			switch {
			case oki && !okj:
				return true
			case !oki && okj:
				return false
			case oki && okj:
				cmp := compareValues(stringify(vi), stringify(vj))
				if cmp != 0 {
					if spec.Descending {
						return cmp > 0
					}
					return cmp < 0
				}
			}
		}
		return items[i].XID() < items[j].XID()
	})
}
