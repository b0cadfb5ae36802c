package engine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Link is one RFC 5988 pagination link.
type Link struct {
	Rel    string
	URL    string
	Count  int
	Offset int
}

// slicePage returns the [offset, offset+limit) window of n items as start and
// end indexes. An out-of-range offset yields an empty window, not an error.
func slicePage(n, offset, limit int) (int, int) {
	if offset >= n {
		return n, n
	}
	end := offset + limit
	if end > n {
		end = n
	}
	return offset, end
}

// BuildLinks computes the first/prev/next/last navigation links for a
// paginated collection. The request URL is reused with only the offset (and
// limit) rewritten so filters and sort survive navigation. prev is omitted on
// the first page and next on the last.
func BuildLinks(requestURL *url.URL, limit, offset, total int) []Link {
	if limit <= 0 {
		return nil
	}

	lastOffset := 0
	if total > 0 {
		lastOffset = ((total - 1) / limit) * limit
	}

	links := []Link{{Rel: "first", Offset: 0}}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		links = append(links, Link{Rel: "prev", Offset: prev})
	}
	if offset+limit < total {
		links = append(links, Link{Rel: "next", Offset: offset + limit})
	}
	links = append(links, Link{Rel: "last", Offset: lastOffset})

	for i := range links {
		links[i].Count = total
		links[i].URL = withOffset(requestURL, links[i].Offset, limit)
	}
	return links
}

// FormatLinkHeader renders the links as one RFC 5988 Link header value with a
// count attribute on every link.
func FormatLinkHeader(links []Link) string {
	parts := make([]string, 0, len(links))
	for _, l := range links {
		parts = append(parts, fmt.Sprintf(`<%s>;rel=%q;count=%d`, l.URL, l.Rel, l.Count))
	}
	return strings.Join(parts, ",")
}

func withOffset(u *url.URL, offset, limit int) string {
	clone := *u
	q := clone.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	clone.RawQuery = q.Encode()
	return clone.String()
}
