package pagination

// DefaultLimit is used when the caller does not ask for a page size
const DefaultLimit = 50

// Page is one page of a keyset listing.
type Page[T any] struct {
	Items   []T     `json:"items"`
	Next    *Cursor `json:"-"`
	HasMore bool    `json:"hasMore"`
}

// Empty returns a terminal page with no items.
func Empty[T any]() Page[T] {
	return Page[T]{Items: []T{}}
}

// NextToken returns the encoded continuation, or "" on the last page.
func (p Page[T]) NextToken() string {
	if p.Next == nil {
		return ""
	}
	return p.Next.Encode()
}

// Trim applies the limit+1 contract to rows fetched in listing order. When
// more than limit rows are present the extra row is dropped and the cursor
// is taken from the last row that is returned, so the continuation starts
// exactly at the dropped row.
func Trim[T any](rows []T, limit int, keyOf func(T) Cursor) Page[T] {
	if len(rows) <= limit {
		if rows == nil {
			rows = []T{}
		}
		return Page[T]{Items: rows}
	}

	items := rows[:limit]
	page := Page[T]{Items: items, HasMore: true}
	if limit > 0 {
		next := keyOf(items[limit-1])
		page.Next = &next
	}
	return page
}

// NormalizeLimit clamps a requested page size into [1, max].
func NormalizeLimit(limit, max int) int {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}
