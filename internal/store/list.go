package store

import "strings"

const DefaultPageSize = 25

// Pagination describes one page of a filtered collection. Total and
// TotalPages are always derived via Paginate.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// DefaultPagination is page 1 of an empty collection.
func DefaultPagination() Pagination {
	return Pagination{Page: 1, PageSize: DefaultPageSize, Total: 0, TotalPages: 1}
}

// Paginate recomputes the totals for total records and clamps the page into
// range.
func Paginate(p Pagination, total int) Pagination {
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if total < 0 {
		total = 0
	}
	totalPages := (total + p.PageSize - 1) / p.PageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > totalPages {
		p.Page = totalPages
	}
	p.Total = total
	p.TotalPages = totalPages
	return p
}

// Offset is the index of the first record on the current page.
func (p Pagination) Offset() int {
	if p.Page < 1 || p.PageSize < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// PageOf returns the slice of items on page p.
func PageOf[T any](items []T, p Pagination) []T {
	offset := p.Offset()
	if offset >= len(items) {
		return []T{}
	}
	end := offset + p.PageSize
	if p.PageSize < 1 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// FindByID returns the first item whose id matches.
func FindByID[T any](items []T, id string, idOf func(T) string) (T, bool) {
	for _, item := range items {
		if idOf(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// UpdateByID returns a copy of items with fn applied to the item whose id
// matches, plus the updated item. ok is false when no item matched, in which
// case items is returned unchanged.
func UpdateByID[T any](items []T, id string, idOf func(T) string, fn func(T) T) (out []T, updated T, ok bool) {
	for i, item := range items {
		if idOf(item) != id {
			continue
		}
		out = make([]T, len(items))
		copy(out, items)
		updated = fn(item)
		out[i] = updated
		return out, updated, true
	}
	return items, updated, false
}

// RemoveWhere returns a copy of items without those matching drop.
func RemoveWhere[T any](items []T, drop func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !drop(item) {
			out = append(out, item)
		}
	}
	return out
}

// Append returns a new slice with item after items.
func Append[T any](items []T, item T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, items...)
	return append(out, item)
}

// Prepend returns a new slice with item before items.
func Prepend[T any](items []T, item T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, item)
	return append(out, items...)
}

// AppendUnique appends item unless a record with its id is present. The
// bool reports whether item was added.
func AppendUnique[T any](items []T, item T, idOf func(T) string) ([]T, bool) {
	if _, exists := FindByID(items, idOf(item), idOf); exists {
		return items, false
	}
	return Append(items, item), true
}

// PrependUnique is AppendUnique for newest-first collections.
func PrependUnique[T any](items []T, item T, idOf func(T) string) ([]T, bool) {
	if _, exists := FindByID(items, idOf(item), idOf); exists {
		return items, false
	}
	return Prepend(items, item), true
}

// Unique returns a copy of items keeping the first record for each id.
func Unique[T any](items []T, idOf func(T) string) []T {
	seen := make(map[string]bool, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		id := idOf(item)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, item)
	}
	return out
}

// Clone copies items so a snapshot never aliases a caller's slice.
func Clone[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// MatchesSearch reports whether any field contains query, case-insensitively.
// An empty query matches everything.
func MatchesSearch(query string, fields ...string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// MatchesEqual reports whether want is unset or equal to got (case-insensitive).
func MatchesEqual(want, got string) bool {
	want = strings.TrimSpace(want)
	return want == "" || strings.EqualFold(want, strings.TrimSpace(got))
}
