package pagination

import (
	"fmt"
)

// Kind identifies the envelope shape of a feed.
type Kind string

const (
	// KindCursor feeds report a total page count.
	KindCursor Kind = "cursor"

	// KindRoll feeds report no total page count.
	KindRoll Kind = "roll"
)

// Query describes one pagination run. Only Page changes while the run
// advances.
type Query struct {
	Kind Kind

	// TopicID selects the tag (cursor) or lid (roll) category.
	TopicID int

	// Page is the first page to request, starting at 1.
	Page int

	// PageSize is the number of items requested per page.
	PageSize int

	// MaxPage is the last page the caller is willing to request,
	// independent of any total the upstream reports.
	MaxPage int
}

// Validate checks the query bounds.
func (q Query) Validate() error {
	switch q.Kind {
	case KindCursor, KindRoll:
	default:
		return fmt.Errorf("unknown feed kind %q", q.Kind)
	}
	if q.Page < 1 {
		return fmt.Errorf("page must be >= 1 (got %d)", q.Page)
	}
	if q.PageSize < 1 {
		return fmt.Errorf("page_size must be >= 1 (got %d)", q.PageSize)
	}
	if q.MaxPage < q.Page {
		return fmt.Errorf("max_page must be >= page (got %d < %d)", q.MaxPage, q.Page)
	}
	return nil
}

// WithPage returns a copy of q pointing at page.
func (q Query) WithPage(page int) Query {
	q.Page = page
	return q
}

// RawItem is one upstream record. Its schema differs per feed.
type RawItem map[string]any

// Accumulator collects items across the pages of a single run.
// It only grows, and keeps arrival order.
type Accumulator struct {
	items []RawItem
}

// Append adds the items of one page.
func (a *Accumulator) Append(items []RawItem) {
	a.items = append(a.items, items...)
}

// Len returns the number of collected items.
func (a *Accumulator) Len() int {
	return len(a.items)
}

// Items returns the collected items in arrival order.
func (a *Accumulator) Items() []RawItem {
	out := make([]RawItem, len(a.items))
	copy(out, a.items)
	return out
}
