package domain

// Cursor is the pagination position handed to a source. Offset based
// providers read Offset, page based providers read Page (1-based).
type Cursor struct {
	Offset int
	Page   int
}

// Page is one fetched page of raw records.
type Page struct {
	Records []RawRecord
	// HasMore is the provider's own signal that further pages exist.
	HasMore bool
	// Total is the provider's total-count hint, 0 when unknown.
	Total int
	// Size is the page size actually requested, after provider limits.
	Size int
	Next Cursor
}
