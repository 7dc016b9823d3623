package domain

// SearchFilter describes the supported read-query filters. Zero values mean
// "not filtered". Discount filters implicitly restrict to paid items.
type SearchFilter struct {
	Genre           string
	Publisher       string
	Developer       string
	NamePrefix      string
	IsFree          *bool
	DiscountPercent *int
	MinDiscount     *int
	MaxDiscount     *int
	// IncludeAllTypes lifts both the primary-type restriction and the
	// unknown-classification exclusion.
	IncludeAllTypes bool
}

// Pagination is the page metadata returned with every search result.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// SearchResult is a page of games plus its pagination metadata.
type SearchResult struct {
	Items      []Game     `json:"items"`
	Pagination Pagination `json:"pagination"`
}
