package types

// Page is a paginated list response
type Page[T any] struct {
	ResultTotal int64 `json:"resultTotal"`
	PageCount   int   `json:"pageCount"`
	Page        int   `json:"page"`
	PageSize    int   `json:"pageSize"`
	Values      []T   `json:"values"`
}

// NewPage creates a new paginated response
func NewPage[T any](values []T, page, pageSize int, totalCount int64) *Page[T] {
	if pageSize <= 0 {
		pageSize = 1
	}
	if page < 1 {
		page = 1
	}
	if totalCount < 0 {
		totalCount = 0
	}
	if values == nil {
		values = []T{}
	}

	var pageCount int
	if totalCount > 0 {
		pageCount = int((totalCount + int64(pageSize) - 1) / int64(pageSize)) // Ceiling division
	}

	return &Page[T]{
		ResultTotal: totalCount,
		PageCount:   pageCount,
		Page:        page,
		PageSize:    pageSize,
		Values:      values,
	}
}

// PageParams are the page and page_size query parameters.
type PageParams struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Sort     string `form:"sort"`
}

// Normalize applies the defaults: page 1, 25 per page, at most 100.
func (p PageParams) Normalize() PageParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 25
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return p
}

func (p PageParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}
