package dto

type ProductFilters struct {
	ProductType string
	IsActive    *bool
	SearchQuery string // name or sku
	SortBy      string // name, created_at
	SortOrder   string // asc, desc
	Page        int
	PageSize    int
}

// Normalize clamps paging to sane bounds.
func (f *ProductFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}
