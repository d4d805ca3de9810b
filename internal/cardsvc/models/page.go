package models

// ListQuery selects one page of live cards.
type ListQuery struct {
	Page   int
	Limit  int
	Search string // matched against name, fathername, address, religion and cnic prefix
}

type Pagination struct {
	CurrentPage    int   `json:"currentPage"`
	TotalPages     int   `json:"totalPages"`
	TotalItems     int64 `json:"totalItems"`
	HasNextPage    bool  `json:"hasNextPage"`
	HasPrevPage    bool  `json:"hasPrevPage"`
	ItemsPerPage   int   `json:"itemsPerPage"`
	RemainingItems int64 `json:"remainingItems"`
}

type CardPage struct {
	Cards      []*Card    `json:"cards"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination computes the pagination block for a page of total items.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	var remaining int64
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
		// page*limit cannot overflow once page <= total/limit
		if page >= 0 && int64(page) <= total/int64(limit) {
			remaining = total - int64(page)*int64(limit)
		}
	}

	return Pagination{
		CurrentPage:    page,
		TotalPages:     totalPages,
		TotalItems:     total,
		HasNextPage:    remaining > 0,
		HasPrevPage:    page > 1,
		ItemsPerPage:   limit,
		RemainingItems: remaining,
	}
}
