package shared

import (
	"math"
	"net/http"
	"strconv"
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 10
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// PageFromRequest parses page/pageSize query parameters. Both the snake
// style (page, page_size) and the UI style (pageNo, pageSize) are accepted.
func PageFromRequest(r *http.Request) (page, perPage int) {
	q := r.URL.Query()
	page = parsePositive(q.Get("page"), parsePositive(q.Get("pageNo"), 1))
	perPage = parsePositive(q.Get("page_size"), parsePositive(q.Get("pageSize"), 10))
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

func parsePositive(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
