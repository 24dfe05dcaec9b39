package shared

import (
	"math"
	"net/http"
	"strconv"
)

const defaultPerPage = 20

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Window returns the slice bounds of the current page, clamped to Total.
func (p Pagination) Window() (start, end int) {
	start = (p.Page - 1) * p.PerPage
	if start > p.Total {
		start = p.Total
	}
	end = start + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return start, end
}

// WriteHeaders exposes the metadata as X-Total-Count and X-Total-Pages.
func (p Pagination) WriteHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Total-Count", strconv.Itoa(p.Total))
	w.Header().Set("X-Total-Pages", strconv.Itoa(p.TotalPages))
}

// PaginationFromRequest reads page and perPage query parameters. ok is false
// when the request did not ask for a page, in which case callers return the
// full listing.
func PaginationFromRequest(r *http.Request, total int) (p Pagination, ok bool) {
	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("perPage") == "" {
		return Pagination{}, false
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	return NewPagination(page, perPage, total), true
}

// Paginate applies the request's page window to items and sets the headers.
func Paginate[T any](w http.ResponseWriter, r *http.Request, items []T) []T {
	p, ok := PaginationFromRequest(r, len(items))
	if !ok {
		return items
	}
	p.WriteHeaders(w)
	start, end := p.Window()
	return items[start:end]
}
