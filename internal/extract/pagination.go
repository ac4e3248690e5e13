package extract

import (
	"errors"
	"fmt"
)

// Pagination bounds. Requests outside them are rejected, not clamped, so
// callers get predictable behavior.
const (
	MinPageSize = 1
	MaxPageSize = 10000
)

// Validation errors surfaced before any extraction work begins.
var (
	ErrInvalidPage     = errors.New("page must be >= 1")
	ErrInvalidPageSize = fmt.Errorf("page_size must be between %d and %d", MinPageSize, MaxPageSize)
)

// PageRequest is a caller-supplied page selection.
type PageRequest struct {
	Page     int
	PageSize int
}

// Validate rejects out-of-range pagination parameters.
func (p PageRequest) Validate() error {
	if p.Page < 1 {
		return ErrInvalidPage
	}
	if p.PageSize < MinPageSize || p.PageSize > MaxPageSize {
		return ErrInvalidPageSize
	}
	return nil
}

// PageInfo is the pagination metadata reported with every page.
type PageInfo struct {
	TotalElements int `json:"total_elements"`
	TotalPages    int `json:"total_pages"`
	CurrentPage   int `json:"current_page"`
	PageSize      int `json:"page_size"`
}

// Paginate computes the slice bounds for one page over total filtered
// elements. A page beyond the last yields start == end == total with
// correct metadata rather than an error.
func Paginate(total int, req PageRequest) (PageInfo, int, int) {
	info := PageInfo{
		TotalElements: total,
		TotalPages:    (total + req.PageSize - 1) / req.PageSize,
		CurrentPage:   req.Page,
		PageSize:      req.PageSize,
	}

	start := (req.Page - 1) * req.PageSize
	if start > total {
		start = total
	}
	end := start + req.PageSize
	if end > total {
		end = total
	}
	return info, start, end
}
