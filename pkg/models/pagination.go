package models

// PageRequest carries pagination parameters for list operations.
type PageRequest struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Normalize clamps the request to sane defaults and bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}

	if p.Limit < 1 {
		p.Limit = defaultPageLimit
	}

	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}

	return p
}

// Offset returns the zero-based item offset for the request.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageInfo describes one page of a list response.
type PageInfo struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPageInfo builds page metadata for a total item count.
func NewPageInfo(req PageRequest, total int) PageInfo {
	totalPages := total / req.Limit
	if total%req.Limit != 0 {
		totalPages++
	}

	return PageInfo{
		Page:       req.Page,
		Limit:      req.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
