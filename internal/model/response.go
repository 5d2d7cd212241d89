package model

// Response is the envelope every JSON endpoint answers with. Data is omitted
// on errors; Message is omitted on plain reads.
type Response struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination computes the page count for total items split by limit.
func NewPagination(total int64, page, limit int) *Pagination {
	p := &Pagination{Total: total, Page: page, Limit: limit}
	if limit > 0 {
		p.TotalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return p
}
