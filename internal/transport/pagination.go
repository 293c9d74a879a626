package transport

import (
	"net/http"
	"strconv"

	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/google/uuid"
)

// PageMeta is the pagination envelope echoed back on every list response
type PageMeta struct {
	Count       int `json:"count"`
	Total       int `json:"total"`
	TotalPages  int `json:"total_pages"`
	CurrentPage int `json:"current_page"`
}

func newPageMeta(count, total, page, limit int) PageMeta {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return PageMeta{
		Count:       count,
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: page,
	}
}

// parsePagination reads page and limit query parameters. The service layer
// clamps them to page >= 1 and limit 1..100.
func parsePagination(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = 10
	}
	return page, limit
}

// principalFromContext builds the service principal from the auth middleware
// context values
func principalFromContext(r *http.Request) (service.Principal, bool) {
	idStr, ok := middleware.GetUserID(r.Context())
	if !ok {
		return service.Principal{}, false
	}

	role, ok := middleware.GetUserRole(r.Context())
	if !ok {
		return service.Principal{}, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return service.Principal{}, false
	}

	return service.Principal{ID: id, Role: role}, true
}
