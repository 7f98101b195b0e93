package handlers

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/opsboard/opsboard/internal/store"
)

const maxPerPage = 200

// listResponse is the envelope of every paginated collection endpoint.
type listResponse[T any] struct {
	Items      []T              `json:"items"`
	Pagination store.Pagination `json:"pagination"`
}

func parsePageParam(c *echo.Context) int {
	page := 1
	if rawPage := strings.TrimSpace(c.QueryParam("page")); rawPage != "" {
		if parsed, err := strconv.Atoi(rawPage); err == nil && parsed > 0 {
			page = parsed
		}
	}
	return page
}

func parsePerPageParam(c *echo.Context) int {
	perPage := store.DefaultPageSize
	if raw := strings.TrimSpace(c.QueryParam("per_page")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			perPage = min(parsed, maxPerPage)
		}
	}
	return perPage
}

// paginateList pages an already filtered collection per the request's
// page and per_page parameters.
func paginateList[T any](c *echo.Context, filtered []T) listResponse[T] {
	p := store.Paginate(store.Pagination{Page: parsePageParam(c), PageSize: parsePerPageParam(c)}, len(filtered))
	return listResponse[T]{Items: store.PageOf(filtered, p), Pagination: p}
}
