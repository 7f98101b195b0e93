package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

// Resource adapts one store collection to list/create/update/delete
// endpoints. Patch types use pointer fields so absent keys stay untouched.
type Resource[T, P any] struct {
	Name string
	// Filtered returns the records matching the request's filter params.
	Filtered func(c *echo.Context) []T
	Get      func(id string) (T, bool)
	// Add reports false when the id is already taken.
	Add    func(T) bool
	Update func(id string, patch P)
	Remove func(id string)
	ID     func(*T) *string
	// Prepare validates a new record and fills defaults.
	Prepare func(*T) error
}

var errNameRequired = errors.New("name is required")

func (r Resource[T, P]) List(c *echo.Context) error {
	return c.JSON(http.StatusOK, paginateList(c, r.Filtered(c)))
}

func (r Resource[T, P]) Show(c *echo.Context) error {
	rec, ok := r.Get(pathID(c, "id"))
	if !ok {
		return renderNotFound(c)
	}
	return c.JSON(http.StatusOK, rec)
}

func (r Resource[T, P]) Create(c *echo.Context) error {
	var rec T
	if err := decodeJSON(c, &rec); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	id := r.ID(&rec)
	if *id == "" {
		*id = uuid.NewString()
	}
	if r.Prepare != nil {
		if err := r.Prepare(&rec); err != nil {
			return jsonError(c, http.StatusUnprocessableEntity, err.Error())
		}
	}
	if !r.Add(rec) {
		return jsonError(c, http.StatusConflict, r.Name+" "+*id+" already exists")
	}
	return c.JSON(http.StatusCreated, rec)
}

func (r Resource[T, P]) Patch(c *echo.Context) error {
	id := pathID(c, "id")
	if _, ok := r.Get(id); !ok {
		return renderNotFound(c)
	}
	var patch P
	if err := decodeJSON(c, &patch); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	r.Update(id, patch)
	updated, ok := r.Get(id)
	if !ok {
		return renderNotFound(c)
	}
	return c.JSON(http.StatusOK, updated)
}

func (r Resource[T, P]) Delete(c *echo.Context) error {
	id := pathID(c, "id")
	if _, ok := r.Get(id); !ok {
		return renderNotFound(c)
	}
	r.Remove(id)
	return c.NoContent(http.StatusNoContent)
}

// Register mounts the collection routes under g.
func (r Resource[T, P]) Register(g *echo.Group, prefix string, mw ...echo.MiddlewareFunc) {
	g.GET(prefix, r.List, mw...)
	g.POST(prefix, r.Create, mw...)
	g.GET(prefix+"/:id", r.Show, mw...)
	g.PATCH(prefix+"/:id", r.Patch, mw...)
	g.DELETE(prefix+"/:id", r.Delete, mw...)
}
