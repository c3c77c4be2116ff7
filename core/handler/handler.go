// Package handler adapts HTTP requests to resource store calls.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/calm/core/httpapi"
	"github.com/artpar/calm/core/service"
	"github.com/artpar/calm/core/storage"
)

// IDParam is the URL parameter carrying the record identity.
const IDParam = "id"

// Service is the store a Handler delegates to.
type Service interface {
	Create(ctx context.Context, data map[string]any) (map[string]any, error)
	List(ctx context.Context, filter storage.Filter, opts service.ListOptions) (*service.Page, error)
	GetByID(ctx context.Context, id string) (map[string]any, error)
	Update(ctx context.Context, id string, data map[string]any) (map[string]any, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// Handler serves the five CRUD operations of one resource.
type Handler struct {
	svc Service
}

// New creates a handler for svc.
func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

// List handles GET on the collection path.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()

	filter := storage.Filter{}
	for key, values := range query {
		if key == "page" || key == "limit" || len(values) == 0 {
			continue
		}
		filter[key] = values[0]
	}

	page, err := h.svc.List(r.Context(), filter, service.ListOptions{
		Page:  atoi(query.Get("page")),
		Limit: atoi(query.Get("limit")),
	})
	if err != nil {
		return err
	}

	httpapi.Success(w, http.StatusOK, page)
	return nil
}

// Get handles GET on the item path.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) error {
	rec, err := h.svc.GetByID(r.Context(), chi.URLParam(r, IDParam))
	if err != nil {
		return err
	}

	httpapi.Success(w, http.StatusOK, rec)
	return nil
}

// Create handles POST on the collection path.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) error {
	var data map[string]any
	if err := httpapi.DecodeJSON(r, &data); err != nil {
		return err
	}

	rec, err := h.svc.Create(r.Context(), data)
	if err != nil {
		return err
	}

	httpapi.Success(w, http.StatusCreated, rec)
	return nil
}

// Update handles PUT on the item path.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) error {
	var data map[string]any
	if err := httpapi.DecodeJSON(r, &data); err != nil {
		return err
	}

	rec, err := h.svc.Update(r.Context(), chi.URLParam(r, IDParam), data)
	if err != nil {
		return err
	}

	httpapi.Success(w, http.StatusOK, rec)
	return nil
}

// Delete handles DELETE on the item path.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) error {
	deleted, err := h.svc.DeleteByID(r.Context(), chi.URLParam(r, IDParam))
	if err != nil {
		return err
	}

	httpapi.Success(w, http.StatusOK, map[string]bool{"deleted": deleted})
	return nil
}

// atoi returns 0 for anything that is not an integer, leaving the default
// to the store.
func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
