package accounts

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ifarmer/ifarmer-api/internal/platform/httpx"
	"github.com/ifarmer/ifarmer-api/internal/registry"
)

// Handler serves account endpoints. Each request resolves a fresh component
// from the container.
type Handler struct {
	logger    *slog.Logger
	container *registry.Container
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, container *registry.Container) *Handler {
	return &Handler{logger: logger, container: container}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{email}", h.getAccount)
	r.Get("/roles", h.listRoles)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	directory, err := registry.Resolve[AccountDirectory](h.container)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	email := chi.URLParam(r, "email")
	if email == "" {
		httpx.RespondError(w, fmt.Errorf("%w: email is required", httpx.ErrValidation))
		return
	}
	account, err := directory.Lookup(r.Context(), email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	catalog, err := registry.Resolve[RoleCatalog](h.container)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	roles, err := catalog.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, chi.URLParam(r, "email")))
	case errors.Is(err, registry.ErrNotReady), errors.Is(err, registry.ErrNotRegistered), errors.Is(err, ErrReaderUnavailable):
		h.logger.Warn("component unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		h.logger.Error("account request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
