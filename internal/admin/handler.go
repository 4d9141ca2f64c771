package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	declarationHandler "irpf/internal/declaration/handler"
	declarationModels "irpf/internal/declaration/models"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/platform/httputil"
	"irpf/pkg/requestcontext"
)

// AdminService is the review surface exposed over HTTP.
type AdminService interface {
	ListUsers(ctx context.Context) (*UsersListResponse, error)
	ListDeclarations(ctx context.Context, year int) (*DeclarationsListResponse, error)
	UserAggregate(ctx context.Context, userID id.UserID, year int) (*declarationModels.AggregateView, error)
}

type Handler struct {
	service AdminService
	logger  *slog.Logger
}

func NewHandler(service AdminService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts admin endpoints. Callers apply auth and admin middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/users", h.HandleListUsers)
	r.Get("/admin/declarations", h.HandleListDeclarations)
	r.Get("/admin/users/{id}/aggregate/{year}", h.HandleUserAggregate)
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.ListUsers(ctx)
	if err != nil {
		h.fail(ctx, "admin list users failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleListDeclarations handles GET /admin/declarations?year=2024.
func (h *Handler) HandleListDeclarations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	year, err := declarationHandler.ParseYear(r.URL.Query().Get("year"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.ListDeclarations(ctx, year)
	if err != nil {
		h.fail(ctx, "admin list declarations failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleUserAggregate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}
	year, err := declarationHandler.ParseYear(chi.URLParam(r, "year"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.UserAggregate(ctx, userID, year)
	if err != nil {
		h.fail(ctx, "admin aggregate view failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) fail(ctx context.Context, msg string, err error) {
	args := []any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx).String(),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}
