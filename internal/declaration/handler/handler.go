package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"irpf/internal/declaration/models"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/platform/httputil"
	"irpf/pkg/requestcontext"
)

// Service defines the declaration operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, owner id.UserID, year int) (*models.Declaration, error)
	Get(ctx context.Context, owner id.UserID, year int) (*models.Declaration, error)
	List(ctx context.Context, owner id.UserID) ([]*models.Declaration, error)
	Aggregate(ctx context.Context, owner id.UserID, year int) (*models.AggregateView, error)
	Transition(ctx context.Context, owner id.UserID, year int, target models.Status) (*models.Declaration, error)
	Snapshots(ctx context.Context, owner id.UserID, year int) ([]*models.Snapshot, error)
	Delete(ctx context.Context, owner id.UserID, year int, detach bool) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts declaration endpoints on the router. Callers apply auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/declarations", h.HandleList)
	r.Post("/declarations/{year}", h.HandleCreate)
	r.Get("/declarations/{year}", h.HandleGet)
	r.Delete("/declarations/{year}", h.HandleDelete)
	r.Get("/declarations/{year}/aggregate", h.HandleAggregate)
	r.Post("/declarations/{year}/transitions", h.HandleTransition)
	r.Get("/declarations/{year}/snapshots", h.HandleSnapshots)
}

type listResponse struct {
	Declarations []*models.Declaration `json:"declarations"`
}

type snapshotsResponse struct {
	Snapshots []*models.Snapshot `json:"snapshots"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	out, err := h.service.List(ctx, owner)
	if err != nil {
		h.fail(ctx, "list declarations failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Declarations: out})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, year, ok := h.scope(w, r)
	if !ok {
		return
	}
	d, err := h.service.Create(ctx, owner, year)
	if err != nil {
		h.fail(ctx, "create declaration failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, year, ok := h.scope(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(ctx, owner, year)
	if err != nil {
		h.fail(ctx, "get declaration failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

// HandleDelete handles DELETE /declarations/{year}?detach_records=true.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, year, ok := h.scope(w, r)
	if !ok {
		return
	}
	detach := false
	if v := r.URL.Query().Get("detach_records"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "detach_records must be a boolean"))
			return
		}
		detach = parsed
	}
	if err := h.service.Delete(ctx, owner, year, detach); err != nil {
		h.fail(ctx, "delete declaration failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, year, ok := h.scope(w, r)
	if !ok {
		return
	}
	view, err := h.service.Aggregate(ctx, owner, year)
	if err != nil {
		h.fail(ctx, "build aggregate failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	owner, year, ok := h.scope(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.TransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	d, err := h.service.Transition(ctx, owner, year, req.Status())
	if err != nil {
		h.fail(ctx, "declaration transition failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, year, ok := h.scope(w, r)
	if !ok {
		return
	}
	snaps, err := h.service.Snapshots(ctx, owner, year)
	if err != nil {
		h.fail(ctx, "list snapshots failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snapshotsResponse{Snapshots: snaps})
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	owner := requestcontext.UserID(r.Context())
	if owner.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return owner, true
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (id.UserID, int, bool) {
	owner, ok := h.owner(w, r)
	if !ok {
		return id.UserID{}, 0, false
	}
	year, err := ParseYear(chi.URLParam(r, "year"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.UserID{}, 0, false
	}
	return owner, year, true
}

// ParseYear parses a path year and checks its range.
func ParseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid year")
	}
	if err := models.ValidateYear(year); err != nil {
		return 0, err
	}
	return year, nil
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
