package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"irpf/internal/records/models"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/platform/httputil"
	"irpf/pkg/requestcontext"
)

// Service defines the record operations exposed over HTTP.
type Service interface {
	ListRecords(ctx context.Context, owner id.UserID, filter models.Filter) ([]*models.Record, error)
	GetRecord(ctx context.Context, owner id.UserID, category models.Category, recordID id.RecordID) (*models.Record, error)
	CreateRecord(ctx context.Context, owner id.UserID, category models.Category, in models.RecordInput) (*models.Record, error)
	UpdateRecord(ctx context.Context, owner id.UserID, category models.Category, recordID id.RecordID, in models.RecordInput) (*models.Record, error)
	DeleteRecord(ctx context.Context, owner id.UserID, category models.Category, recordID id.RecordID) error
	DisposeRecord(ctx context.Context, owner id.UserID, category models.Category, recordID id.RecordID) (*models.Record, error)
}

// Handler wires record endpoints to the record service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts record endpoints on the router. Callers apply auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/records/{category}", h.HandleList)
	r.Post("/records/{category}", h.HandleCreate)
	r.Get("/records/{category}/{id}", h.HandleGet)
	r.Put("/records/{category}/{id}", h.HandleUpdate)
	r.Delete("/records/{category}/{id}", h.HandleDelete)
	r.Post("/records/{category}/{id}/dispose", h.HandleDispose)
}

type listResponse struct {
	Records []*models.Record `json:"records"`
}

// HandleList handles GET /records/{category}?year=&period=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, category, ok := h.scope(w, r)
	if !ok {
		return
	}

	filter := models.Filter{Category: category}
	if y := r.URL.Query().Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year < 1900 || year > 9999 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid year"))
			return
		}
		filter.Year = year
	}
	if p := r.URL.Query().Get("period"); p != "" {
		period, err := models.ParsePeriod(p)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid period, expected YYYY-MM"))
			return
		}
		filter.Period = period
	}

	records, err := h.service.ListRecords(ctx, owner, filter)
	if err != nil {
		h.fail(ctx, "list records failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Records: records})
}

// HandleCreate handles POST /records/{category}.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	owner, category, ok := h.scope(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.CreateRecord(ctx, owner, category, req.Input())
	if err != nil {
		h.fail(ctx, "create record failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

// HandleGet handles GET /records/{category}/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, category, recordID, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetRecord(ctx, owner, category, recordID)
	if err != nil {
		h.fail(ctx, "get record failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleUpdate handles PUT /records/{category}/{id}. Omitted fields keep
// their stored values.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	owner, category, recordID, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.RecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.UpdateRecord(ctx, owner, category, recordID, req.Input())
	if err != nil {
		h.fail(ctx, "update record failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleDelete handles DELETE /records/{category}/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, category, recordID, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRecord(ctx, owner, category, recordID); err != nil {
		h.fail(ctx, "delete record failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDispose handles POST /records/{category}/{id}/dispose.
func (h *Handler) HandleDispose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, category, recordID, ok := h.recordScope(w, r)
	if !ok {
		return
	}
	rec, err := h.service.DisposeRecord(ctx, owner, category, recordID)
	if err != nil {
		h.fail(ctx, "dispose record failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (id.UserID, models.Category, bool) {
	owner := requestcontext.UserID(r.Context())
	if owner.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, "", false
	}
	category, ok := models.ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown record category"))
		return id.UserID{}, "", false
	}
	return owner, category, true
}

func (h *Handler) recordScope(w http.ResponseWriter, r *http.Request) (id.UserID, models.Category, id.RecordID, bool) {
	owner, category, ok := h.scope(w, r)
	if !ok {
		return id.UserID{}, "", id.RecordID{}, false
	}
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "record not found"))
		return id.UserID{}, "", id.RecordID{}, false
	}
	return owner, category, recordID, true
}

// fail logs client errors at warn and everything else at error.
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
