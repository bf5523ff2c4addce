package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"diocese/internal/audit"
	"diocese/internal/transport/http/shared"
	"diocese/pkg/apperrors"
)

// Service defines the ledger read surface the handler needs.
type Service interface {
	Query(ctx context.Context, filter audit.Filter, page audit.Page) (audit.PageResult, error)
}

// Handler serves the audit activity feed.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the activity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/activity", h.handleQuery)
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, page, err := parseQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.service.Query(ctx, filter, page)
	if err != nil {
		h.logger.ErrorContext(ctx, "activity query failed", "error", err)
		shared.WriteError(w, err)
		return
	}
	if result.Entries == nil {
		result.Entries = []audit.Entry{}
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func parseQuery(r *http.Request) (audit.Filter, audit.Page, error) {
	q := r.URL.Query()

	filter := audit.Filter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		ActorID:    q.Get("user_id"),
	}

	if actions := q.Get("action"); actions != "" {
		for _, raw := range strings.Split(actions, ",") {
			action := audit.Action(strings.TrimSpace(raw))
			switch action {
			case audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete, audit.ActionTransfer:
				filter.Actions = append(filter.Actions, action)
			default:
				return audit.Filter{}, audit.Page{},
					apperrors.Newf(apperrors.CodeValidation, "unknown action %q", raw)
			}
		}
	}

	var err error
	if filter.Start, err = parseTime(q.Get("start_date")); err != nil {
		return audit.Filter{}, audit.Page{}, apperrors.New(apperrors.CodeValidation,
			"start_date must be YYYY-MM-DD or RFC 3339")
	}
	if filter.End, err = parseTime(q.Get("end_date")); err != nil {
		return audit.Filter{}, audit.Page{}, apperrors.New(apperrors.CodeValidation,
			"end_date must be YYYY-MM-DD or RFC 3339")
	}
	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.End.Before(filter.Start) {
		return audit.Filter{}, audit.Page{}, apperrors.New(apperrors.CodeValidation, "end_date precedes start_date")
	}

	page := audit.Page{
		Page:  parseInt(q.Get("page")),
		Limit: parseInt(q.Get("limit")),
	}
	return filter, page, nil
}

// parseTime accepts a bare date or a full RFC 3339 timestamp, matching the
// transfer boundary.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func parseInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
