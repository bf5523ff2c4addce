package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"diocese/internal/transfer"
	"diocese/internal/transport/http/shared"
	"diocese/pkg/apperrors"
)

// Service defines the coordinator surface the handler needs.
type Service interface {
	Transfer(ctx context.Context, req transfer.Request) (transfer.Result, error)
	History(ctx context.Context, personCode string, transferType transfer.Type) ([]transfer.Record, error)
}

// Handler serves the transfer boundary.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the transfer routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transfers", h.handleTransfer)
	r.Get("/transfers", h.handleHistory)
}

type transferRequest struct {
	TransferType   string `json:"transfer_type"`
	PersonID       string `json:"person_id"`
	ToZoneID       string `json:"to_zone_id"`
	ToDepartmentID string `json:"to_department_id"`
	Reason         string `json:"reason"`
	TransferDate   string `json:"transfer_date"`
	IdempotencyKey string `json:"idempotency_key"`
}

type transferResponse struct {
	TransferType string `json:"transfer_type"`
	PersonID     string `json:"person_id"`
	FromZoneID   string `json:"from_zone_id"`
	ToZoneID     string `json:"to_zone_id"`
	TransferDate string `json:"transfer_date"`
	State        string `json:"state"`
	Replayed     bool   `json:"replayed,omitempty"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, apperrors.New(apperrors.CodeValidation, "invalid request body"))
		return
	}

	effectiveDate, err := parseDate(req.TransferDate)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	result, err := h.service.Transfer(ctx, transfer.Request{
		Type:           transfer.Type(req.TransferType),
		PersonCode:     req.PersonID,
		ToZone:         req.ToZoneID,
		ToDepartment:   req.ToDepartmentID,
		Reason:         req.Reason,
		EffectiveDate:  effectiveDate,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "transfer rejected",
			"person_id", req.PersonID, "to_zone", req.ToZoneID, "error", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, transferResponse{
		TransferType: string(result.Record.Type),
		PersonID:     result.Record.PersonCode,
		FromZoneID:   result.Record.FromZone,
		ToZoneID:     result.Record.ToZone,
		TransferDate: result.Record.EffectiveDate.Format("2006-01-02"),
		State:        string(result.State),
		Replayed:     result.Replayed,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var transferType transfer.Type
	if raw := q.Get("transfer_type"); raw != "" {
		parsed, err := transfer.ParseType(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		transferType = parsed
	}

	records, err := h.service.History(r.Context(), q.Get("person_id"), transferType)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if records == nil {
		records = []transfer.Record{}
	}
	shared.WriteJSON(w, http.StatusOK, records)
}

// parseDate accepts a bare date or a full RFC 3339 timestamp.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, apperrors.New(apperrors.CodeValidation, "transfer_date is required")
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, apperrors.New(apperrors.CodeValidation, "transfer_date must be YYYY-MM-DD or RFC 3339")
}
