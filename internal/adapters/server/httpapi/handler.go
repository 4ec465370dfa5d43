// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/fieldwork/internal/adapters/server/common"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.Service
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(service common.Service) *Handler {
	return &Handler{service: service}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "api service is not configured",
		})
		return
	}

	path := normalizePath(r.URL.Path)
	switch path {
	case "activities":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListActivities(w, r)
		return
	case "honor/compute":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleComputeHonor(w, r)
		return
	case "honor/limit":
		switch r.Method {
		case http.MethodGet:
			h.handleGetHonorLimit(w, r)
		case http.MethodPut:
			h.handleSetHonorLimit(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPut)
		}
		return
	case "honor/limit/check":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleCheckHonorLimit(w, r)
		return
	case "recap":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleMonthlyRecap(w, r)
		return
	}

	activityID, sub, ok := resolveActivityRoute(path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
		return
	}
	switch sub {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGetActivity(w, r, activityID)
	case "status":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleActivityStatus(w, r, activityID)
	case "stage":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleSetStageValue(w, r, activityID)
	case "events":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListEvents(w, r, activityID)
	case "documents":
		switch r.Method {
		case http.MethodGet:
			h.handleListDocuments(w, r, activityID)
		case http.MethodPost:
			h.handleUpsertDocument(w, r, activityID)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleListActivities serves GET `/activities`.
func (h *Handler) handleListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.service.ListActivities(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activities": activities,
	})
}

// handleGetActivity serves GET `/activities/{id}`.
func (h *Handler) handleGetActivity(w http.ResponseWriter, r *http.Request, activityID string) {
	activity, err := h.service.GetActivity(r.Context(), activityID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// handleActivityStatus serves GET `/activities/{id}/status`.
func (h *Handler) handleActivityStatus(w http.ResponseWriter, r *http.Request, activityID string) {
	status, err := h.service.ActivityStatus(r.Context(), activityID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSetStageValue serves POST `/activities/{id}/stage`.
func (h *Handler) handleSetStageValue(w http.ResponseWriter, r *http.Request, activityID string) {
	var req common.SetStageValueRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ActivityID = activityID
	assignment, err := h.service.SetStageValue(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

// handleListEvents serves GET `/activities/{id}/events`.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request, activityID string) {
	req := common.ListEventsRequest{ActivityID: activityID}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		req.Limit = limit
	}
	events, err := h.service.ListProgressEvents(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
	})
}

// handleListDocuments serves GET `/activities/{id}/documents`.
func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request, activityID string) {
	docs, err := h.service.ListDocuments(r.Context(), activityID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
	})
}

// handleUpsertDocument serves POST `/activities/{id}/documents`.
func (h *Handler) handleUpsertDocument(w http.ResponseWriter, r *http.Request, activityID string) {
	var req common.UpsertDocumentRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ActivityID = activityID
	doc, err := h.service.UpsertDocument(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleComputeHonor serves POST `/honor/compute`.
func (h *Handler) handleComputeHonor(w http.ResponseWriter, r *http.Request) {
	var req common.ComputeHonorRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.service.ComputeHonor(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetHonorLimit serves GET `/honor/limit`.
func (h *Handler) handleGetHonorLimit(w http.ResponseWriter, r *http.Request) {
	limit, err := h.service.GetHonorLimit(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limit)
}

// handleSetHonorLimit serves PUT `/honor/limit`.
func (h *Handler) handleSetHonorLimit(w http.ResponseWriter, r *http.Request) {
	var req common.SetHonorLimitRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	limit, err := h.service.SetHonorLimit(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limit)
}

// handleCheckHonorLimit serves POST `/honor/limit/check`.
func (h *Handler) handleCheckHonorLimit(w http.ResponseWriter, r *http.Request) {
	var req common.LimitCheckRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.service.ValidateHonorLimit(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleMonthlyRecap serves GET `/recap?period=YYYY-MM`.
func (h *Handler) handleMonthlyRecap(w http.ResponseWriter, r *http.Request) {
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	if period == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "period is required",
			Hint:    "Pass period as YYYY-MM.",
		})
		return
	}
	recap, err := h.service.MonthlyRecap(r.Context(), period)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recap)
}

// resolveActivityRoute parses `activities/{id}[/{sub}]`.
func resolveActivityRoute(path string) (string, string, bool) {
	const prefix = "activities/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) > 2 {
		return "", "", false
	}
	id := strings.TrimSpace(parts[0])
	if id == "" {
		return "", "", false
	}
	if len(parts) == 1 {
		return id, "", true
	}
	return id, parts[1], true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrLedgerRejected):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "ledger_rejected",
			Message: err.Error(),
			Hint:    "Move units one stage at a time; the first stage is derived.",
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, APIError{
			Code:    "forbidden",
			Message: err.Error(),
			Hint:    "Changing the honor limit needs an admin identity.",
		})
	case errors.Is(err, common.ErrScheduleIncomplete):
		writeJSONError(w, http.StatusUnprocessableEntity, APIError{
			Code:    "insufficient_schedule_info",
			Message: err.Error(),
			Hint:    "Set a payment month or a data collection start date.",
		})
	case errors.Is(err, common.ErrLimitExceeded):
		writeJSONError(w, http.StatusUnprocessableEntity, APIError{
			Code:    "honor_limit_exceeded",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInconsistentState):
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "inconsistent_state",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
