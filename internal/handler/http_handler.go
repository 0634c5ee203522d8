package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
	"github.com/pesio-ai/be-print-rfq/internal/platform/logger"
	"github.com/pesio-ai/be-print-rfq/internal/repository"
	"github.com/pesio-ai/be-print-rfq/internal/service"
)

// UserIDHeader carries the acting user until authentication lands in front
// of the service.
const UserIDHeader = "X-User-ID"

// QuoteService is the RFQ lifecycle as seen by the transports.
type QuoteService interface {
	CreateQuoteRequest(ctx context.Context, in *service.CreateQuoteRequestInput) (*repository.QuoteRequest, error)
	DispatchQuoteRequest(ctx context.Context, requestID, dispatchedBy string) (*service.DispatchResult, error)
	RecordVendorQuote(ctx context.Context, in *service.RecordVendorQuoteInput) (*repository.ResponseResult, error)
	AwardQuoteToVendor(ctx context.Context, vendorQuoteID, awardedBy string) (*repository.AwardResult, error)
	CancelQuoteRequest(ctx context.Context, requestID, reason, cancelledBy string) (*repository.QuoteRequest, error)
	GetQuoteRequest(ctx context.Context, id string) (*repository.QuoteRequest, error)
	GetVendorQuote(ctx context.Context, id string) (*repository.VendorQuote, error)
	ListQuoteRequestsForJob(ctx context.Context, jobID string) ([]*repository.QuoteRequest, error)
	GetQuoteRequestHistory(ctx context.Context, requestID string) ([]*repository.QuoteRequestEvent, error)
	MatchVendors(ctx context.Context, jobID string, limit int) (*service.VendorMatchPreview, error)
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service QuoteService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(svc QuoteService, log *logger.Logger) *HTTPHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPHandler{
		service: svc,
		log:     log.Component("http"),
	}
}

// Register mounts the API routes on r.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Post("/quote-requests", h.CreateQuoteRequest)
			r.Get("/quote-requests", h.ListQuoteRequests)
			r.Get("/vendor-matches", h.MatchVendors)
		})
		r.Route("/quote-requests/{id}", func(r chi.Router) {
			r.Get("/", h.GetQuoteRequest)
			r.Get("/history", h.GetHistory)
			r.Post("/dispatch", h.Dispatch)
			r.Post("/cancel", h.Cancel)
		})
		r.Route("/vendor-quotes/{id}", func(r chi.Router) {
			r.Get("/", h.GetVendorQuote)
			r.Post("/response", h.RecordResponse)
			r.Post("/award", h.Award)
		})
	})
}

// Routes returns a router with only the API mounted.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateQuoteRequest handles create quote request HTTP requests
func (h *HTTPHandler) CreateQuoteRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateQuoteRequestBody
	if !h.decode(w, r, &body) {
		return
	}

	due, err := parseDueDate(body.DueDate)
	if err != nil {
		h.writeError(w, r, errors.InvalidInput("due_date", err.Error()))
		return
	}

	qr, err := h.service.CreateQuoteRequest(r.Context(), &service.CreateQuoteRequestInput{
		JobID:     chi.URLParam(r, "jobID"),
		VendorIDs: body.VendorIDs,
		DueDate:   due,
		CreatedBy: userID(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toQuoteRequestDTO(qr))
}

// ListQuoteRequests lists the quote requests of a job
func (h *HTTPHandler) ListQuoteRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListQuoteRequestsForJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"quote_requests": toQuoteRequestDTOs(list),
		"total":          len(list),
	})
}

// MatchVendors previews the vendor ranking for a job
func (h *HTTPHandler) MatchVendors(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			h.writeError(w, r, errors.InvalidInput("limit", "limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	preview, err := h.service.MatchVendors(r.Context(), chi.URLParam(r, "jobID"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMatchPreviewDTO(preview))
}

// GetQuoteRequest handles get quote request HTTP requests
func (h *HTTPHandler) GetQuoteRequest(w http.ResponseWriter, r *http.Request) {
	qr, err := h.service.GetQuoteRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toQuoteRequestDTO(qr))
}

// GetVendorQuote handles get vendor quote HTTP requests
func (h *HTTPHandler) GetVendorQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.GetVendorQuote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toVendorQuoteDTO(q))
}

// GetHistory returns the audit trail of a quote request
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.GetQuoteRequestHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": toEventDTOs(events)})
}

// Dispatch sends a quote request to its vendors
func (h *HTTPHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.DispatchQuoteRequest(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toDispatchDTO(res))
}

// Cancel withdraws a quote request
func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var body CancelBody
	if !h.decode(w, r, &body) {
		return
	}

	qr, err := h.service.CancelQuoteRequest(r.Context(), chi.URLParam(r, "id"), body.Reason, userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toQuoteRequestDTO(qr))
}

// RecordResponse stores a vendor's quote
func (h *HTTPHandler) RecordResponse(w http.ResponseWriter, r *http.Request) {
	var body RecordResponseBody
	if !h.decode(w, r, &body) {
		return
	}

	in, err := body.input(chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.RecordVendorQuote(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponseDTO(res))
}

// Award accepts a vendor quote
func (h *HTTPHandler) Award(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.AwardQuoteToVendor(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toAwardDTO(res))
}

// decode reads a JSON body. An empty body decodes as the zero value.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return false
	}
	return true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody(err)
	status := httpStatus(body.Code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]ErrorBody{"error": body})
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}
