package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-print-rfq/internal/matching"
	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
	"github.com/pesio-ai/be-print-rfq/internal/repository"
	"github.com/pesio-ai/be-print-rfq/internal/service"
)

// QuoteRequestDTO is the wire form of a quote request.
type QuoteRequestDTO struct {
	ID                   string            `json:"id"`
	JobID                string            `json:"job_id"`
	RequestNumber        string            `json:"request_number"`
	Status               string            `json:"status"`
	Specification        matching.JobSpec  `json:"specification"`
	RequiredServices     []string          `json:"required_services"`
	DueDate              *string           `json:"due_date,omitempty"`
	SentAt               *time.Time        `json:"sent_at,omitempty"`
	AwardedAt            *time.Time        `json:"awarded_at,omitempty"`
	AwardedVendorQuoteID *string           `json:"awarded_vendor_quote_id,omitempty"`
	CancelledAt          *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason         *string           `json:"cancel_reason,omitempty"`
	CreatedBy            *string           `json:"created_by,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	VendorQuotes         []*VendorQuoteDTO `json:"vendor_quotes"`
}

// VendorQuoteDTO is the wire form of a vendor quote.
type VendorQuoteDTO struct {
	ID             string                     `json:"id"`
	QuoteRequestID string                     `json:"quote_request_id"`
	VendorID       string                     `json:"vendor_id"`
	VendorName     string                     `json:"vendor_name"`
	VendorEmail    string                     `json:"vendor_email"`
	Status         string                     `json:"status"`
	MatchScore     float64                    `json:"match_score"`
	QuoteNumber    *string                    `json:"quote_number,omitempty"`
	TotalCost      *string                    `json:"total_cost,omitempty"`
	LeadTimeDays   *int                       `json:"lead_time_days,omitempty"`
	Notes          *string                    `json:"notes,omitempty"`
	LineItems      []repository.QuoteLineItem `json:"line_items,omitempty"`
	SentAt         *time.Time                 `json:"sent_at,omitempty"`
	ReceivedAt     *time.Time                 `json:"received_at,omitempty"`
	AcceptedAt     *time.Time                 `json:"accepted_at,omitempty"`
	RejectedAt     *time.Time                 `json:"rejected_at,omitempty"`
}

// EventDTO is one audit trail entry.
type EventDTO struct {
	ID            string         `json:"id"`
	VendorQuoteID *string        `json:"vendor_quote_id,omitempty"`
	Action        string         `json:"action"`
	PerformedBy   string         `json:"performed_by"`
	PerformedAt   time.Time      `json:"performed_at"`
	StatusBefore  *string        `json:"status_before,omitempty"`
	StatusAfter   *string        `json:"status_after,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// MatchPreviewDTO is the vendor ranking for a job.
type MatchPreviewDTO struct {
	JobID            string           `json:"job_id"`
	RequiredServices []string         `json:"required_services"`
	Limit            int              `json:"limit"`
	Shortlist        []matching.Match `json:"shortlist"`
	Ranked           []matching.Match `json:"ranked"`
}

// DispatchDTO is returned by a successful dispatch.
type DispatchDTO struct {
	QuoteRequest *QuoteRequestDTO `json:"quote_request"`
	VendorIDs    []string         `json:"dispatched_vendor_ids"`
	DryRun       bool             `json:"dry_run"`
}

// AwardDTO is returned by a successful award.
type AwardDTO struct {
	QuoteRequest     *QuoteRequestDTO `json:"quote_request"`
	AcceptedQuote    *VendorQuoteDTO  `json:"accepted_quote"`
	RejectedQuoteIDs []string         `json:"rejected_quote_ids"`
}

// ResponseDTO is returned after a vendor response is recorded.
type ResponseDTO struct {
	QuoteRequest *QuoteRequestDTO `json:"quote_request"`
	VendorQuote  *VendorQuoteDTO  `json:"vendor_quote"`
}

// CreateQuoteRequestBody is the create payload.
type CreateQuoteRequestBody struct {
	VendorIDs []string `json:"vendor_ids"`
	DueDate   string   `json:"due_date"`
}

// CancelBody is the cancel payload.
type CancelBody struct {
	Reason string `json:"reason"`
}

// RecordResponseBody is a vendor's answer.
type RecordResponseBody struct {
	QuoteNumber  *string                    `json:"quote_number"`
	TotalCost    *decimal.Decimal           `json:"total_cost"`
	LeadTimeDays *int                       `json:"lead_time_days"`
	Notes        *string                    `json:"notes"`
	LineItems    []repository.QuoteLineItem `json:"line_items"`
}

// input builds the service input. Cost and lead time are mandatory.
func (b *RecordResponseBody) input(vendorQuoteID, recordedBy string) (*service.RecordVendorQuoteInput, error) {
	if b.TotalCost == nil {
		return nil, errors.InvalidInput("total_cost", "total cost is required")
	}
	if b.LeadTimeDays == nil {
		return nil, errors.InvalidInput("lead_time_days", "lead time is required")
	}
	return &service.RecordVendorQuoteInput{
		VendorQuoteID: vendorQuoteID,
		QuoteNumber:   b.QuoteNumber,
		TotalCost:     b.TotalCost,
		LeadTimeDays:  b.LeadTimeDays,
		Notes:         b.Notes,
		LineItems:     b.LineItems,
		RecordedBy:    recordedBy,
	}, nil
}

const dateLayout = "2006-01-02"

func parseDueDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("due_date must be YYYY-MM-DD or RFC 3339")
		}
	}
	return &t, nil
}

func toQuoteRequestDTO(qr *repository.QuoteRequest) *QuoteRequestDTO {
	if qr == nil {
		return nil
	}
	dto := &QuoteRequestDTO{
		ID:                   qr.ID,
		JobID:                qr.JobID,
		RequestNumber:        qr.RequestNumber,
		Status:               qr.Status,
		Specification:        qr.SpecSnapshot,
		RequiredServices:     qr.RequiredServices.Strings(),
		SentAt:               qr.SentAt,
		AwardedAt:            qr.AwardedAt,
		AwardedVendorQuoteID: qr.AwardedVendorQuoteID,
		CancelledAt:          qr.CancelledAt,
		CancelReason:         qr.CancelReason,
		CreatedBy:            qr.CreatedBy,
		CreatedAt:            qr.CreatedAt,
		UpdatedAt:            qr.UpdatedAt,
		VendorQuotes:         make([]*VendorQuoteDTO, 0, len(qr.Quotes)),
	}
	if qr.DueDate != nil {
		d := qr.DueDate.Format(dateLayout)
		dto.DueDate = &d
	}
	for _, q := range qr.Quotes {
		dto.VendorQuotes = append(dto.VendorQuotes, toVendorQuoteDTO(q))
	}
	return dto
}

func toVendorQuoteDTO(q *repository.VendorQuote) *VendorQuoteDTO {
	if q == nil {
		return nil
	}
	dto := &VendorQuoteDTO{
		ID:             q.ID,
		QuoteRequestID: q.QuoteRequestID,
		VendorID:       q.VendorID,
		VendorName:     q.VendorName,
		VendorEmail:    q.VendorEmail,
		Status:         q.Status,
		MatchScore:     q.MatchScore,
		QuoteNumber:    q.QuoteNumber,
		LeadTimeDays:   q.LeadTimeDays,
		Notes:          q.Notes,
		LineItems:      q.LineItems,
		SentAt:         q.SentAt,
		ReceivedAt:     q.ReceivedAt,
		AcceptedAt:     q.AcceptedAt,
		RejectedAt:     q.RejectedAt,
	}
	if q.TotalCost.Valid {
		cost := q.TotalCost.Decimal.StringFixed(2)
		dto.TotalCost = &cost
	}
	return dto
}

func toQuoteRequestDTOs(list []*repository.QuoteRequest) []*QuoteRequestDTO {
	out := make([]*QuoteRequestDTO, 0, len(list))
	for _, qr := range list {
		out = append(out, toQuoteRequestDTO(qr))
	}
	return out
}

func toEventDTOs(events []*repository.QuoteRequestEvent) []*EventDTO {
	out := make([]*EventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, &EventDTO{
			ID:            e.ID,
			VendorQuoteID: e.VendorQuoteID,
			Action:        e.Action,
			PerformedBy:   e.PerformedBy,
			PerformedAt:   e.PerformedAt,
			StatusBefore:  e.StatusBefore,
			StatusAfter:   e.StatusAfter,
			Metadata:      e.Metadata,
		})
	}
	return out
}

func toMatchPreviewDTO(p *service.VendorMatchPreview) *MatchPreviewDTO {
	return &MatchPreviewDTO{
		JobID:            p.JobID,
		RequiredServices: p.RequiredServices.Strings(),
		Limit:            p.Limit,
		Shortlist:        p.Shortlist,
		Ranked:           p.Ranked,
	}
}

func toDispatchDTO(res *service.DispatchResult) *DispatchDTO {
	return &DispatchDTO{
		QuoteRequest: toQuoteRequestDTO(res.QuoteRequest),
		VendorIDs:    nonNil(res.VendorIDs),
		DryRun:       res.DryRun,
	}
}

func toAwardDTO(res *repository.AwardResult) *AwardDTO {
	return &AwardDTO{
		QuoteRequest:     toQuoteRequestDTO(res.QuoteRequest),
		AcceptedQuote:    toVendorQuoteDTO(res.Accepted),
		RejectedQuoteIDs: nonNil(res.RejectedQuoteIDs),
	}
}

func toResponseDTO(res *repository.ResponseResult) *ResponseDTO {
	return &ResponseDTO{
		QuoteRequest: toQuoteRequestDTO(res.QuoteRequest),
		VendorQuote:  toVendorQuoteDTO(res.Quote),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// toStruct converts any JSON-encodable value to a protobuf Struct by way of
// its JSON form, so HTTP and gRPC share one wire shape.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes a protobuf Struct into a JSON-tagged Go value.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
