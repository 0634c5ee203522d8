package repository

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-print-rfq/internal/matching"
)

// Quote request lifecycle statuses.
const (
	QuoteRequestStatusDraft             = "draft"
	QuoteRequestStatusSent              = "sent"
	QuoteRequestStatusResponsesReceived = "responses_received"
	QuoteRequestStatusAwarded           = "awarded"
	QuoteRequestStatusCancelled         = "cancelled"
)

// Vendor quote statuses. A quote never moves to an earlier status.
const (
	VendorQuoteStatusPending  = "pending"
	VendorQuoteStatusReceived = "received"
	VendorQuoteStatusAccepted = "accepted"
	VendorQuoteStatusRejected = "rejected"
)

// RequestNumberPrefix prefixes every formatted request number.
const RequestNumberPrefix = "QR-"

// FormatRequestNumber renders a counter value as QR-0001. Values above 9999
// widen rather than wrap.
func FormatRequestNumber(n int64) string {
	return fmt.Sprintf("%s%04d", RequestNumberPrefix, n)
}

// Job is the slice of a print job the RFQ engine reads. Jobs are owned by the
// job service; the engine only writes VendorID during award.
type Job struct {
	ID        string
	JobNumber string
	Title     string
	Customer  string
	Spec      *matching.JobSpec
	VendorID  *string
	DueDate   *time.Time
	LineItems []*JobLineItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobLineItem is one line of the job, passed to vendors for context.
type JobLineItem struct {
	ID          string
	LineNumber  int
	Description string
	Quantity    int
	Notes       *string
}

// QuoteRequest is the RFQ aggregate root.
type QuoteRequest struct {
	ID                   string
	JobID                string
	RequestNumber        string
	SpecSnapshot         matching.JobSpec
	RequiredServices     matching.ServiceSet
	DueDate              *time.Time
	Status               string
	SentAt               *time.Time
	AwardedAt            *time.Time
	AwardedVendorQuoteID *string
	CancelledAt          *time.Time
	CancelReason         *string
	CreatedBy            *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Quotes               []*VendorQuote
}

// VendorQuote tracks one vendor's side of a quote request.
type VendorQuote struct {
	ID             string
	QuoteRequestID string
	VendorID       string
	VendorName     string
	VendorEmail    string
	Status         string
	MatchScore     float64
	QuoteNumber    *string
	TotalCost      decimal.NullDecimal
	LeadTimeDays   *int
	Notes          *string
	LineItems      []QuoteLineItem
	SentAt         *time.Time
	ReceivedAt     *time.Time
	AcceptedAt     *time.Time
	RejectedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsOpen reports whether the quote can still change.
func (q *VendorQuote) IsOpen() bool {
	return q.Status == VendorQuoteStatusPending || q.Status == VendorQuoteStatusReceived
}

// QuoteLineItem is an optional structured line on a vendor's quote.
type QuoteLineItem struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// QuoteResponse is the data recorded when a vendor answers.
type QuoteResponse struct {
	QuoteNumber  *string
	TotalCost    decimal.Decimal
	LeadTimeDays int
	Notes        *string
	LineItems    []QuoteLineItem
}

// ResponseResult is the state after a vendor response has been stored.
type ResponseResult struct {
	Quote               *VendorQuote
	QuoteRequest        *QuoteRequest
	RequestStatusBefore string
}

// AwardResult describes the outcome of a committed award.
type AwardResult struct {
	QuoteRequest        *QuoteRequest
	Accepted            *VendorQuote
	RejectedQuoteIDs    []string
	PreviousVendorID    *string
	RequestStatusBefore string
}

// CancelResult describes a committed cancellation.
type CancelResult struct {
	QuoteRequest        *QuoteRequest
	RejectedQuoteIDs    []string
	RequestStatusBefore string
}

// QuoteRequestEvent is one immutable entry in the quote request audit log.
type QuoteRequestEvent struct {
	ID             string
	QuoteRequestID string
	VendorQuoteID  *string
	Action         string
	PerformedBy    string
	PerformedAt    time.Time
	StatusBefore   *string
	StatusAfter    *string
	Metadata       map[string]any
}

// Audit actions.
const (
	EventActionCreated          = "created"
	EventActionDispatched       = "dispatched"
	EventActionDispatchFailed   = "dispatch_failed"
	EventActionResponseRecorded = "response_recorded"
	EventActionAwarded          = "awarded"
	EventActionCancelled        = "cancelled"
)
