package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-print-rfq/internal/client"
	"github.com/pesio-ai/be-print-rfq/internal/matching"
	"github.com/pesio-ai/be-print-rfq/internal/notify"
	"github.com/pesio-ai/be-print-rfq/internal/repository"
)

// JobStore reads print jobs.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*repository.Job, error)
}

// VendorStore reads the vendor pool.
type VendorStore interface {
	ListActive(ctx context.Context) ([]matching.Vendor, error)
	GetByIDs(ctx context.Context, ids []string) ([]matching.Vendor, error)
}

// QuoteRequestStore persists quote requests. Create, RecordResponse, Award
// and Cancel are each atomic.
type QuoteRequestStore interface {
	Create(ctx context.Context, qr *repository.QuoteRequest) error
	GetByID(ctx context.Context, id string) (*repository.QuoteRequest, error)
	ListByJobID(ctx context.Context, jobID string) ([]*repository.QuoteRequest, error)
	GetVendorQuote(ctx context.Context, id string) (*repository.VendorQuote, error)
	MarkQuotesDispatched(ctx context.Context, quoteIDs []string, at time.Time) error
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	RecordResponse(ctx context.Context, quoteID string, resp *repository.QuoteResponse, at time.Time) (*repository.ResponseResult, error)
	Award(ctx context.Context, quoteID string, at time.Time) (*repository.AwardResult, error)
	Cancel(ctx context.Context, requestID, reason string, at time.Time) (*repository.CancelResult, error)
}

// EventStore is the quote request audit trail.
type EventStore interface {
	Append(ctx context.Context, event *repository.QuoteRequestEvent) error
	ListByQuoteRequestID(ctx context.Context, requestID string) ([]*repository.QuoteRequestEvent, error)
}

// NotificationGateway renders and delivers vendor messages.
type NotificationGateway interface {
	Render(ctx context.Context, req *notify.Request) (string, error)
	Send(ctx context.Context, to, subject, body string) error
}

// EventPublisher publishes domain events. Implementations must not fail the
// caller.
type EventPublisher interface {
	PublishQuoteAwarded(ctx context.Context, event *client.QuoteAwardedEvent)
}

// DispatchLocker serialises dispatches of the same quote request.
type DispatchLocker interface {
	Acquire(ctx context.Context, requestID string) (release func(), acquired bool, err error)
}
