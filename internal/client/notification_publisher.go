package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event types published under the configured subject prefix.
const (
	EventTypeQuoteAwarded = "quote_awarded"
)

// natsConn is the subset of *nats.Conn used for publishing.
type natsConn interface {
	Publish(subj string, data []byte) error
}

// NotificationPublisher publishes RFQ domain events to NATS for consumers such
// as the jobs service.
//
// Subject convention: <prefix>.<event_type>, e.g. rfq.events.quote_awarded
//
// Publishing is non-fatal: errors are logged and never returned, so a broker
// outage cannot undo or fail a committed award.
type NotificationPublisher struct {
	conn   natsConn
	prefix string
	log    zerolog.Logger
}

// QuoteAwardedEvent is the JSON payload of rfq.events.quote_awarded.
type QuoteAwardedEvent struct {
	EventType        string    `json:"event_type"`
	QuoteRequestID   string    `json:"quote_request_id"`
	RequestNumber    string    `json:"request_number"`
	JobID            string    `json:"job_id"`
	VendorQuoteID    string    `json:"vendor_quote_id"`
	VendorID         string    `json:"vendor_id"`
	PreviousVendorID *string   `json:"previous_vendor_id,omitempty"`
	TotalCost        *string   `json:"total_cost,omitempty"`
	LeadTimeDays     *int      `json:"lead_time_days,omitempty"`
	RejectedQuoteIDs []string  `json:"rejected_quote_ids"`
	AwardedBy        string    `json:"awarded_by"`
	AwardedAt        time.Time `json:"awarded_at"`
}

// NewNotificationPublisher creates a publisher. A nil conn yields a publisher
// that drops every event.
func NewNotificationPublisher(conn *nats.Conn, prefix string, log zerolog.Logger) *NotificationPublisher {
	p := &NotificationPublisher{prefix: normalisePrefix(prefix), log: log}
	if conn != nil {
		p.conn = conn
	}
	return p
}

func normalisePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return "rfq.events"
	}
	return prefix
}

// Subject returns the full subject for an event type.
func (p *NotificationPublisher) Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", p.prefix, eventType)
}

// PublishQuoteAwarded publishes a QuoteAwarded event.
func (p *NotificationPublisher) PublishQuoteAwarded(ctx context.Context, event *QuoteAwardedEvent) {
	if p == nil || p.conn == nil || event == nil {
		return
	}
	if err := ctx.Err(); err != nil {
		p.log.Warn().Err(err).Str("quote_request_id", event.QuoteRequestID).
			Msg("notification: context done before publish (non-fatal)")
		return
	}

	event.EventType = EventTypeQuoteAwarded
	if event.RejectedQuoteIDs == nil {
		event.RejectedQuoteIDs = []string{}
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := p.Subject(EventTypeQuoteAwarded)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("quote_request_id", event.QuoteRequestID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("quote_request_id", event.QuoteRequestID).
		Str("vendor_id", event.VendorID).
		Msg("notification: event published")
}

// ConnectNATS dials the NATS server with the reconnect settings used by the
// service.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
}
