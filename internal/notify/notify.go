// Package notify renders and delivers RFQ messages to vendors.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-print-rfq/internal/matching"
)

// Request carries everything needed to write one vendor's RFQ message.
type Request struct {
	RequestNumber    string
	JobID            string
	JobNumber        string
	JobTitle         string
	Spec             matching.JobSpec
	LineItems        []LineItem
	RequiredServices []matching.ServiceTag
	DueDate          *time.Time

	VendorID      string
	VendorName    string
	VendorContact string
	VendorEmail   string

	BrokerName string
	ReplyTo    string
}

// LineItem is a job line shown to the vendor.
type LineItem struct {
	Description string
	Quantity    int
}

// Subject returns the email subject for the request.
func Subject(req *Request) string {
	title := strings.TrimSpace(req.JobTitle)
	if title == "" {
		title = req.JobNumber
	}
	return fmt.Sprintf("Request for Quote %s: %s", req.RequestNumber, title)
}

// Renderer turns a request into a message body.
type Renderer interface {
	Render(ctx context.Context, req *Request) (string, error)
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Gateway pairs a renderer with a sender.
type Gateway struct {
	renderer Renderer
	sender   Sender
}

// NewGateway creates a gateway. A nil renderer falls back to the template
// renderer.
func NewGateway(renderer Renderer, sender Sender) *Gateway {
	if renderer == nil {
		renderer = NewTemplateRenderer()
	}
	return &Gateway{renderer: renderer, sender: sender}
}

// Render renders the message body for req.
func (g *Gateway) Render(ctx context.Context, req *Request) (string, error) {
	return g.renderer.Render(ctx, req)
}

// Send delivers one message.
func (g *Gateway) Send(ctx context.Context, to, subject, body string) error {
	if g.sender == nil {
		return fmt.Errorf("notify: no sender configured")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("notify: recipient address required")
	}
	return g.sender.Send(ctx, to, subject, body)
}
