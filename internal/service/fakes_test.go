package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pesio-ai/be-print-rfq/internal/client"
	"github.com/pesio-ai/be-print-rfq/internal/matching"
	"github.com/pesio-ai/be-print-rfq/internal/notify"
	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
	"github.com/pesio-ai/be-print-rfq/internal/repository"
)

// memJobs is an in-memory JobStore.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*repository.Job
}

func newMemJobs(jobs ...*repository.Job) *memJobs {
	m := &memJobs{jobs: make(map[string]*repository.Job)}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobs) GetByID(_ context.Context, id string) (*repository.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.NotFound("job", id)
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) setVendor(jobID, vendorID string) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID]
	prev := j.VendorID
	v := vendorID
	j.VendorID = &v
	return prev
}

func (m *memJobs) vendorOf(jobID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v := m.jobs[jobID].VendorID; v != nil {
		return *v
	}
	return ""
}

// memVendors is an in-memory VendorStore.
type memVendors struct {
	vendors []matching.Vendor
}

func (m *memVendors) ListActive(context.Context) ([]matching.Vendor, error) {
	return append([]matching.Vendor(nil), m.vendors...), nil
}

func (m *memVendors) GetByIDs(_ context.Context, ids []string) ([]matching.Vendor, error) {
	var out []matching.Vendor
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		found := false
		for _, v := range m.vendors {
			if v.ID == id {
				out = append(out, v)
				found = true
				break
			}
		}
		if !found {
			return nil, errors.NotFound("vendor", id)
		}
	}
	return out, nil
}

// memQuotes is an in-memory QuoteRequestStore with the same guards as the
// Postgres repository. A single mutex stands in for the row lock.
type memQuotes struct {
	mu       sync.Mutex
	jobs     *memJobs
	counter  int64
	requests map[string]*repository.QuoteRequest
	nextID   int
}

func newMemQuotes(jobs *memJobs) *memQuotes {
	return &memQuotes{jobs: jobs, requests: make(map[string]*repository.QuoteRequest)}
}

func (m *memQuotes) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memQuotes) Create(_ context.Context, qr *repository.QuoteRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	qr.ID = m.id("qr")
	qr.RequestNumber = repository.FormatRequestNumber(m.counter)
	qr.CreatedAt = time.Now()
	qr.UpdatedAt = qr.CreatedAt
	for _, q := range qr.Quotes {
		q.ID = m.id("vq")
		q.QuoteRequestID = qr.ID
	}
	m.requests[qr.ID] = cloneRequest(qr)
	return nil
}

func (m *memQuotes) GetByID(_ context.Context, id string) (*repository.QuoteRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qr, ok := m.requests[id]
	if !ok {
		return nil, errors.NotFound("quote_request", id)
	}
	return cloneRequest(qr), nil
}

func (m *memQuotes) ListByJobID(_ context.Context, jobID string) ([]*repository.QuoteRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.QuoteRequest
	for _, qr := range m.requests {
		if qr.JobID == jobID {
			out = append(out, cloneRequest(qr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestNumber > out[j].RequestNumber })
	return out, nil
}

func (m *memQuotes) GetVendorQuote(_ context.Context, id string) (*repository.VendorQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, q := m.findQuote(id)
	if q == nil {
		return nil, errors.NotFound("vendor_quote", id)
	}
	cp := *q
	return &cp, nil
}

func (m *memQuotes) MarkQuotesDispatched(_ context.Context, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		qr, q := m.findQuote(id)
		if q == nil || q.SentAt != nil || q.Status != repository.VendorQuoteStatusPending {
			continue
		}
		if qr.Status == repository.QuoteRequestStatusAwarded || qr.Status == repository.QuoteRequestStatusCancelled {
			continue
		}
		t := at
		q.SentAt = &t
	}
	return nil
}

func (m *memQuotes) MarkSent(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qr, ok := m.requests[id]
	if !ok || qr.Status != repository.QuoteRequestStatusDraft {
		return false, nil
	}
	qr.Status = repository.QuoteRequestStatusSent
	t := at
	qr.SentAt = &t
	return true, nil
}

func (m *memQuotes) RecordResponse(_ context.Context, quoteID string, resp *repository.QuoteResponse, at time.Time) (*repository.ResponseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qr, q := m.findQuote(quoteID)
	if q == nil {
		return nil, errors.NotFound("vendor_quote", quoteID)
	}
	if qr.Status == repository.QuoteRequestStatusAwarded || qr.Status == repository.QuoteRequestStatusCancelled {
		return nil, errors.PreconditionFailed("quote_request_open", "closed")
	}
	if !q.IsOpen() {
		return nil, errors.PreconditionFailed("vendor_quote_open", "closed")
	}

	before := qr.Status
	cost := resp.TotalCost
	lead := resp.LeadTimeDays
	t := at
	q.QuoteNumber = resp.QuoteNumber
	q.TotalCost.Decimal, q.TotalCost.Valid = cost, true
	q.LeadTimeDays = &lead
	q.Notes = resp.Notes
	q.LineItems = resp.LineItems
	q.Status = repository.VendorQuoteStatusReceived
	q.ReceivedAt = &t
	if qr.Status == repository.QuoteRequestStatusDraft || qr.Status == repository.QuoteRequestStatusSent {
		qr.Status = repository.QuoteRequestStatusResponsesReceived
	}

	cp := *q
	return &repository.ResponseResult{Quote: &cp, QuoteRequest: cloneRequest(qr), RequestStatusBefore: before}, nil
}

func (m *memQuotes) Award(_ context.Context, quoteID string, at time.Time) (*repository.AwardResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qr, q := m.findQuote(quoteID)
	if q == nil {
		return nil, errors.NotFound("vendor_quote", quoteID)
	}
	switch qr.Status {
	case repository.QuoteRequestStatusAwarded:
		return nil, errors.Conflict("quote request has already been awarded")
	case repository.QuoteRequestStatusDraft, repository.QuoteRequestStatusCancelled:
		return nil, errors.PreconditionFailed("quote_request_dispatched", "not awardable")
	}
	if !q.IsOpen() {
		return nil, errors.PreconditionFailed("vendor_quote_open", "closed")
	}

	before := qr.Status
	t := at
	q.Status = repository.VendorQuoteStatusAccepted
	q.AcceptedAt = &t
	prev := m.jobs.setVendor(qr.JobID, q.VendorID)
	qr.Status = repository.QuoteRequestStatusAwarded
	qr.AwardedAt = &t
	qr.AwardedVendorQuoteID = &q.ID

	var rejected []string
	for _, other := range qr.Quotes {
		if other.ID != q.ID && other.IsOpen() {
			other.Status = repository.VendorQuoteStatusRejected
			other.RejectedAt = &t
			rejected = append(rejected, other.ID)
		}
	}

	cp := *q
	return &repository.AwardResult{
		QuoteRequest:        cloneRequest(qr),
		Accepted:            &cp,
		RejectedQuoteIDs:    rejected,
		PreviousVendorID:    prev,
		RequestStatusBefore: before,
	}, nil
}

func (m *memQuotes) Cancel(_ context.Context, requestID, reason string, at time.Time) (*repository.CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qr, ok := m.requests[requestID]
	if !ok {
		return nil, errors.NotFound("quote_request", requestID)
	}
	if qr.Status == repository.QuoteRequestStatusAwarded || qr.Status == repository.QuoteRequestStatusCancelled {
		return nil, errors.PreconditionFailed("quote_request_open", "closed")
	}

	before := qr.Status
	t := at
	qr.Status = repository.QuoteRequestStatusCancelled
	qr.CancelledAt = &t
	qr.CancelReason = &reason

	var rejected []string
	for _, q := range qr.Quotes {
		if q.IsOpen() {
			q.Status = repository.VendorQuoteStatusRejected
			q.RejectedAt = &t
			rejected = append(rejected, q.ID)
		}
	}
	return &repository.CancelResult{QuoteRequest: cloneRequest(qr), RejectedQuoteIDs: rejected, RequestStatusBefore: before}, nil
}

// setQuoteStatus forces a quote into a status, for arranging test fixtures.
func (m *memQuotes) setQuoteStatus(quoteID, status string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, q := m.findQuote(quoteID)
	q.Status = status
	t := at
	if status == repository.VendorQuoteStatusRejected {
		q.RejectedAt = &t
	}
}

func (m *memQuotes) findQuote(id string) (*repository.QuoteRequest, *repository.VendorQuote) {
	for _, qr := range m.requests {
		for _, q := range qr.Quotes {
			if q.ID == id {
				return qr, q
			}
		}
	}
	return nil, nil
}

func cloneRequest(qr *repository.QuoteRequest) *repository.QuoteRequest {
	cp := *qr
	cp.Quotes = make([]*repository.VendorQuote, len(qr.Quotes))
	for i, q := range qr.Quotes {
		qc := *q
		cp.Quotes[i] = &qc
	}
	return &cp
}

// memEvents is an in-memory EventStore.
type memEvents struct {
	mu     sync.Mutex
	events []*repository.QuoteRequestEvent
	err    error
}

func (m *memEvents) Append(_ context.Context, e *repository.QuoteRequestEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	e.ID = fmt.Sprintf("ev-%d", len(m.events)+1)
	e.PerformedAt = time.Now()
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) ListByQuoteRequestID(_ context.Context, id string) ([]*repository.QuoteRequestEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.QuoteRequestEvent
	for _, e := range m.events {
		if e.QuoteRequestID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEvents) actions(requestID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		if e.QuoteRequestID == requestID {
			out = append(out, e.Action)
		}
	}
	return out
}

// fakeGateway records deliveries and fails for configured addresses.
type fakeGateway struct {
	mu       sync.Mutex
	fail     map[string]error
	sent     map[string]string
	subjects []string
	delay    time.Duration
	inFlight int
	maxSeen  int

	// beforeFirstSend runs once, ahead of the first delivery.
	beforeFirstSend func()
	once            sync.Once
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{fail: map[string]error{}, sent: map[string]string{}}
}

func (g *fakeGateway) Render(ctx context.Context, req *notify.Request) (string, error) {
	return notify.NewTemplateRenderer().Render(ctx, req)
}

func (g *fakeGateway) Send(_ context.Context, to, subject, body string) error {
	if g.beforeFirstSend != nil {
		g.once.Do(g.beforeFirstSend)
	}

	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxSeen {
		g.maxSeen = g.inFlight
	}
	g.mu.Unlock()

	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
	if err := g.fail[to]; err != nil {
		return err
	}
	g.sent[to] = body
	g.subjects = append(g.subjects, subject)
	return nil
}

func (g *fakeGateway) setFailure(to string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.fail, to)
		return
	}
	g.fail[to] = err
}

func (g *fakeGateway) sentTo() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for to := range g.sent {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

func (g *fakeGateway) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = map[string]string{}
	g.subjects = nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []*client.QuoteAwardedEvent
}

func (p *fakePublisher) PublishQuoteAwarded(_ context.Context, e *client.QuoteAwardedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// fakeLocker hands out one lease per request.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *fakeLocker) Acquire(_ context.Context, id string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[id] {
		return nil, false, nil
	}
	l.held[id] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, id)
	}, true, nil
}
