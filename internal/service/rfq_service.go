package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-print-rfq/internal/client"
	"github.com/pesio-ai/be-print-rfq/internal/matching"
	"github.com/pesio-ai/be-print-rfq/internal/notify"
	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
	"github.com/pesio-ai/be-print-rfq/internal/platform/logger"
	"github.com/pesio-ai/be-print-rfq/internal/repository"
)

const (
	defaultDispatchConcurrency = 4
	systemActor                = "system"
)

// Options tunes the RFQ service.
type Options struct {
	DefaultVendorLimit  int
	DispatchConcurrency int
	BrokerName          string
	ReplyTo             string
}

// Option configures optional collaborators.
type Option func(*RFQService)

// WithGateway enables real dispatch. Without it dispatch runs dry.
func WithGateway(g NotificationGateway) Option {
	return func(s *RFQService) { s.gateway = g }
}

// WithPublisher enables QuoteAwarded events.
func WithPublisher(p EventPublisher) Option {
	return func(s *RFQService) { s.publisher = p }
}

// WithDispatchLocker enables the cross-instance dispatch lease.
func WithDispatchLocker(l DispatchLocker) Option {
	return func(s *RFQService) { s.locker = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *RFQService) { s.now = now }
}

// RFQService runs the quote request lifecycle: create, dispatch, record
// responses, award and cancel.
type RFQService struct {
	jobs      JobStore
	vendors   VendorStore
	quotes    QuoteRequestStore
	events    EventStore
	gateway   NotificationGateway
	publisher EventPublisher
	locker    DispatchLocker
	opts      Options
	now       func() time.Time
	log       *logger.Logger
}

// NewRFQService creates a new RFQ service
func NewRFQService(
	jobs JobStore,
	vendors VendorStore,
	quotes QuoteRequestStore,
	events EventStore,
	opts Options,
	log *logger.Logger,
	options ...Option,
) *RFQService {
	if opts.DefaultVendorLimit <= 0 {
		opts.DefaultVendorLimit = matching.DefaultShortlistSize
	}
	if opts.DispatchConcurrency <= 0 {
		opts.DispatchConcurrency = defaultDispatchConcurrency
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &RFQService{
		jobs:    jobs,
		vendors: vendors,
		quotes:  quotes,
		events:  events,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// CreateQuoteRequestInput represents a create quote request call
type CreateQuoteRequestInput struct {
	JobID     string
	VendorIDs []string
	DueDate   *time.Time
	CreatedBy string
}

// RecordVendorQuoteInput represents a vendor's response
type RecordVendorQuoteInput struct {
	VendorQuoteID string
	QuoteNumber   *string
	TotalCost     *decimal.Decimal
	LeadTimeDays  *int
	Notes         *string
	LineItems     []repository.QuoteLineItem
	RecordedBy    string
}

// DispatchResult is the outcome of a fully successful dispatch.
type DispatchResult struct {
	QuoteRequest *repository.QuoteRequest
	// VendorIDs reached by this call, in quote order.
	VendorIDs []string
	DryRun    bool
}

// VendorMatchPreview is the ranking shown before a request is created.
type VendorMatchPreview struct {
	JobID            string
	RequiredServices matching.ServiceSet
	Ranked           []matching.Match
	Shortlist        []matching.Match
	Limit            int
}

// CreateQuoteRequest creates a draft quote request for a job with one pending
// vendor quote per selected vendor.
func (s *RFQService) CreateQuoteRequest(ctx context.Context, in *CreateQuoteRequestInput) (*repository.QuoteRequest, error) {
	if strings.TrimSpace(in.JobID) == "" {
		return nil, errors.InvalidInput("job_id", "job id is required")
	}

	job, err := s.loadJobWithSpec(ctx, in.JobID)
	if err != nil {
		return nil, err
	}
	spec := *job.Spec
	required := matching.ExtractRequiredServices(spec)

	vendorIDs := compactIDs(in.VendorIDs)
	manual := len(vendorIDs) > 0

	var matches []matching.Match
	if manual {
		vendors, err := s.vendors.GetByIDs(ctx, vendorIDs)
		if err != nil {
			return nil, err
		}
		matches = matching.ManualMatches(vendors)
	} else {
		pool, err := s.vendors.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		matches, err = matching.TopMatches(pool, spec, s.opts.DefaultVendorLimit)
		if stderrors.Is(err, matching.ErrNoMatchingVendors) {
			return nil, errors.PreconditionFailed("vendor_shortlist", "no matching vendors").
				WithDetail("job_id", job.ID).
				WithDetail("required_services", required.Strings())
		}
		if err != nil {
			return nil, err
		}
	}

	qr := &repository.QuoteRequest{
		JobID:            job.ID,
		SpecSnapshot:     spec,
		RequiredServices: required,
		DueDate:          in.DueDate,
		Status:           repository.QuoteRequestStatusDraft,
		Quotes:           make([]*repository.VendorQuote, 0, len(matches)),
	}
	if in.CreatedBy != "" {
		createdBy := in.CreatedBy
		qr.CreatedBy = &createdBy
	}
	for _, m := range matches {
		qr.Quotes = append(qr.Quotes, &repository.VendorQuote{
			VendorID:    m.Vendor.ID,
			VendorName:  m.Vendor.Name,
			VendorEmail: m.Vendor.Email,
			Status:      repository.VendorQuoteStatusPending,
			MatchScore:  m.Score,
		})
	}

	if err := s.quotes.Create(ctx, qr); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("quote_request_id", qr.ID).
		Str("request_number", qr.RequestNumber).
		Str("job_id", job.ID).
		Strs("required_services", required.Strings()).
		Int("vendor_count", len(qr.Quotes)).
		Bool("manual", manual).
		Msg("Quote request created")

	s.appendEvent(ctx, &repository.QuoteRequestEvent{
		QuoteRequestID: qr.ID,
		Action:         repository.EventActionCreated,
		PerformedBy:    actor(in.CreatedBy),
		StatusAfter:    strPtr(repository.QuoteRequestStatusDraft),
		Metadata: map[string]any{
			"request_number": qr.RequestNumber,
			"vendor_ids":     quoteVendorIDs(qr.Quotes),
			"manual":         manual,
		},
	})

	return qr, nil
}

// DispatchQuoteRequest sends the RFQ to every vendor that has not been
// reached yet. Sends run in parallel; all of them finish before any state is
// written. Successful sends are always stamped. If any send failed the request
// keeps its status and a DISPATCH_FAILURE error lists the failed vendors, so
// a retry only contacts those. A request awarded or cancelled while sends were
// in flight yields CONFLICT.
func (s *RFQService) DispatchQuoteRequest(ctx context.Context, requestID, dispatchedBy string) (*DispatchResult, error) {
	if s.locker != nil {
		release, acquired, err := s.locker.Acquire(ctx, requestID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to acquire dispatch lock")
		}
		if !acquired {
			return nil, errors.Conflict("quote request is already being dispatched").
				WithDetail("quote_request_id", requestID)
		}
		defer release()
	}

	qr, err := s.quotes.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !dispatchable(qr.Status) {
		return nil, errors.PreconditionFailed("quote_request_dispatchable",
			fmt.Sprintf("cannot dispatch quote request with status '%s'", qr.Status)).
			WithDetail("quote_request_id", qr.ID).
			WithDetail("status", qr.Status)
	}

	var targets []*repository.VendorQuote
	for _, q := range qr.Quotes {
		if q.Status == repository.VendorQuoteStatusPending && q.SentAt == nil {
			targets = append(targets, q)
		}
	}

	dryRun := s.gateway == nil
	var (
		sent   []*repository.VendorQuote
		failed []dispatchOutcome
	)
	if dryRun {
		sent = targets
	} else {
		job, err := s.jobs.GetByID(ctx, qr.JobID)
		if err != nil {
			return nil, err
		}
		outcomes := s.sendAll(ctx, qr, job, targets)
		for _, o := range outcomes {
			if o.err != nil {
				failed = append(failed, o)
			} else {
				sent = append(sent, o.quote)
			}
		}
	}

	now := s.now()
	sentQuoteIDs := make([]string, 0, len(sent))
	for _, q := range sent {
		sentQuoteIDs = append(sentQuoteIDs, q.ID)
	}
	if err := s.quotes.MarkQuotesDispatched(ctx, sentQuoteIDs, now); err != nil {
		return nil, err
	}

	if len(failed) > 0 {
		return nil, s.dispatchFailure(ctx, qr, sent, failed, dispatchedBy)
	}

	if _, err := s.quotes.MarkSent(ctx, qr.ID, now); err != nil {
		return nil, err
	}

	updated, err := s.quotes.GetByID(ctx, qr.ID)
	if err != nil {
		return nil, err
	}
	if !dispatchable(updated.Status) {
		s.log.Warn().
			Str("quote_request_id", qr.ID).
			Str("status", updated.Status).
			Msg("Quote request closed during dispatch")
		return nil, errors.Conflict(fmt.Sprintf("quote request was %s while it was being dispatched", updated.Status)).
			WithDetail("quote_request_id", qr.ID).
			WithDetail("status", updated.Status).
			WithDetail("dispatched_vendor_ids", quoteVendorIDs(sent))
	}

	vendorIDs := quoteVendorIDs(sent)
	s.log.Info().
		Str("quote_request_id", qr.ID).
		Str("request_number", qr.RequestNumber).
		Int("vendor_count", len(vendorIDs)).
		Bool("dry_run", dryRun).
		Msg("Quote request dispatched")

	s.appendEvent(ctx, &repository.QuoteRequestEvent{
		QuoteRequestID: qr.ID,
		Action:         repository.EventActionDispatched,
		PerformedBy:    actor(dispatchedBy),
		StatusBefore:   strPtr(qr.Status),
		StatusAfter:    strPtr(updated.Status),
		Metadata: map[string]any{
			"vendor_ids": vendorIDs,
			"dry_run":    dryRun,
		},
	})

	return &DispatchResult{QuoteRequest: updated, VendorIDs: vendorIDs, DryRun: dryRun}, nil
}

// dispatchable reports whether a request in status may still reach vendors.
func dispatchable(status string) bool {
	switch status {
	case repository.QuoteRequestStatusDraft,
		repository.QuoteRequestStatusSent,
		repository.QuoteRequestStatusResponsesReceived:
		return true
	}
	return false
}

type dispatchOutcome struct {
	quote *repository.VendorQuote
	err   error
}

// sendAll renders and sends one message per quote with bounded parallelism.
// It returns once every send has finished.
func (s *RFQService) sendAll(ctx context.Context, qr *repository.QuoteRequest, job *repository.Job, quotes []*repository.VendorQuote) []dispatchOutcome {
	outcomes := make([]dispatchOutcome, len(quotes))

	var g errgroup.Group
	g.SetLimit(s.opts.DispatchConcurrency)
	for i, q := range quotes {
		g.Go(func() error {
			outcomes[i] = dispatchOutcome{quote: q, err: s.sendOne(ctx, qr, job, q)}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (s *RFQService) sendOne(ctx context.Context, qr *repository.QuoteRequest, job *repository.Job, q *repository.VendorQuote) error {
	req := s.buildNotification(qr, job, q)

	body, err := s.gateway.Render(ctx, req)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := s.gateway.Send(ctx, q.VendorEmail, notify.Subject(req), body); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (s *RFQService) buildNotification(qr *repository.QuoteRequest, job *repository.Job, q *repository.VendorQuote) *notify.Request {
	req := &notify.Request{
		RequestNumber:    qr.RequestNumber,
		JobID:            job.ID,
		JobNumber:        job.JobNumber,
		JobTitle:         job.Title,
		Spec:             qr.SpecSnapshot,
		RequiredServices: qr.RequiredServices.Slice(),
		DueDate:          qr.DueDate,
		VendorID:         q.VendorID,
		VendorName:       q.VendorName,
		VendorEmail:      q.VendorEmail,
		BrokerName:       s.opts.BrokerName,
		ReplyTo:          s.opts.ReplyTo,
	}
	for _, line := range job.LineItems {
		req.LineItems = append(req.LineItems, notify.LineItem{Description: line.Description, Quantity: line.Quantity})
	}
	return req
}

func (s *RFQService) dispatchFailure(ctx context.Context, qr *repository.QuoteRequest, sent []*repository.VendorQuote, failed []dispatchOutcome, by string) error {
	failedIDs := make([]string, 0, len(failed))
	causes := make([]error, 0, len(failed))
	for _, f := range failed {
		failedIDs = append(failedIDs, f.quote.VendorID)
		causes = append(causes, fmt.Errorf("vendor %s: %w", f.quote.VendorID, f.err))

		s.log.Warn().Err(f.err).
			Str("quote_request_id", qr.ID).
			Str("vendor_id", f.quote.VendorID).
			Msg("Vendor dispatch failed")
	}
	sort.Strings(failedIDs)
	sentIDs := quoteVendorIDs(sent)

	s.appendEvent(ctx, &repository.QuoteRequestEvent{
		QuoteRequestID: qr.ID,
		Action:         repository.EventActionDispatchFailed,
		PerformedBy:    actor(by),
		StatusBefore:   strPtr(qr.Status),
		StatusAfter:    strPtr(qr.Status),
		Metadata: map[string]any{
			"failed_vendor_ids":     failedIDs,
			"dispatched_vendor_ids": sentIDs,
		},
	})

	return errors.Wrap(stderrors.Join(causes...), errors.ErrCodeDispatchFailure,
		fmt.Sprintf("failed to dispatch to %d of %d vendors", len(failed), len(failed)+len(sent))).
		WithDetail("quote_request_id", qr.ID).
		WithDetail("failed_vendor_ids", failedIDs).
		WithDetail("dispatched_vendor_ids", sentIDs)
}

// RecordVendorQuote stores a vendor's response and moves the request to
// responses_received.
func (s *RFQService) RecordVendorQuote(ctx context.Context, in *RecordVendorQuoteInput) (*repository.ResponseResult, error) {
	if strings.TrimSpace(in.VendorQuoteID) == "" {
		return nil, errors.InvalidInput("vendor_quote_id", "vendor quote id is required")
	}
	if in.TotalCost == nil {
		return nil, errors.InvalidInput("total_cost", "total cost is required")
	}
	if in.LeadTimeDays == nil {
		return nil, errors.InvalidInput("lead_time_days", "lead time is required")
	}
	if in.TotalCost.IsNegative() {
		return nil, errors.InvalidInput("total_cost", "total cost cannot be negative")
	}
	if *in.LeadTimeDays < 0 {
		return nil, errors.InvalidInput("lead_time_days", "lead time cannot be negative")
	}
	for _, line := range in.LineItems {
		if line.Quantity < 0 {
			return nil, errors.InvalidInput("line_items.quantity", "quantity cannot be negative")
		}
		if line.UnitPrice.IsNegative() || line.Amount.IsNegative() {
			return nil, errors.InvalidInput("line_items.amount", "amounts cannot be negative")
		}
	}

	res, err := s.quotes.RecordResponse(ctx, in.VendorQuoteID, &repository.QuoteResponse{
		QuoteNumber:  in.QuoteNumber,
		TotalCost:    *in.TotalCost,
		LeadTimeDays: *in.LeadTimeDays,
		Notes:        in.Notes,
		LineItems:    in.LineItems,
	}, s.now())
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("vendor_quote_id", in.VendorQuoteID).
		Str("quote_request_id", res.QuoteRequest.ID).
		Str("total_cost", in.TotalCost.StringFixed(2)).
		Int("lead_time_days", *in.LeadTimeDays).
		Msg("Vendor quote recorded")

	s.appendEvent(ctx, &repository.QuoteRequestEvent{
		QuoteRequestID: res.QuoteRequest.ID,
		VendorQuoteID:  strPtr(in.VendorQuoteID),
		Action:         repository.EventActionResponseRecorded,
		PerformedBy:    actor(in.RecordedBy),
		StatusBefore:   strPtr(res.RequestStatusBefore),
		StatusAfter:    strPtr(res.QuoteRequest.Status),
		Metadata: map[string]any{
			"total_cost":     in.TotalCost.String(),
			"lead_time_days": *in.LeadTimeDays,
		},
	})

	return res, nil
}

// AwardQuoteToVendor accepts one vendor quote, assigns its vendor to the job
// and rejects the other open quotes. A concurrent award of the same request
// loses with CONFLICT.
func (s *RFQService) AwardQuoteToVendor(ctx context.Context, vendorQuoteID, awardedBy string) (*repository.AwardResult, error) {
	if strings.TrimSpace(vendorQuoteID) == "" {
		return nil, errors.InvalidInput("vendor_quote_id", "vendor quote id is required")
	}

	now := s.now()
	res, err := s.quotes.Award(ctx, vendorQuoteID, now)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("quote_request_id", res.QuoteRequest.ID).
		Str("request_number", res.QuoteRequest.RequestNumber).
		Str("vendor_quote_id", vendorQuoteID).
		Str("vendor_id", res.Accepted.VendorID).
		Int("rejected", len(res.RejectedQuoteIDs)).
		Msg("Quote request awarded")

	s.appendEvent(ctx, &repository.QuoteRequestEvent{
		QuoteRequestID: res.QuoteRequest.ID,
		VendorQuoteID:  strPtr(vendorQuoteID),
		Action:         repository.EventActionAwarded,
		PerformedBy:    actor(awardedBy),
		StatusBefore:   strPtr(res.RequestStatusBefore),
		StatusAfter:    strPtr(res.QuoteRequest.Status),
		Metadata: map[string]any{
			"vendor_id":          res.Accepted.VendorID,
			"rejected_quote_ids": res.RejectedQuoteIDs,
		},
	})

	if s.publisher != nil {
		event := &client.QuoteAwardedEvent{
			QuoteRequestID:   res.QuoteRequest.ID,
			RequestNumber:    res.QuoteRequest.RequestNumber,
			JobID:            res.QuoteRequest.JobID,
			VendorQuoteID:    res.Accepted.ID,
			VendorID:         res.Accepted.VendorID,
			PreviousVendorID: res.PreviousVendorID,
			LeadTimeDays:     res.Accepted.LeadTimeDays,
			RejectedQuoteIDs: res.RejectedQuoteIDs,
			AwardedBy:        actor(awardedBy),
			AwardedAt:        now,
		}
		if res.Accepted.TotalCost.Valid {
			cost := res.Accepted.TotalCost.Decimal.StringFixed(2)
			event.TotalCost = &cost
		}
		s.publisher.PublishQuoteAwarded(ctx, event)
	}

	return res, nil
}

// CancelQuoteRequest withdraws an open request and rejects its open quotes.
func (s *RFQService) CancelQuoteRequest(ctx context.Context, requestID, reason, cancelledBy string) (*repository.QuoteRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.InvalidInput("reason", "a cancellation reason is required")
	}

	res, err := s.quotes.Cancel(ctx, requestID, reason, s.now())
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("quote_request_id", requestID).
		Str("request_number", res.QuoteRequest.RequestNumber).
		Str("reason", reason).
		Msg("Quote request cancelled")

	s.appendEvent(ctx, &repository.QuoteRequestEvent{
		QuoteRequestID: requestID,
		Action:         repository.EventActionCancelled,
		PerformedBy:    actor(cancelledBy),
		StatusBefore:   strPtr(res.RequestStatusBefore),
		StatusAfter:    strPtr(res.QuoteRequest.Status),
		Metadata: map[string]any{
			"reason":             reason,
			"rejected_quote_ids": res.RejectedQuoteIDs,
		},
	})

	return res.QuoteRequest, nil
}

// GetQuoteRequest retrieves a quote request with its vendor quotes
func (s *RFQService) GetQuoteRequest(ctx context.Context, id string) (*repository.QuoteRequest, error) {
	return s.quotes.GetByID(ctx, id)
}

// GetVendorQuote retrieves a single vendor quote
func (s *RFQService) GetVendorQuote(ctx context.Context, id string) (*repository.VendorQuote, error) {
	return s.quotes.GetVendorQuote(ctx, id)
}

// ListQuoteRequestsForJob lists every quote request raised for a job
func (s *RFQService) ListQuoteRequestsForJob(ctx context.Context, jobID string) ([]*repository.QuoteRequest, error) {
	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return s.quotes.ListByJobID(ctx, jobID)
}

// GetQuoteRequestHistory returns the audit trail of a quote request.
func (s *RFQService) GetQuoteRequestHistory(ctx context.Context, requestID string) ([]*repository.QuoteRequestEvent, error) {
	if _, err := s.quotes.GetByID(ctx, requestID); err != nil {
		return nil, err
	}
	if s.events == nil {
		return []*repository.QuoteRequestEvent{}, nil
	}
	return s.events.ListByQuoteRequestID(ctx, requestID)
}

// MatchVendors ranks the whole vendor pool for a job without creating
// anything. An empty shortlist is not an error here.
func (s *RFQService) MatchVendors(ctx context.Context, jobID string, limit int) (*VendorMatchPreview, error) {
	job, err := s.loadJobWithSpec(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.DefaultVendorLimit
	}

	pool, err := s.vendors.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	ranked := matching.Rank(pool, *job.Spec)
	shortlist, err := matching.Shortlist(ranked, limit)
	if err != nil && !stderrors.Is(err, matching.ErrNoMatchingVendors) {
		return nil, err
	}
	if shortlist == nil {
		shortlist = []matching.Match{}
	}

	return &VendorMatchPreview{
		JobID:            job.ID,
		RequiredServices: matching.ExtractRequiredServices(*job.Spec),
		Ranked:           ranked,
		Shortlist:        shortlist,
		Limit:            limit,
	}, nil
}

func (s *RFQService) loadJobWithSpec(ctx context.Context, jobID string) (*repository.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Spec == nil {
		return nil, errors.PreconditionFailed("job_specification", "job has no specification").
			WithDetail("job_id", job.ID)
	}
	return job, nil
}

// appendEvent writes an audit event. Failures are logged, never returned.
func (s *RFQService) appendEvent(ctx context.Context, event *repository.QuoteRequestEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.log.Warn().Err(err).
			Str("quote_request_id", event.QuoteRequestID).
			Str("action", event.Action).
			Msg("Failed to write quote request event")
	}
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func quoteVendorIDs(quotes []*repository.VendorQuote) []string {
	ids := make([]string, 0, len(quotes))
	for _, q := range quotes {
		ids = append(ids, q.VendorID)
	}
	return ids
}

func actor(s string) string {
	if strings.TrimSpace(s) == "" {
		return systemActor
	}
	return s
}

func strPtr(s string) *string { return &s }
