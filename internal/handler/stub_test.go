package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-print-rfq/internal/matching"
	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
	"github.com/pesio-ai/be-print-rfq/internal/repository"
	"github.com/pesio-ai/be-print-rfq/internal/service"
)

// stubService returns canned results and records its inputs.
type stubService struct {
	err error

	createIn   *service.CreateQuoteRequestInput
	recordIn   *service.RecordVendorQuoteInput
	lastID     string
	lastActor  string
	lastReason string
	lastLimit  int
	panicOn    string
}

func (s *stubService) fail(method string) error {
	if s.panicOn == method {
		panic("boom")
	}
	return s.err
}

func (s *stubService) CreateQuoteRequest(_ context.Context, in *service.CreateQuoteRequestInput) (*repository.QuoteRequest, error) {
	s.createIn = in
	if err := s.fail("create"); err != nil {
		return nil, err
	}
	qr := sampleRequest()
	qr.JobID = in.JobID
	qr.DueDate = in.DueDate
	return qr, nil
}

func (s *stubService) DispatchQuoteRequest(_ context.Context, id, by string) (*service.DispatchResult, error) {
	s.lastID, s.lastActor = id, by
	if err := s.fail("dispatch"); err != nil {
		return nil, err
	}
	qr := sampleRequest()
	qr.Status = repository.QuoteRequestStatusSent
	return &service.DispatchResult{QuoteRequest: qr, VendorIDs: []string{"v-1", "v-2"}}, nil
}

func (s *stubService) RecordVendorQuote(_ context.Context, in *service.RecordVendorQuoteInput) (*repository.ResponseResult, error) {
	s.recordIn = in
	if err := s.fail("record"); err != nil {
		return nil, err
	}
	qr := sampleRequest()
	qr.Status = repository.QuoteRequestStatusResponsesReceived
	return &repository.ResponseResult{Quote: qr.Quotes[1], QuoteRequest: qr, RequestStatusBefore: repository.QuoteRequestStatusSent}, nil
}

func (s *stubService) AwardQuoteToVendor(_ context.Context, id, by string) (*repository.AwardResult, error) {
	s.lastID, s.lastActor = id, by
	if err := s.fail("award"); err != nil {
		return nil, err
	}
	qr := sampleRequest()
	qr.Status = repository.QuoteRequestStatusAwarded
	return &repository.AwardResult{QuoteRequest: qr, Accepted: qr.Quotes[1]}, nil
}

func (s *stubService) CancelQuoteRequest(_ context.Context, id, reason, by string) (*repository.QuoteRequest, error) {
	s.lastID, s.lastReason, s.lastActor = id, reason, by
	if err := s.fail("cancel"); err != nil {
		return nil, err
	}
	qr := sampleRequest()
	qr.Status = repository.QuoteRequestStatusCancelled
	qr.CancelReason = &reason
	return qr, nil
}

func (s *stubService) GetQuoteRequest(_ context.Context, id string) (*repository.QuoteRequest, error) {
	s.lastID = id
	if err := s.fail("get"); err != nil {
		return nil, err
	}
	return sampleRequest(), nil
}

func (s *stubService) GetVendorQuote(_ context.Context, id string) (*repository.VendorQuote, error) {
	s.lastID = id
	if err := s.fail("get_quote"); err != nil {
		return nil, err
	}
	return sampleRequest().Quotes[1], nil
}

func (s *stubService) ListQuoteRequestsForJob(_ context.Context, jobID string) ([]*repository.QuoteRequest, error) {
	s.lastID = jobID
	if err := s.fail("list"); err != nil {
		return nil, err
	}
	return []*repository.QuoteRequest{sampleRequest()}, nil
}

func (s *stubService) GetQuoteRequestHistory(_ context.Context, id string) ([]*repository.QuoteRequestEvent, error) {
	s.lastID = id
	if err := s.fail("history"); err != nil {
		return nil, err
	}
	after := repository.QuoteRequestStatusDraft
	return []*repository.QuoteRequestEvent{{
		ID: "ev-1", QuoteRequestID: id, Action: repository.EventActionCreated,
		PerformedBy: "ops", StatusAfter: &after,
	}}, nil
}

func (s *stubService) MatchVendors(_ context.Context, jobID string, limit int) (*service.VendorMatchPreview, error) {
	s.lastID, s.lastLimit = jobID, limit
	if err := s.fail("match"); err != nil {
		return nil, err
	}
	return &service.VendorMatchPreview{
		JobID:            jobID,
		RequiredServices: matching.NewServiceSet(matching.ServicePrinting),
		Ranked:           []matching.Match{},
		Shortlist:        []matching.Match{},
		Limit:            5,
	}, nil
}

func sampleRequest() *repository.QuoteRequest {
	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	lead := 7
	return &repository.QuoteRequest{
		ID:               "qr-1",
		JobID:            "job-1",
		RequestNumber:    "QR-0001",
		SpecSnapshot:     matching.JobSpec{ProductType: "Booklet"},
		RequiredServices: matching.NewServiceSet(matching.ServicePrinting),
		Status:           repository.QuoteRequestStatusDraft,
		CreatedAt:        created,
		UpdatedAt:        created,
		Quotes: []*repository.VendorQuote{
			{ID: "vq-1", QuoteRequestID: "qr-1", VendorID: "v-1", VendorName: "Alpha", Status: repository.VendorQuoteStatusPending, MatchScore: 100},
			{ID: "vq-2", QuoteRequestID: "qr-1", VendorID: "v-2", VendorName: "Bravo", Status: repository.VendorQuoteStatusReceived, MatchScore: 50,
				TotalCost: decimal.NewNullDecimal(decimal.RequireFromString("1250.5")), LeadTimeDays: &lead},
		},
	}
}

func dispatchFailure() error {
	return errors.Wrap(errors.Join(stdErr("smtp down")), errors.ErrCodeDispatchFailure, "failed to dispatch to 1 of 2 vendors").
		WithDetail("quote_request_id", "qr-1").
		WithDetail("failed_vendor_ids", []string{"v-2"})
}

type stdErr string

func (e stdErr) Error() string { return string(e) }
