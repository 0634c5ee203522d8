package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-print-rfq/internal/matching"
	"github.com/pesio-ai/be-print-rfq/internal/platform/database"
	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
)

// requestCounterName is the counter row used for QR numbers.
const requestCounterName = "quote_request"

// queryer is satisfied by both *database.DB and pgx.Tx.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QuoteRequestRepository persists quote requests and their vendor quotes.
type QuoteRequestRepository struct {
	db *database.DB
}

// NewQuoteRequestRepository creates a new quote request repository
func NewQuoteRequestRepository(db *database.DB) *QuoteRequestRepository {
	return &QuoteRequestRepository{db: db}
}

// Create allocates the next request number and inserts the request with all
// of its vendor quotes in one transaction. Nothing is persisted on failure.
func (r *QuoteRequestRepository) Create(ctx context.Context, qr *QuoteRequest) error {
	specJSON, err := json.Marshal(qr.SpecSnapshot)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal spec snapshot")
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		n, err := nextRequestNumber(ctx, tx)
		if err != nil {
			return err
		}

		if qr.ID == "" {
			qr.ID = uuid.NewString()
		}
		qr.RequestNumber = FormatRequestNumber(n)
		if qr.Status == "" {
			qr.Status = QuoteRequestStatusDraft
		}

		query := `
			INSERT INTO quote_requests (id, job_id, request_number, spec_snapshot, required_services,
			                            due_date, status, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at
		`
		err = tx.QueryRow(ctx, query,
			qr.ID,
			qr.JobID,
			qr.RequestNumber,
			specJSON,
			qr.RequiredServices.Strings(),
			qr.DueDate,
			qr.Status,
			qr.CreatedBy,
		).Scan(&qr.CreatedAt, &qr.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create quote request")
		}

		quoteQuery := `
			INSERT INTO vendor_quotes (id, quote_request_id, vendor_id, status, match_score)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`
		for _, q := range qr.Quotes {
			if q.ID == "" {
				q.ID = uuid.NewString()
			}
			q.QuoteRequestID = qr.ID
			if q.Status == "" {
				q.Status = VendorQuoteStatusPending
			}

			err := tx.QueryRow(ctx, quoteQuery, q.ID, q.QuoteRequestID, q.VendorID, q.Status, q.MatchScore).
				Scan(&q.CreatedAt, &q.UpdatedAt)
			if err != nil {
				if isUniqueViolation(err) {
					return errors.Conflict(fmt.Sprintf("vendor %s is already on the quote request", q.VendorID)).
						WithDetail("vendor_id", q.VendorID)
				}
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create vendor quote")
			}
		}

		return nil
	})
}

// nextRequestNumber bumps the counter row. The row lock is held until the
// surrounding transaction ends, so concurrent creators queue behind it and a
// rollback gives the number back.
func nextRequestNumber(ctx context.Context, tx pgx.Tx) (int64, error) {
	query := `
		INSERT INTO quote_request_counters (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = quote_request_counters.value + 1
		RETURNING value
	`

	var n int64
	if err := tx.QueryRow(ctx, query, requestCounterName).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to allocate request number")
	}
	return n, nil
}

// GetByID retrieves a quote request with its vendor quotes.
func (r *QuoteRequestRepository) GetByID(ctx context.Context, id string) (*QuoteRequest, error) {
	return getQuoteRequest(ctx, r.db, id)
}

// ListByJobID returns every quote request raised for a job, newest first.
func (r *QuoteRequestRepository) ListByJobID(ctx context.Context, jobID string) ([]*QuoteRequest, error) {
	rows, err := r.db.Query(ctx, requestSelect+` WHERE job_id = $1 ORDER BY created_at DESC, request_number DESC`, jobID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list quote requests")
	}
	defer rows.Close()

	var (
		requests []*QuoteRequest
		ids      []string
	)
	byID := make(map[string]*QuoteRequest)
	for rows.Next() {
		qr, err := scanQuoteRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, qr)
		ids = append(ids, qr.ID)
		byID[qr.ID] = qr
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate quote requests")
	}
	if len(requests) == 0 {
		return requests, nil
	}

	quotes, err := listQuotes(ctx, r.db, `WHERE q.quote_request_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		if qr, ok := byID[q.QuoteRequestID]; ok {
			qr.Quotes = append(qr.Quotes, q)
		}
	}

	return requests, nil
}

// GetVendorQuote retrieves a single vendor quote.
func (r *QuoteRequestRepository) GetVendorQuote(ctx context.Context, id string) (*VendorQuote, error) {
	return getVendorQuote(ctx, r.db, id)
}

// MarkQuotesDispatched stamps sent_at on pending quotes that have not been
// stamped yet. Quotes whose request was awarded or cancelled are left alone.
func (r *QuoteRequestRepository) MarkQuotesDispatched(ctx context.Context, quoteIDs []string, at time.Time) error {
	if len(quoteIDs) == 0 {
		return nil
	}

	query := `
		UPDATE vendor_quotes vq
		SET sent_at = $2, updated_at = now()
		FROM quote_requests qr
		WHERE vq.id = ANY($1::uuid[])
		  AND vq.sent_at IS NULL
		  AND vq.status = $3
		  AND qr.id = vq.quote_request_id
		  AND qr.status IN ($4, $5, $6)
	`
	if _, err := r.db.Exec(ctx, query, quoteIDs, at, VendorQuoteStatusPending,
		QuoteRequestStatusDraft, QuoteRequestStatusSent, QuoteRequestStatusResponsesReceived); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to mark vendor quotes dispatched")
	}
	return nil
}

// MarkSent moves a draft request to sent. It reports whether the row changed;
// requests already past draft are left alone.
func (r *QuoteRequestRepository) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE quote_requests
		SET status = $2, sent_at = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, id, QuoteRequestStatusSent, at, QuoteRequestStatusDraft)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to mark quote request sent")
	}
	return tag.RowsAffected() == 1, nil
}

// RecordResponse stores a vendor's answer and moves the parent request to
// responses_received. Quotes that are already accepted or rejected, and
// requests that are awarded or cancelled, are refused.
func (r *QuoteRequestRepository) RecordResponse(ctx context.Context, quoteID string, resp *QuoteResponse, at time.Time) (*ResponseResult, error) {
	var lineItemsJSON []byte
	if len(resp.LineItems) > 0 {
		var err error
		lineItemsJSON, err = json.Marshal(resp.LineItems)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal quote line items")
		}
	}

	result := &ResponseResult{}
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		requestID, err := quoteRequestIDOf(ctx, tx, quoteID)
		if err != nil {
			return err
		}

		status, _, err := lockQuoteRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if status == QuoteRequestStatusAwarded || status == QuoteRequestStatusCancelled {
			return errors.PreconditionFailed("quote_request_open",
				fmt.Sprintf("quote request is %s and no longer accepts responses", status)).
				WithDetail("quote_request_id", requestID).
				WithDetail("status", status)
		}
		result.RequestStatusBefore = status

		quoteStatus, _, err := lockVendorQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if quoteStatus != VendorQuoteStatusPending && quoteStatus != VendorQuoteStatusReceived {
			return errors.PreconditionFailed("vendor_quote_open",
				fmt.Sprintf("vendor quote is %s", quoteStatus)).
				WithDetail("vendor_quote_id", quoteID).
				WithDetail("status", quoteStatus)
		}

		_, err = tx.Exec(ctx, `
			UPDATE vendor_quotes
			SET quote_number = $2, total_cost = $3, lead_time_days = $4, notes = $5, line_items = $6,
			    status = $7, received_at = $8, updated_at = now()
			WHERE id = $1
		`, quoteID, resp.QuoteNumber, resp.TotalCost, resp.LeadTimeDays, resp.Notes, lineItemsJSON,
			VendorQuoteStatusReceived, at)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record vendor quote")
		}

		_, err = tx.Exec(ctx, `
			UPDATE quote_requests
			SET status = $2, updated_at = now()
			WHERE id = $1 AND status IN ($3, $4)
		`, requestID, QuoteRequestStatusResponsesReceived, QuoteRequestStatusDraft, QuoteRequestStatusSent)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update quote request status")
		}

		if result.QuoteRequest, err = getQuoteRequest(ctx, tx, requestID); err != nil {
			return err
		}
		result.Quote = findQuote(result.QuoteRequest, quoteID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Award accepts one vendor quote, assigns the vendor to the job, closes the
// request and rejects every open sibling, all in one transaction. The request
// row is locked first so concurrent awards queue; whoever comes second finds
// the request awarded and gets a conflict.
func (r *QuoteRequestRepository) Award(ctx context.Context, quoteID string, at time.Time) (*AwardResult, error) {
	result := &AwardResult{}
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		requestID, err := quoteRequestIDOf(ctx, tx, quoteID)
		if err != nil {
			return err
		}

		status, jobID, err := lockQuoteRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		switch status {
		case QuoteRequestStatusAwarded:
			return errors.Conflict("quote request has already been awarded").
				WithDetail("quote_request_id", requestID)
		case QuoteRequestStatusDraft:
			return errors.PreconditionFailed("quote_request_dispatched",
				"quote request has not been dispatched yet").
				WithDetail("quote_request_id", requestID).
				WithDetail("status", status)
		case QuoteRequestStatusCancelled:
			return errors.PreconditionFailed("quote_request_open", "quote request is cancelled").
				WithDetail("quote_request_id", requestID).
				WithDetail("status", status)
		}
		result.RequestStatusBefore = status

		quoteStatus, vendorID, err := lockVendorQuote(ctx, tx, quoteID)
		if err != nil {
			return err
		}
		if quoteStatus != VendorQuoteStatusPending && quoteStatus != VendorQuoteStatusReceived {
			return errors.PreconditionFailed("vendor_quote_open",
				fmt.Sprintf("vendor quote is %s", quoteStatus)).
				WithDetail("vendor_quote_id", quoteID).
				WithDetail("status", quoteStatus)
		}

		err = tx.QueryRow(ctx, `SELECT vendor_id FROM jobs WHERE id = $1 FOR UPDATE`, jobID).
			Scan(&result.PreviousVendorID)
		if err == pgx.ErrNoRows {
			return errors.NotFound("job", jobID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock job")
		}

		if _, err := tx.Exec(ctx, `
			UPDATE vendor_quotes
			SET status = $2, accepted_at = $3, updated_at = now()
			WHERE id = $1
		`, quoteID, VendorQuoteStatusAccepted, at); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to accept vendor quote")
		}

		if _, err := tx.Exec(ctx, `
			UPDATE jobs SET vendor_id = $2, updated_at = now() WHERE id = $1
		`, jobID, vendorID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to assign vendor to job")
		}

		tag, err := tx.Exec(ctx, `
			UPDATE quote_requests
			SET status = $2, awarded_at = $3, awarded_vendor_quote_id = $4, updated_at = now()
			WHERE id = $1 AND status IN ($5, $6)
		`, requestID, QuoteRequestStatusAwarded, at, quoteID,
			QuoteRequestStatusSent, QuoteRequestStatusResponsesReceived)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to award quote request")
		}
		if tag.RowsAffected() != 1 {
			return errors.Conflict("quote request changed while awarding").
				WithDetail("quote_request_id", requestID)
		}

		if result.RejectedQuoteIDs, err = rejectOpenQuotes(ctx, tx, requestID, quoteID, at); err != nil {
			return err
		}

		if result.QuoteRequest, err = getQuoteRequest(ctx, tx, requestID); err != nil {
			return err
		}
		result.Accepted = findQuote(result.QuoteRequest, quoteID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel closes an open request and rejects its open quotes.
func (r *QuoteRequestRepository) Cancel(ctx context.Context, requestID, reason string, at time.Time) (*CancelResult, error) {
	result := &CancelResult{}
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		status, _, err := lockQuoteRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if status == QuoteRequestStatusAwarded || status == QuoteRequestStatusCancelled {
			return errors.PreconditionFailed("quote_request_open",
				fmt.Sprintf("quote request is already %s", status)).
				WithDetail("quote_request_id", requestID).
				WithDetail("status", status)
		}
		result.RequestStatusBefore = status

		if _, err := tx.Exec(ctx, `
			UPDATE quote_requests
			SET status = $2, cancelled_at = $3, cancel_reason = $4, updated_at = now()
			WHERE id = $1
		`, requestID, QuoteRequestStatusCancelled, at, reason); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to cancel quote request")
		}

		if result.RejectedQuoteIDs, err = rejectOpenQuotes(ctx, tx, requestID, "", at); err != nil {
			return err
		}

		result.QuoteRequest, err = getQuoteRequest(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func rejectOpenQuotes(ctx context.Context, tx pgx.Tx, requestID, exceptID string, at time.Time) ([]string, error) {
	rows, err := tx.Query(ctx, `
		UPDATE vendor_quotes
		SET status = $3, rejected_at = $4, updated_at = now()
		WHERE quote_request_id = $1 AND id::text <> $2 AND status IN ($5, $6)
		RETURNING id
	`, requestID, exceptID, VendorQuoteStatusRejected, at, VendorQuoteStatusPending, VendorQuoteStatusReceived)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to reject vendor quotes")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan rejected quote")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to reject vendor quotes")
	}
	return ids, nil
}

func quoteRequestIDOf(ctx context.Context, q queryer, quoteID string) (string, error) {
	var requestID string
	err := q.QueryRow(ctx, `SELECT quote_request_id FROM vendor_quotes WHERE id = $1`, quoteID).Scan(&requestID)
	if err == pgx.ErrNoRows {
		return "", errors.NotFound("vendor_quote", quoteID)
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to get vendor quote")
	}
	return requestID, nil
}

func lockQuoteRequest(ctx context.Context, tx pgx.Tx, id string) (status, jobID string, err error) {
	err = tx.QueryRow(ctx, `SELECT status, job_id FROM quote_requests WHERE id = $1 FOR UPDATE`, id).
		Scan(&status, &jobID)
	if err == pgx.ErrNoRows {
		return "", "", errors.NotFound("quote_request", id)
	}
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrCodeInternal, "failed to lock quote request")
	}
	return status, jobID, nil
}

func lockVendorQuote(ctx context.Context, tx pgx.Tx, id string) (status, vendorID string, err error) {
	err = tx.QueryRow(ctx, `SELECT status, vendor_id FROM vendor_quotes WHERE id = $1 FOR UPDATE`, id).
		Scan(&status, &vendorID)
	if err == pgx.ErrNoRows {
		return "", "", errors.NotFound("vendor_quote", id)
	}
	if err != nil {
		return "", "", errors.Wrap(err, errors.ErrCodeInternal, "failed to lock vendor quote")
	}
	return status, vendorID, nil
}

const requestSelect = `
	SELECT id, job_id, request_number, spec_snapshot, required_services, due_date, status,
	       sent_at, awarded_at, awarded_vendor_quote_id, cancelled_at, cancel_reason,
	       created_by, created_at, updated_at
	FROM quote_requests
`

func getQuoteRequest(ctx context.Context, q queryer, id string) (*QuoteRequest, error) {
	qr, err := scanQuoteRequest(q.QueryRow(ctx, requestSelect+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("quote_request", id)
	}
	if err != nil {
		return nil, err
	}

	qr.Quotes, err = listQuotes(ctx, q, `WHERE q.quote_request_id = $1`, id)
	if err != nil {
		return nil, err
	}
	return qr, nil
}

func scanQuoteRequest(row pgx.Row) (*QuoteRequest, error) {
	qr := &QuoteRequest{}
	var (
		specJSON []byte
		services []string
	)
	err := row.Scan(
		&qr.ID,
		&qr.JobID,
		&qr.RequestNumber,
		&specJSON,
		&services,
		&qr.DueDate,
		&qr.Status,
		&qr.SentAt,
		&qr.AwardedAt,
		&qr.AwardedVendorQuoteID,
		&qr.CancelledAt,
		&qr.CancelReason,
		&qr.CreatedBy,
		&qr.CreatedAt,
		&qr.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan quote request")
	}

	if err := json.Unmarshal(specJSON, &qr.SpecSnapshot); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode spec snapshot")
	}
	if qr.RequiredServices, err = matching.ParseServiceSet(services); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode required services")
	}
	return qr, nil
}

const quoteSelect = `
	SELECT q.id, q.quote_request_id, q.vendor_id, v.name, v.email, q.status, q.match_score,
	       q.quote_number, q.total_cost, q.lead_time_days, q.notes, q.line_items,
	       q.sent_at, q.received_at, q.accepted_at, q.rejected_at, q.created_at, q.updated_at
	FROM vendor_quotes q
	JOIN vendors v ON v.id = q.vendor_id
`

func getVendorQuote(ctx context.Context, q queryer, id string) (*VendorQuote, error) {
	quotes, err := listQuotes(ctx, q, `WHERE q.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, errors.NotFound("vendor_quote", id)
	}
	return quotes[0], nil
}

func listQuotes(ctx context.Context, q queryer, where string, args ...any) ([]*VendorQuote, error) {
	rows, err := q.Query(ctx, quoteSelect+where+` ORDER BY q.match_score DESC, v.name, q.id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get vendor quotes")
	}
	defer rows.Close()

	var quotes []*VendorQuote
	for rows.Next() {
		vq := &VendorQuote{}
		var lineItemsJSON []byte
		err := rows.Scan(
			&vq.ID,
			&vq.QuoteRequestID,
			&vq.VendorID,
			&vq.VendorName,
			&vq.VendorEmail,
			&vq.Status,
			&vq.MatchScore,
			&vq.QuoteNumber,
			&vq.TotalCost,
			&vq.LeadTimeDays,
			&vq.Notes,
			&lineItemsJSON,
			&vq.SentAt,
			&vq.ReceivedAt,
			&vq.AcceptedAt,
			&vq.RejectedAt,
			&vq.CreatedAt,
			&vq.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan vendor quote")
		}
		if len(lineItemsJSON) > 0 {
			if err := json.Unmarshal(lineItemsJSON, &vq.LineItems); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode quote line items")
			}
		}
		quotes = append(quotes, vq)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate vendor quotes")
	}
	return quotes, nil
}

func findQuote(qr *QuoteRequest, id string) *VendorQuote {
	for _, q := range qr.Quotes {
		if q.ID == id {
			return q
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}
