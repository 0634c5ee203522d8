package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-print-rfq/internal/platform/database"
	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
)

// QuoteEventRepository appends and reads the quote request audit trail.
type QuoteEventRepository struct {
	db *database.DB
}

// NewQuoteEventRepository creates a new QuoteEventRepository.
func NewQuoteEventRepository(db *database.DB) *QuoteEventRepository {
	return &QuoteEventRepository{db: db}
}

// Append inserts one event. Events are never updated or deleted.
func (r *QuoteEventRepository) Append(ctx context.Context, event *QuoteRequestEvent) error {
	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal event metadata")
		}
	}

	query := `
		INSERT INTO quote_request_events
		    (quote_request_id, vendor_quote_id, action, performed_by,
		     status_before, status_after, metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7)
		RETURNING id, performed_at
	`

	err := r.db.QueryRow(ctx, query,
		event.QuoteRequestID,
		event.VendorQuoteID,
		event.Action,
		event.PerformedBy,
		event.StatusBefore,
		event.StatusAfter,
		metadataJSON,
	).Scan(&event.ID, &event.PerformedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append quote request event")
	}
	return nil
}

// ListByQuoteRequestID returns the audit trail for a request, oldest first.
func (r *QuoteEventRepository) ListByQuoteRequestID(ctx context.Context, requestID string) ([]*QuoteRequestEvent, error) {
	query := `
		SELECT id, quote_request_id, vendor_quote_id, action, performed_by, performed_at,
		       status_before, status_after, metadata
		FROM quote_request_events
		WHERE quote_request_id = $1
		ORDER BY performed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get quote request events")
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*QuoteRequestEvent, error) {
	var events []*QuoteRequestEvent
	for rows.Next() {
		event := &QuoteRequestEvent{}
		var metadataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.QuoteRequestID,
			&event.VendorQuoteID,
			&event.Action,
			&event.PerformedBy,
			&event.PerformedAt,
			&event.StatusBefore,
			&event.StatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan quote request event")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal event metadata")
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate quote request events")
	}
	return events, nil
}
