package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-print-rfq/internal/matching"
	"github.com/pesio-ai/be-print-rfq/internal/platform/database"
	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
)

// JobRepository reads print jobs owned by the jobs service.
type JobRepository struct {
	db *database.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *database.DB) *JobRepository {
	return &JobRepository{db: db}
}

// GetByID loads a job with its specification and line items.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*Job, error) {
	query := `
		SELECT id, job_number, title, customer_name, specification, vendor_id, due_date,
		       created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	job := &Job{}
	var specJSON []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.JobNumber,
		&job.Title,
		&job.Customer,
		&specJSON,
		&job.VendorID,
		&job.DueDate,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("job", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get job")
	}

	if len(specJSON) > 0 && string(specJSON) != "null" {
		var spec matching.JobSpec
		if err := json.Unmarshal(specJSON, &spec); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode job specification")
		}
		job.Spec = &spec
	}

	lines, err := r.getLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	job.LineItems = lines

	return job, nil
}

func (r *JobRepository) getLineItems(ctx context.Context, jobID string) ([]*JobLineItem, error) {
	query := `
		SELECT id, line_number, description, quantity, notes
		FROM job_line_items
		WHERE job_id = $1
		ORDER BY line_number
	`

	rows, err := r.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get job line items")
	}
	defer rows.Close()

	var lines []*JobLineItem
	for rows.Next() {
		line := &JobLineItem{}
		if err := rows.Scan(&line.ID, &line.LineNumber, &line.Description, &line.Quantity, &line.Notes); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan job line item")
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate job line items")
	}

	return lines, nil
}
