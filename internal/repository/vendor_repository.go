package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-print-rfq/internal/matching"
	"github.com/pesio-ai/be-print-rfq/internal/platform/database"
	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
)

// VendorRepository reads the vendor pool and capability profiles.
type VendorRepository struct {
	db *database.DB
}

// NewVendorRepository creates a new vendor repository
func NewVendorRepository(db *database.DB) *VendorRepository {
	return &VendorRepository{db: db}
}

const vendorSelect = `
	SELECT v.id, v.name, v.contact_name, v.email, v.phone, v.is_partner,
	       c.vendor_id IS NOT NULL,
	       COALESCE(c.printing, false), COALESCE(c.binding, false),
	       COALESCE(c.foil_stamping, false), COALESCE(c.embossing, false),
	       COALESCE(c.die_cutting, false), COALESCE(c.uv_coating, false),
	       COALESCE(c.lamination, false), COALESCE(c.scoring, false),
	       COALESCE(c.folding, false),
	       c.min_quantity, c.max_quantity, c.avg_lead_time_days
	FROM vendors v
	LEFT JOIN vendor_capabilities c ON c.vendor_id = v.id
`

// ListActive returns every active vendor ordered by name.
func (r *VendorRepository) ListActive(ctx context.Context) ([]matching.Vendor, error) {
	rows, err := r.db.Query(ctx, vendorSelect+` WHERE v.is_active ORDER BY v.name, v.id`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list vendors")
	}
	defer rows.Close()

	return scanVendors(rows)
}

// GetByIDs resolves an explicit vendor list. Duplicate IDs collapse and the
// result keeps the order of first appearance. Any unknown ID is NotFound.
func (r *VendorRepository) GetByIDs(ctx context.Context, ids []string) ([]matching.Vendor, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, vendorSelect+` WHERE v.id::text = ANY($1)`, unique)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get vendors")
	}
	defer rows.Close()

	found, err := scanVendors(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]matching.Vendor, len(found))
	for _, v := range found {
		byID[v.ID] = v
	}

	out := make([]matching.Vendor, 0, len(unique))
	for _, id := range unique {
		v, ok := byID[id]
		if !ok {
			return nil, errors.NotFound("vendor", id)
		}
		out = append(out, v)
	}
	return out, nil
}

func scanVendors(rows pgx.Rows) ([]matching.Vendor, error) {
	var vendors []matching.Vendor
	for rows.Next() {
		var (
			v          matching.Vendor
			hasProfile bool
			caps       matching.Capabilities
			profile    matching.CapabilityProfile
		)
		err := rows.Scan(
			&v.ID, &v.Name, &v.ContactName, &v.Email, &v.Phone, &v.IsPartner,
			&hasProfile,
			&caps.Printing, &caps.Binding,
			&caps.FoilStamping, &caps.Embossing,
			&caps.DieCutting, &caps.UVCoating,
			&caps.Lamination, &caps.Scoring,
			&caps.Folding,
			&profile.MinQuantity, &profile.MaxQuantity, &profile.AvgLeadTimeDays,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan vendor")
		}
		if hasProfile {
			profile.Capabilities = caps
			v.Profile = &profile
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to iterate vendors")
	}
	return vendors, nil
}
