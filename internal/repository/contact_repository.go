package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lumenhq/courier-backend/internal/apperrors"
	"github.com/lumenhq/courier-backend/internal/model"
)

// ContactRepositoryInterface defines the reads the pipeline needs. Contacts are
// owned by profile management; this pipeline never writes them.
type ContactRepositoryInterface interface {
	GetByID(ctx context.Context, tenantID, id string) (*model.Contact, error)
}

type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) GetByID(ctx context.Context, tenantID, id string) (*model.Contact, error) {
	query := `
        SELECT id, tenant_id, display_name, COALESCE(email, ''), COALESCE(phone_e164, ''),
               opted_out, bounced, invalid_address, COALESCE(metadata, '{}'), created_at
        FROM contacts
        WHERE tenant_id=$1 AND id=$2
    `
	var c model.Contact
	var rawMeta []byte
	err := r.DB.QueryRowContext(ctx, query, tenantID, id).Scan(
		&c.ID, &c.TenantID, &c.DisplayName, &c.Email, &c.PhoneE164,
		&c.OptedOut, &c.Bounced, &c.InvalidAddress, &rawMeta, &c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("contact", id)
		}
		return nil, err
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &c.Metadata); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
