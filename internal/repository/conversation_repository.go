package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/lumenhq/courier-backend/internal/model"
)

type ConversationRepositoryInterface interface {
	// FindLatestOpen returns the most-recently-updated open conversation for
	// the (tenant, contact, channel) key, or nil when none exists.
	FindLatestOpen(ctx context.Context, tenantID, contactID, channel string) (*model.Conversation, error)
	Create(ctx context.Context, conv *model.Conversation) error
	Touch(ctx context.Context, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*model.Conversation, error)
	ListByContact(ctx context.Context, tenantID, contactID string) ([]*model.Conversation, error)
}

type ConversationRepository struct {
	DB *sql.DB
}

func (r *ConversationRepository) FindLatestOpen(ctx context.Context, tenantID, contactID, channel string) (*model.Conversation, error) {
	query := `
        SELECT id, tenant_id, contact_id, channel, subject, status, created_at, updated_at
        FROM conversations
        WHERE tenant_id=$1 AND contact_id=$2 AND channel=$3 AND status='open'
        ORDER BY COALESCE(updated_at, created_at) DESC
        LIMIT 1
    `
	var c model.Conversation
	err := r.DB.QueryRowContext(ctx, query, tenantID, contactID, channel).Scan(
		&c.ID, &c.TenantID, &c.ContactID, &c.Channel, &c.Subject, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.CreatedAt = time.Now().UTC()
	if conv.Status == "" {
		conv.Status = model.ConversationOpen
	}
	query := `
        INSERT INTO conversations (id, tenant_id, contact_id, channel, subject, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.DB.ExecContext(ctx, query,
		conv.ID, conv.TenantID, conv.ContactID, conv.Channel, conv.Subject, conv.Status, conv.CreatedAt)
	return err
}

// Touch bumps updated_at so FindLatestOpen keeps picking the active thread.
func (r *ConversationRepository) Touch(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE conversations SET updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *ConversationRepository) GetByID(ctx context.Context, tenantID, id string) (*model.Conversation, error) {
	query := `
        SELECT id, tenant_id, contact_id, channel, subject, status, created_at, updated_at
        FROM conversations
        WHERE tenant_id=$1 AND id=$2
    `
	var c model.Conversation
	err := r.DB.QueryRowContext(ctx, query, tenantID, id).Scan(
		&c.ID, &c.TenantID, &c.ContactID, &c.Channel, &c.Subject, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) ListByContact(ctx context.Context, tenantID, contactID string) ([]*model.Conversation, error) {
	query := `
        SELECT id, tenant_id, contact_id, channel, subject, status, created_at, updated_at
        FROM conversations
        WHERE tenant_id=$1 AND contact_id=$2
        ORDER BY COALESCE(updated_at, created_at) DESC
    `
	rows, err := r.DB.QueryContext(ctx, query, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []*model.Conversation{}
	for rows.Next() {
		c := &model.Conversation{}
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ContactID, &c.Channel, &c.Subject, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

var _ ConversationRepositoryInterface = (*ConversationRepository)(nil)
