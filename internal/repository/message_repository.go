package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lumenhq/courier-backend/internal/model"
)

// MessageRepositoryInterface is the durable ledger contract. Rows are inserted
// once per accepted send and never deleted; only status, provider fields, and
// timestamps mutate.
type MessageRepositoryInterface interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, tenantID, id string) (*model.Message, error)
	// FindByIdempotencyKey searches prior outbound messages for the tenant and
	// contact whose metadata carries the key. Returns nil when unseen.
	FindByIdempotencyKey(ctx context.Context, tenantID, contactID, key string) (*model.Message, error)
	MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string, failedAt time.Time) error
	ListByConversation(ctx context.Context, tenantID, conversationID string) ([]*model.Message, error)
}

type MessageRepository struct {
	DB *sql.DB
}

const messageColumns = `id, tenant_id, conversation_id, contact_id, direction, channel, provider,
               status, COALESCE(subject, ''), body_text, COALESCE(body_html, ''),
               to_address, COALESCE(from_address, ''), COALESCE(provider_message_id, ''),
               COALESCE(metadata, '{}'), created_at, sent_at, failed_at`

func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Direction == "" {
		msg.Direction = model.DirectionOutbound
	}
	msg.CreatedAt = time.Now().UTC()

	rawMeta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO messages
        (id, tenant_id, conversation_id, contact_id, direction, channel, provider, status,
         subject, body_text, body_html, to_address, from_address, metadata, created_at, failed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `
	_, err = r.DB.ExecContext(ctx, query,
		msg.ID, msg.TenantID, msg.ConversationID, msg.ContactID, msg.Direction, msg.Channel,
		msg.Provider, msg.Status, msg.Subject, msg.BodyText, msg.BodyHTML,
		msg.ToAddress, msg.FromAddress, rawMeta, msg.CreatedAt, msg.FailedAt,
	)
	return err
}

func (r *MessageRepository) GetByID(ctx context.Context, tenantID, id string) (*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE tenant_id=$1 AND id=$2`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, tenantID, id))
}

func (r *MessageRepository) FindByIdempotencyKey(ctx context.Context, tenantID, contactID, key string) (*model.Message, error) {
	query := `
        SELECT ` + messageColumns + `
        FROM messages
        WHERE tenant_id=$1 AND contact_id=$2 AND direction='outbound'
          AND metadata->>'idempotency_key' = $3
        ORDER BY created_at ASC
        LIMIT 1
    `
	return r.scanOne(r.DB.QueryRowContext(ctx, query, tenantID, contactID, key))
}

func (r *MessageRepository) MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	query := `UPDATE messages SET status='sent', provider_message_id=$1, sent_at=$2 WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, providerMessageID, sentAt, id)
	return err
}

// MarkFailed records a terminal failure. The reason lands in metadata under
// provider_error so the row stays self-describing without a schema change.
func (r *MessageRepository) MarkFailed(ctx context.Context, id, reason string, failedAt time.Time) error {
	query := `
        UPDATE messages
        SET status='failed', failed_at=$1,
            metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('provider_error', $2::text)
        WHERE id=$3
    `
	_, err := r.DB.ExecContext(ctx, query, failedAt, reason, id)
	return err
}

func (r *MessageRepository) ListByConversation(ctx context.Context, tenantID, conversationID string) ([]*model.Message, error) {
	query := `
        SELECT ` + messageColumns + `
        FROM messages
        WHERE tenant_id=$1 AND conversation_id=$2
        ORDER BY created_at ASC
    `
	rows, err := r.DB.QueryContext(ctx, query, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*model.Message{}
	for rows.Next() {
		msg, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *MessageRepository) scanOne(row *sql.Row) (*model.Message, error) {
	msg, err := r.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepository) scanRow(row rowScanner) (*model.Message, error) {
	var msg model.Message
	var rawMeta []byte
	err := row.Scan(
		&msg.ID, &msg.TenantID, &msg.ConversationID, &msg.ContactID, &msg.Direction,
		&msg.Channel, &msg.Provider, &msg.Status, &msg.Subject, &msg.BodyText, &msg.BodyHTML,
		&msg.ToAddress, &msg.FromAddress, &msg.ProviderMessageID, &rawMeta,
		&msg.CreatedAt, &msg.SentAt, &msg.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &msg.Metadata); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
