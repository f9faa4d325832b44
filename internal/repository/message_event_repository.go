package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lumenhq/courier-backend/internal/model"
)

// MessageEventRepositoryInterface is append-only: events are inserted and
// listed, never updated or deleted.
type MessageEventRepositoryInterface interface {
	Append(ctx context.Context, event *model.MessageEvent) error
	ListByMessage(ctx context.Context, tenantID, messageID string) ([]*model.MessageEvent, error)
}

type MessageEventRepository struct {
	DB *sql.DB
}

func (r *MessageEventRepository) Append(ctx context.Context, event *model.MessageEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.CreatedAt = time.Now().UTC()

	rawMeta, err := json.Marshal(event.Metadata)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO message_events (id, message_id, tenant_id, event_type, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err = r.DB.ExecContext(ctx, query,
		event.ID, event.MessageID, event.TenantID, event.EventType, rawMeta, event.CreatedAt)
	return err
}

func (r *MessageEventRepository) ListByMessage(ctx context.Context, tenantID, messageID string) ([]*model.MessageEvent, error) {
	query := `
        SELECT id, message_id, tenant_id, event_type, COALESCE(metadata, '{}'), created_at
        FROM message_events
        WHERE tenant_id=$1 AND message_id=$2
        ORDER BY created_at ASC
    `
	rows, err := r.DB.QueryContext(ctx, query, tenantID, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*model.MessageEvent{}
	for rows.Next() {
		e := &model.MessageEvent{}
		var rawMeta []byte
		if err := rows.Scan(&e.ID, &e.MessageID, &e.TenantID, &e.EventType, &rawMeta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ MessageEventRepositoryInterface = (*MessageEventRepository)(nil)
