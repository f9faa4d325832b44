package repository

import (
	"context"
	"database/sql"

	"github.com/lumenhq/courier-backend/internal/apperrors"
	"github.com/lumenhq/courier-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	GetVersionByID(ctx context.Context, tenantID, id string) (*model.TemplateVersion, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) GetVersionByID(ctx context.Context, tenantID, id string) (*model.TemplateVersion, error) {
	query := `
        SELECT id, tenant_id, template_name, version, channel,
               COALESCE(subject_pattern, ''), text_pattern, COALESCE(html_pattern, ''), created_at
        FROM template_versions
        WHERE tenant_id=$1 AND id=$2
    `
	var tv model.TemplateVersion
	err := r.DB.QueryRowContext(ctx, query, tenantID, id).Scan(
		&tv.ID, &tv.TenantID, &tv.TemplateName, &tv.Version, &tv.Channel,
		&tv.SubjectPattern, &tv.TextPattern, &tv.HTMLPattern, &tv.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewNotFound("template version", id)
		}
		return nil, err
	}
	return &tv, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
