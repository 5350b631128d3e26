package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// PGTemplateRepository handles CRUD for templates.
type PGTemplateRepository struct {
	q database.Querier
}

// NewTemplateRepository creates a new PGTemplateRepository.
func NewTemplateRepository(q database.Querier) *PGTemplateRepository {
	return &PGTemplateRepository{q: q}
}

// Create inserts a new template.
func (r *PGTemplateRepository) Create(ctx context.Context, t *Template) error {
	query := `
		INSERT INTO templates (name, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.q.QueryRow(ctx, query, t.Name, t.Description, t.CreatedBy).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return storeError(err, "failed to create template")
	}
	return nil
}

// GetByID retrieves a template by primary key.
func (r *PGTemplateRepository) GetByID(ctx context.Context, id string) (*Template, error) {
	query := `
		SELECT id, name, description, created_by, created_at, updated_at
		FROM templates
		WHERE id = $1
	`
	t, err := scanTemplate(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("template", id)
	}
	if err != nil {
		return nil, storeError(err, "failed to get template")
	}
	return t, nil
}

// List returns templates ordered by name.
func (r *PGTemplateRepository) List(ctx context.Context, limit, offset int) ([]*Template, int64, error) {
	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM templates`).Scan(&total); err != nil {
		return nil, 0, errors.Unavailable(err, "failed to count templates")
	}

	query := `
		SELECT id, name, description, created_by, created_at, updated_at
		FROM templates
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, errors.Unavailable(err, "failed to list templates")
	}
	defer rows.Close()

	templates := make([]*Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan template")
		}
		templates = append(templates, t)
	}
	return templates, total, rows.Err()
}

// Update persists name and description.
func (r *PGTemplateRepository) Update(ctx context.Context, t *Template) error {
	query := `
		UPDATE templates
		SET name        = $2,
		    description = $3,
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.q.QueryRow(ctx, query, t.ID, t.Name, t.Description).Scan(&t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("template", t.ID)
	}
	if err != nil {
		return errors.Unavailable(err, "failed to update template")
	}
	return nil
}

// Delete removes a template. Its route cascades; documents keep a NULL template.
func (r *PGTemplateRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return errors.Unavailable(err, "failed to delete template")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("template", id)
	}
	return nil
}

func scanTemplate(row rowScanner) (*Template, error) {
	t := &Template{}
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}
