package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// PGRouteRepository stores approval routes. Steps live in a JSONB column so a
// route is always read and replaced as a whole.
type PGRouteRepository struct {
	q database.Querier
}

// NewRouteRepository creates a new PGRouteRepository.
func NewRouteRepository(q database.Querier) *PGRouteRepository {
	return &PGRouteRepository{q: q}
}

// Upsert inserts or replaces the route of a template.
func (r *PGRouteRepository) Upsert(ctx context.Context, route *ApprovalRoute) error {
	stepsJSON, err := json.Marshal(route.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal route steps")
	}

	query := `
		INSERT INTO approval_routes (template_id, name, steps)
		VALUES ($1, $2, $3)
		ON CONFLICT (template_id) DO UPDATE
		SET name       = EXCLUDED.name,
		    steps      = EXCLUDED.steps,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query, route.TemplateID, route.Name, stepsJSON).
		Scan(&route.ID, &route.CreatedAt, &route.UpdatedAt)
	if err != nil {
		return storeError(err, "failed to save approval route")
	}
	return nil
}

// GetByTemplateID returns the route for a template, or nil when none exists.
func (r *PGRouteRepository) GetByTemplateID(ctx context.Context, templateID string) (*ApprovalRoute, error) {
	query := `
		SELECT id, template_id, name, steps, created_at, updated_at
		FROM approval_routes
		WHERE template_id = $1
	`

	route, err := r.scanRoute(r.q.QueryRow(ctx, query, templateID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnavailable, "failed to get approval route")
	}
	return route, nil
}

// DeleteByTemplateID removes a template's route.
func (r *PGRouteRepository) DeleteByTemplateID(ctx context.Context, templateID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM approval_routes WHERE template_id = $1`, templateID)
	if err != nil {
		return errors.Unavailable(err, "failed to delete approval route")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_route", templateID)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func (r *PGRouteRepository) scanRoute(row rowScanner) (*ApprovalRoute, error) {
	route := &ApprovalRoute{}
	var stepsJSON []byte

	err := row.Scan(
		&route.ID,
		&route.TemplateID,
		&route.Name,
		&stepsJSON,
		&route.CreatedAt,
		&route.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stepsJSON, &route.Steps); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal route steps")
	}
	return route, nil
}
