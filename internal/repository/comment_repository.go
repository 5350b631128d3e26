package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// PGCommentRepository handles document comments.
type PGCommentRepository struct {
	q database.Querier
}

// NewCommentRepository creates a new PGCommentRepository.
func NewCommentRepository(q database.Querier) *PGCommentRepository {
	return &PGCommentRepository{q: q}
}

func (r *PGCommentRepository) Create(ctx context.Context, c *Comment) error {
	query := `
		INSERT INTO comments (document_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := r.q.QueryRow(ctx, query, c.DocumentID, c.AuthorID, c.Body).Scan(&c.ID, &c.CreatedAt); err != nil {
		return storeError(err, "failed to create comment")
	}
	return nil
}

func (r *PGCommentRepository) GetByID(ctx context.Context, id string) (*Comment, error) {
	c := &Comment{}
	err := r.q.QueryRow(ctx,
		`SELECT id, document_id, author_id, body, created_at FROM comments WHERE id = $1`, id,
	).Scan(&c.ID, &c.DocumentID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("comment", id)
	}
	if err != nil {
		return nil, storeError(err, "failed to get comment")
	}
	return c, nil
}

// ListByDocument returns comments oldest first.
func (r *PGCommentRepository) ListByDocument(ctx context.Context, documentID string) ([]*Comment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, document_id, author_id, body, created_at
		FROM comments
		WHERE document_id = $1
		ORDER BY created_at ASC
	`, documentID)
	if err != nil {
		return nil, errors.Unavailable(err, "failed to list comments")
	}
	defer rows.Close()

	comments := make([]*Comment, 0)
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan comment")
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable(err, "failed to iterate comments")
	}
	return comments, nil
}

func (r *PGCommentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return errors.Unavailable(err, "failed to delete comment")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("comment", id)
	}
	return nil
}
