package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// PGDocumentRepository handles document data operations
type PGDocumentRepository struct {
	q database.Querier
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(q database.Querier) *PGDocumentRepository {
	return &PGDocumentRepository{q: q}
}

const documentColumns = `
	id, number, title, description, status, template_id, initiator_id,
	current_approver_id, current_step_number, approval_round,
	created_at, updated_at`

// Create inserts a draft document and assigns its human-readable number.
func (r *PGDocumentRepository) Create(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (number, title, description, status, template_id, initiator_id)
		VALUES ('DOC-' || to_char(NOW(), 'YYYY') || '-' || lpad(nextval('document_number_seq')::text, 6, '0'),
		        $1, $2, $3, $4, $5)
		RETURNING id, number, approval_round, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		doc.Title,
		doc.Description,
		string(doc.Status),
		doc.TemplateID,
		doc.InitiatorID,
	).Scan(&doc.ID, &doc.Number, &doc.ApprovalRound, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return storeError(err, "failed to create document")
	}
	return nil
}

// GetByID retrieves a document by ID
func (r *PGDocumentRepository) GetByID(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return r.get(ctx, query, id)
}

// GetForUpdate retrieves a document and locks its row for the rest of the
// transaction. Concurrent deciders on the same document queue here.
func (r *PGDocumentRepository) GetForUpdate(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 FOR UPDATE`
	return r.get(ctx, query, id)
}

func (r *PGDocumentRepository) get(ctx context.Context, query, id string) (*Document, error) {
	doc, err := scanDocument(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("document", id)
	}
	if err != nil {
		return nil, storeError(err, "failed to get document")
	}
	return doc, nil
}

// List retrieves documents with filtering and pagination
func (r *PGDocumentRepository) List(ctx context.Context, filter DocumentFilter) ([]*Document, int64, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM documents WHERE 1=1`

	args := []interface{}{}
	argCount := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		countQuery += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}

	if filter.InitiatorID != nil {
		query += fmt.Sprintf(" AND initiator_id = $%d", argCount)
		countQuery += fmt.Sprintf(" AND initiator_id = $%d", argCount)
		args = append(args, *filter.InitiatorID)
		argCount++
	}

	if filter.TemplateID != nil {
		query += fmt.Sprintf(" AND template_id = $%d", argCount)
		countQuery += fmt.Sprintf(" AND template_id = $%d", argCount)
		args = append(args, *filter.TemplateID)
		argCount++
	}

	query += " ORDER BY created_at DESC, number DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)

	queryArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)

	var total int64
	if err := r.q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Unavailable(err, "failed to count documents")
	}

	rows, err := r.q.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Unavailable(err, "failed to list documents")
	}
	defer rows.Close()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document")
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Unavailable(err, "failed to iterate documents")
	}

	return docs, total, nil
}

// Update persists editable document fields
func (r *PGDocumentRepository) Update(ctx context.Context, doc *Document) error {
	query := `
		UPDATE documents
		SET title       = $2,
		    description = $3,
		    template_id = $4,
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	return r.exec(ctx, doc, query, doc.ID, doc.Title, doc.Description, doc.TemplateID)
}

// UpdateState persists the approval projection of a document
func (r *PGDocumentRepository) UpdateState(ctx context.Context, doc *Document) error {
	query := `
		UPDATE documents
		SET status              = $2,
		    current_approver_id = $3,
		    current_step_number = $4,
		    approval_round      = $5,
		    updated_at          = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	return r.exec(ctx, doc, query,
		doc.ID, string(doc.Status), doc.CurrentApproverID, doc.CurrentStepNumber, doc.ApprovalRound)
}

func (r *PGDocumentRepository) exec(ctx context.Context, doc *Document, query string, args ...any) error {
	var updatedAt time.Time
	err := r.q.QueryRow(ctx, query, args...).Scan(&updatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("document", doc.ID)
	}
	if err != nil {
		return errors.Unavailable(err, "failed to update document")
	}
	doc.UpdatedAt = updatedAt
	return nil
}

// Delete removes a document; approvals, comments and files cascade
func (r *PGDocumentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return errors.Unavailable(err, "failed to delete document")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("document", id)
	}
	return nil
}

func scanDocument(row rowScanner) (*Document, error) {
	doc := &Document{}
	var status string
	err := row.Scan(
		&doc.ID,
		&doc.Number,
		&doc.Title,
		&doc.Description,
		&status,
		&doc.TemplateID,
		&doc.InitiatorID,
		&doc.CurrentApproverID,
		&doc.CurrentStepNumber,
		&doc.ApprovalRound,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = DocumentStatus(status)
	return doc, nil
}
