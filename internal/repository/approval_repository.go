package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// PGApprovalRepository handles approval vote records. Records are created in
// batches when a step activates and decided exactly once.
type PGApprovalRepository struct {
	q database.Querier
}

// NewApprovalRepository creates a new PGApprovalRepository.
func NewApprovalRepository(q database.Querier) *PGApprovalRepository {
	return &PGApprovalRepository{q: q}
}

const approvalColumns = `
	id, document_id, round, approver_id, step_number, step_name,
	require_all, status, comment, decided_at, created_at`

// CreateBatch inserts one PENDING record per approval.
func (r *PGApprovalRepository) CreateBatch(ctx context.Context, approvals []*Approval) error {
	query := `
		INSERT INTO approvals (document_id, round, approver_id, step_number, step_name, require_all, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	for _, a := range approvals {
		if a.Status == "" {
			a.Status = ApprovalPending
		}
		err := r.q.QueryRow(ctx, query,
			a.DocumentID,
			a.Round,
			a.ApproverID,
			a.StepNumber,
			a.StepName,
			a.RequireAll,
			string(a.Status),
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return storeError(err, "failed to create approval record")
		}
	}
	return nil
}

// GetByID returns a single approval record.
func (r *PGApprovalRepository) GetByID(ctx context.Context, id string) (*Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	a, err := scanApproval(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval", id)
	}
	if err != nil {
		return nil, storeError(err, "failed to get approval")
	}
	return a, nil
}

// ListByDocument returns every record of a document across all rounds.
func (r *PGApprovalRepository) ListByDocument(ctx context.Context, documentID string) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approvals
		WHERE document_id = $1
		ORDER BY round ASC, step_number ASC NULLS FIRST, created_at ASC
	`
	return r.list(ctx, query, documentID)
}

// ListForStep returns the records of one step in one round. A nil step
// selects legacy single-step records.
func (r *PGApprovalRepository) ListForStep(ctx context.Context, documentID string, round int, stepNumber *int) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approvals
		WHERE document_id = $1
		  AND round = $2
		  AND step_number IS NOT DISTINCT FROM $3
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, documentID, round, stepNumber)
}

// ListForApprover returns a single approver's records in one round.
func (r *PGApprovalRepository) ListForApprover(ctx context.Context, documentID string, round int, approverID string) ([]*Approval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approvals
		WHERE document_id = $1
		  AND round = $2
		  AND approver_id = $3
		ORDER BY step_number ASC NULLS FIRST
	`
	return r.list(ctx, query, documentID, round, approverID)
}

// ListPendingForUser returns pending records at the current step of documents
// that are still in approval.
func (r *PGApprovalRepository) ListPendingForUser(ctx context.Context, userID string) ([]*Approval, error) {
	query := `
		SELECT a.id, a.document_id, a.round, a.approver_id, a.step_number, a.step_name,
		       a.require_all, a.status, a.comment, a.decided_at, a.created_at
		FROM approvals a
		JOIN documents d ON d.id = a.document_id
		WHERE a.approver_id = $1
		  AND a.status = 'PENDING'
		  AND d.status = 'IN_APPROVAL'
		  AND a.round = d.approval_round
		  AND a.step_number IS NOT DISTINCT FROM d.current_step_number
		ORDER BY a.created_at ASC
	`
	return r.list(ctx, query, userID)
}

// Decide records a decision on a PENDING record. The status guard in the
// WHERE clause makes a second decision on the same record fail.
func (r *PGApprovalRepository) Decide(ctx context.Context, id string, status ApprovalStatus, comment *string) (*Approval, error) {
	if status != ApprovalApproved && status != ApprovalRejected {
		return nil, errors.InvalidInput("status", fmt.Sprintf("cannot decide with status %s", status))
	}

	query := `
		UPDATE approvals
		SET status     = $2,
		    comment    = $3,
		    decided_at = NOW()
		WHERE id = $1
		  AND status = 'PENDING'
		RETURNING ` + approvalColumns

	a, err := scanApproval(r.q.QueryRow(ctx, query, id, string(status), comment))
	if err == pgx.ErrNoRows {
		return nil, errors.PreconditionFailed("approval is not pending")
	}
	if err != nil {
		return nil, errors.Unavailable(err, "failed to record decision")
	}
	return a, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *PGApprovalRepository) list(ctx context.Context, query string, args ...any) ([]*Approval, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Unavailable(err, "failed to list approvals")
	}
	defer rows.Close()

	approvals := make([]*Approval, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable(err, "failed to iterate approvals")
	}
	return approvals, nil
}

func scanApproval(row rowScanner) (*Approval, error) {
	a := &Approval{}
	var status string
	err := row.Scan(
		&a.ID,
		&a.DocumentID,
		&a.Round,
		&a.ApproverID,
		&a.StepNumber,
		&a.StepName,
		&a.RequireAll,
		&status,
		&a.Comment,
		&a.DecidedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = ApprovalStatus(status)
	return a, nil
}
