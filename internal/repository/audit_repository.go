package repository

import (
	"context"
	"encoding/json"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// PGAuditRepository appends and reads immutable document audit log entries.
type PGAuditRepository struct {
	q database.Querier
}

// NewAuditRepository creates a new PGAuditRepository.
func NewAuditRepository(q database.Querier) *PGAuditRepository {
	return &PGAuditRepository{q: q}
}

// Append inserts one audit entry. The table has an update/delete-prevention
// trigger so this is the only mutation operation exposed.
func (r *PGAuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO audit_logs (document_id, user_id, action, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		entry.DocumentID,
		entry.UserID,
		entry.Action,
		metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Unavailable(err, "failed to append audit entry")
	}
	return nil
}

// ListByDocument returns the full audit trail for a document ordered oldest-first.
func (r *PGAuditRepository) ListByDocument(ctx context.Context, documentID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, document_id, user_id, action, metadata, created_at
		FROM audit_logs
		WHERE document_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, storeError(err, "failed to get audit log")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable(err, "failed to iterate audit log")
	}
	return entries, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func scanAuditEntry(sc rowScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.DocumentID,
		&entry.UserID,
		&entry.Action,
		&metadataJSON,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}
