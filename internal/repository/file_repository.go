package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// PGFileRepository stores attachment metadata.
type PGFileRepository struct {
	q database.Querier
}

// NewFileRepository creates a new PGFileRepository.
func NewFileRepository(q database.Querier) *PGFileRepository {
	return &PGFileRepository{q: q}
}

const fileColumns = `id, document_id, file_name, content_type, size_bytes, storage_url, uploaded_by, created_at`

func (r *PGFileRepository) Create(ctx context.Context, f *File) error {
	query := `
		INSERT INTO files (document_id, file_name, content_type, size_bytes, storage_url, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query,
		f.DocumentID, f.FileName, f.ContentType, f.SizeBytes, f.StorageURL, f.UploadedBy,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return storeError(err, "failed to create file")
	}
	return nil
}

func (r *PGFileRepository) GetByID(ctx context.Context, id string) (*File, error) {
	f, err := scanFile(r.q.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("file", id)
	}
	if err != nil {
		return nil, storeError(err, "failed to get file")
	}
	return f, nil
}

func (r *PGFileRepository) ListByDocument(ctx context.Context, documentID string) ([]*File, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+fileColumns+` FROM files WHERE document_id = $1 ORDER BY created_at ASC`, documentID)
	if err != nil {
		return nil, errors.Unavailable(err, "failed to list files")
	}
	defer rows.Close()

	files := make([]*File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan file")
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable(err, "failed to iterate files")
	}
	return files, nil
}

func (r *PGFileRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return errors.Unavailable(err, "failed to delete file")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("file", id)
	}
	return nil
}

func scanFile(row rowScanner) (*File, error) {
	f := &File{}
	err := row.Scan(&f.ID, &f.DocumentID, &f.FileName, &f.ContentType, &f.SizeBytes, &f.StorageURL, &f.UploadedBy, &f.CreatedAt)
	return f, err
}
