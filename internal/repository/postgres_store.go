package repository

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

//go:embed schema.sql
var Schema string

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *database.DB
	q  database.Querier
}

// NewPostgresStore creates a store bound to the connection pool.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

// InTransaction runs fn with repositories bound to a single transaction.
func (s *PostgresStore) InTransaction(ctx context.Context, fn func(tx Repositories) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&PostgresStore{db: s.db, q: tx})
	})
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Documents() DocumentRepository         { return NewDocumentRepository(s.q) }
func (s *PostgresStore) Templates() TemplateRepository         { return NewTemplateRepository(s.q) }
func (s *PostgresStore) Routes() RouteRepository               { return NewRouteRepository(s.q) }
func (s *PostgresStore) Approvals() ApprovalRepository         { return NewApprovalRepository(s.q) }
func (s *PostgresStore) Users() UserRepository                 { return NewUserRepository(s.q) }
func (s *PostgresStore) Audit() AuditRepository                { return NewAuditRepository(s.q) }
func (s *PostgresStore) Notifications() NotificationRepository { return NewNotificationRepository(s.q) }
func (s *PostgresStore) Comments() CommentRepository           { return NewCommentRepository(s.q) }
func (s *PostgresStore) Files() FileRepository                 { return NewFileRepository(s.q) }

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// storeError classifies constraint and input violations; everything else is
// treated as a transient store failure.
func storeError(err error, message string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return errors.Wrap(err, errors.ErrCodeConflict, message+": duplicate record")
		case "23503":
			return errors.Wrap(err, errors.ErrCodeInvalidInput, message+": referenced record does not exist")
		case "22P02":
			return errors.Wrap(err, errors.ErrCodeInvalidInput, message+": malformed identifier")
		}
	}
	return errors.Unavailable(err, message)
}
