// Package memory implements repository.Store in process memory. It backs
// local development without PostgreSQL and the service tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

type state struct {
	documents     *table[repository.Document]
	templates     *table[repository.Template]
	routes        *table[repository.ApprovalRoute] // keyed by template id
	approvals     *table[repository.Approval]
	users         *table[repository.User]
	audit         *table[repository.AuditEntry]
	notifications *table[repository.Notification]
	comments      *table[repository.Comment]
	files         *table[repository.File]
	docSeq        int
}

func newState() *state {
	return &state{
		documents:     newTable[repository.Document](),
		templates:     newTable[repository.Template](),
		routes:        newTable[repository.ApprovalRoute](),
		approvals:     newTable[repository.Approval](),
		users:         newTable[repository.User](),
		audit:         newTable[repository.AuditEntry](),
		notifications: newTable[repository.Notification](),
		comments:      newTable[repository.Comment](),
		files:         newTable[repository.File](),
	}
}

func (st *state) clone() *state {
	return &state{
		documents:     st.documents.clone(),
		templates:     st.templates.clone(),
		routes:        st.routes.clone(),
		approvals:     st.approvals.clone(),
		users:         st.users.clone(),
		audit:         st.audit.clone(),
		notifications: st.notifications.clone(),
		comments:      st.comments.clone(),
		files:         st.files.clone(),
		docSeq:        st.docSeq,
	}
}

// Store is an in-memory repository.Store. Transactions are serialized and a
// failed transaction restores the snapshot taken when it began.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st:  newState(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// InTransaction runs fn while holding the store lock. Rows read inside fn are
// therefore already locked for update. An error or panic from fn discards its
// writes.
func (s *Store) InTransaction(ctx context.Context, fn func(tx repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
	}()
	if err := fn(&view{s: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) root() *view { return &view{s: s} }

func (s *Store) Documents() repository.DocumentRepository { return s.root().Documents() }
func (s *Store) Templates() repository.TemplateRepository { return s.root().Templates() }
func (s *Store) Routes() repository.RouteRepository       { return s.root().Routes() }
func (s *Store) Approvals() repository.ApprovalRepository { return s.root().Approvals() }
func (s *Store) Users() repository.UserRepository         { return s.root().Users() }
func (s *Store) Audit() repository.AuditRepository        { return s.root().Audit() }
func (s *Store) Notifications() repository.NotificationRepository {
	return s.root().Notifications()
}
func (s *Store) Comments() repository.CommentRepository { return s.root().Comments() }
func (s *Store) Files() repository.FileRepository       { return s.root().Files() }

// view binds repositories either to the store directly or to a running
// transaction that already holds the lock.
type view struct {
	s    *Store
	inTx bool
}

func (v *view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *view) Documents() repository.DocumentRepository { return documents{v} }
func (v *view) Templates() repository.TemplateRepository { return templates{v} }
func (v *view) Routes() repository.RouteRepository       { return routes{v} }
func (v *view) Approvals() repository.ApprovalRepository { return approvals{v} }
func (v *view) Users() repository.UserRepository         { return users{v} }
func (v *view) Audit() repository.AuditRepository        { return audit{v} }
func (v *view) Notifications() repository.NotificationRepository {
	return notifications{v}
}
func (v *view) Comments() repository.CommentRepository { return comments{v} }
func (v *view) Files() repository.FileRepository       { return files{v} }

func newID() string { return uuid.NewString() }

func documentNumber(at time.Time, seq int) string {
	return fmt.Sprintf("DOC-%d-%06d", at.Year(), seq)
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func ptr[T any](v T) *T { return &v }
