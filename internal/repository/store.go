package repository

import "context"

// Repositories groups the per-entity repositories bound to one connection or
// transaction.
type Repositories interface {
	Documents() DocumentRepository
	Templates() TemplateRepository
	Routes() RouteRepository
	Approvals() ApprovalRepository
	Users() UserRepository
	Audit() AuditRepository
	Notifications() NotificationRepository
	Comments() CommentRepository
	Files() FileRepository
}

// Store is the persistence boundary used by the services. Writes that must
// succeed or fail together run through InTransaction.
type Store interface {
	Repositories
	InTransaction(ctx context.Context, fn func(tx Repositories) error) error
	Ping(ctx context.Context) error
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id string) (*Document, error)
	// GetForUpdate loads the document and holds a write lock on it until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]*Document, int64, error)
	Update(ctx context.Context, doc *Document) error
	// UpdateState persists status, current step, current approver and round.
	UpdateState(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id string) error
}

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id string) (*Template, error)
	List(ctx context.Context, limit, offset int) ([]*Template, int64, error)
	Update(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id string) error
}

type RouteRepository interface {
	// Upsert replaces the route for route.TemplateID.
	Upsert(ctx context.Context, route *ApprovalRoute) error
	// GetByTemplateID returns nil, nil when the template has no route.
	GetByTemplateID(ctx context.Context, templateID string) (*ApprovalRoute, error)
	DeleteByTemplateID(ctx context.Context, templateID string) error
}

type ApprovalRepository interface {
	CreateBatch(ctx context.Context, approvals []*Approval) error
	GetByID(ctx context.Context, id string) (*Approval, error)
	ListByDocument(ctx context.Context, documentID string) ([]*Approval, error)
	ListForStep(ctx context.Context, documentID string, round int, stepNumber *int) ([]*Approval, error)
	ListForApprover(ctx context.Context, documentID string, round int, approverID string) ([]*Approval, error)
	ListPendingForUser(ctx context.Context, userID string) ([]*Approval, error)
	// Decide moves a PENDING record to a terminal status. Records that are no
	// longer pending yield PRECONDITION_FAILED.
	Decide(ctx context.Context, id string, status ApprovalStatus, comment *string) (*Approval, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByIDs returns the users that exist; missing ids are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*User, error)
	ListByRole(ctx context.Context, role UserRole) ([]*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int64, error)
	Update(ctx context.Context, u *User) error
}

type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByDocument(ctx context.Context, documentID string) ([]*AuditEntry, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	GetByID(ctx context.Context, id string) (*Comment, error)
	ListByDocument(ctx context.Context, documentID string) ([]*Comment, error)
	Delete(ctx context.Context, id string) error
}

type FileRepository interface {
	Create(ctx context.Context, f *File) error
	GetByID(ctx context.Context, id string) (*File, error)
	ListByDocument(ctx context.Context, documentID string) ([]*File, error)
	Delete(ctx context.Context, id string) error
}
