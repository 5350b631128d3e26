package repository

import "time"

// ── Domain types for documents and approval routing ──────────────────────────

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "DRAFT"
	StatusInApproval DocumentStatus = "IN_APPROVAL"
	StatusApproved   DocumentStatus = "APPROVED"
	StatusRejected   DocumentStatus = "REJECTED"
)

// Valid reports whether s is one of the four lifecycle states.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusInApproval, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// ApprovalStatus is the state of a single approver's vote.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// UserRole is the caller role supplied by identity.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleManager  UserRole = "MANAGER"
	RoleApprover UserRole = "APPROVER"
	RoleEmployee UserRole = "EMPLOYEE"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleApprover, RoleEmployee:
		return true
	}
	return false
}

// CanApprove reports whether users holding r may be assigned approval steps.
func (r UserRole) CanApprove() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleApprover
}

// Audit action tags.
const (
	AuditCreated       = "created"
	AuditUpdated       = "updated"
	AuditDeleted       = "deleted"
	AuditSubmitted     = "submitted"
	AuditApproved      = "approved"
	AuditRejected      = "rejected"
	AuditFullyApproved = "fully_approved"
	AuditStatusChanged = "status_changed"
)

// Notification type tags.
const (
	NotifyApprovalRequired = "approval_required"
	NotifyApproved         = "document_approved"
	NotifyRejected         = "document_rejected"
	NotifyStatusChanged    = "status_changed"
	NotifyCommentAdded     = "comment_added"
)

// Document is the unit routed through approval.
type Document struct {
	ID                string         `json:"id"`
	Number            string         `json:"number"`
	Title             string         `json:"title"`
	Description       *string        `json:"description,omitempty"`
	Status            DocumentStatus `json:"status"`
	TemplateID        *string        `json:"template_id,omitempty"`
	InitiatorID       string         `json:"initiator_id"`
	CurrentApproverID *string        `json:"current_approver_id,omitempty"` // display hint only
	CurrentStepNumber *int           `json:"current_step_number,omitempty"` // nil outside multi-step approval
	ApprovalRound     int            `json:"approval_round"`                // incremented on every submission
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	Status      *DocumentStatus
	InitiatorID *string
	TemplateID  *string
	Limit       int
	Offset      int
}

// Template is a reusable document blueprint that may carry an approval route.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ApprovalRoute is the ordered list of steps attached to a template.
type ApprovalRoute struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	TemplateID string      `json:"template_id"`
	Steps      []RouteStep `json:"steps"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Step returns the step with the given number, or nil.
func (r *ApprovalRoute) Step(number int) *RouteStep {
	if r == nil {
		return nil
	}
	for i := range r.Steps {
		if r.Steps[i].StepNumber == number {
			return &r.Steps[i]
		}
	}
	return nil
}

// RouteStep is one stage of a route. Exactly one of ApproverIDs or
// ApproverRole selects the approvers.
type RouteStep struct {
	StepNumber   int      `json:"step_number"`
	Name         string   `json:"name"`
	ApproverIDs  []string `json:"approver_ids,omitempty"`
	ApproverRole *string  `json:"approver_role,omitempty"`
	RequireAll   bool     `json:"require_all"`
}

// Approval is one approver's vote for a document at a step.
type Approval struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Round      int            `json:"round"`
	ApproverID string         `json:"approver_id"`
	StepNumber *int           `json:"step_number,omitempty"` // nil in legacy single-step mode
	StepName   string         `json:"step_name,omitempty"`
	RequireAll bool           `json:"require_all"` // step policy captured at activation
	Status     ApprovalStatus `json:"status"`
	Comment    *string        `json:"comment,omitempty"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditEntry is one immutable audit log row.
type AuditEntry struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	UserID     string                 `json:"user_id"`
	Action     string                 `json:"action"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Notification is a per-user inbox entry.
type Notification struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	DocumentID *string   `json:"document_id,omitempty"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// User is a person who may initiate, approve or administer documents.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      UserRole  `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment is a free-form remark on a document.
type Comment struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	AuthorID   string    `json:"author_id"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// File is attachment metadata. Content lives in external storage.
type File struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageURL  string    `json:"storage_url"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// SameStep compares nullable step numbers.
func SameStep(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
