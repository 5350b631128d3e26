package service

import (
	"context"
	"strings"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// DocumentService handles document business logic
type DocumentService struct {
	store repository.Store
	log   *logger.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(store repository.Store, log *logger.Logger) *DocumentService {
	return &DocumentService{
		store: store,
		log:   log.Component("documents"),
	}
}

// CreateDocumentRequest represents a create document request
type CreateDocumentRequest struct {
	Title       string
	Description *string
	TemplateID  *string
	Caller      Caller
}

// UpdateDocumentRequest represents an update document request. Nil fields
// are left unchanged; an empty TemplateID detaches the template.
type UpdateDocumentRequest struct {
	ID          string
	Title       *string
	Description *string
	TemplateID  *string
	Caller      Caller
}

// ListDocumentsRequest represents a list documents request
type ListDocumentsRequest struct {
	Status      *repository.DocumentStatus
	InitiatorID *string
	TemplateID  *string
	Page        int
	PageSize    int
}

// CreateDocument creates a DRAFT document owned by the caller
func (s *DocumentService) CreateDocument(ctx context.Context, req *CreateDocumentRequest) (*repository.Document, error) {
	if err := req.Caller.validate(); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}

	doc := &repository.Document{
		Title:       title,
		Description: req.Description,
		Status:      repository.StatusDraft,
		TemplateID:  emptyToNil(req.TemplateID),
		InitiatorID: req.Caller.ID,
	}

	err := s.store.InTransaction(ctx, func(tx repository.Repositories) error {
		if doc.TemplateID != nil {
			if _, err := tx.Templates().GetByID(ctx, *doc.TemplateID); err != nil {
				return err
			}
		}
		if err := tx.Documents().Create(ctx, doc); err != nil {
			return err
		}
		return appendAudit(ctx, tx, doc.ID, req.Caller.ID, repository.AuditCreated, map[string]interface{}{
			"number": doc.Number,
			"title":  doc.Title,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Str("number", doc.Number).
		Msg("Document created")

	return doc, nil
}

// GetDocument retrieves a document by ID
func (s *DocumentService) GetDocument(ctx context.Context, id string) (*repository.Document, error) {
	return s.store.Documents().GetByID(ctx, id)
}

// ListDocuments lists documents with filters
func (s *DocumentService) ListDocuments(ctx context.Context, req *ListDocumentsRequest) ([]*repository.Document, int64, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, 0, errors.InvalidInput("status", "unknown document status")
	}
	limit, offset := pagination(req.Page, req.PageSize)
	return s.store.Documents().List(ctx, repository.DocumentFilter{
		Status:      req.Status,
		InitiatorID: req.InitiatorID,
		TemplateID:  req.TemplateID,
		Limit:       limit,
		Offset:      offset,
	})
}

// UpdateDocument edits a document. The initiator may edit while DRAFT;
// administrators may edit in any status.
func (s *DocumentService) UpdateDocument(ctx context.Context, req *UpdateDocumentRequest) (*repository.Document, error) {
	if err := req.Caller.validate(); err != nil {
		return nil, err
	}

	var doc *repository.Document
	err := s.store.InTransaction(ctx, func(tx repository.Repositories) error {
		d, err := tx.Documents().GetForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := canModify(d, req.Caller); err != nil {
			return err
		}

		changed := map[string]interface{}{}
		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title == "" {
				return errors.InvalidInput("title", "title cannot be empty")
			}
			d.Title = title
			changed["title"] = title
		}
		if req.Description != nil {
			d.Description = req.Description
			changed["description"] = *req.Description
		}
		if req.TemplateID != nil {
			if d.Status == repository.StatusInApproval {
				return errors.PreconditionFailed("template cannot change while the document is in approval")
			}
			d.TemplateID = emptyToNil(req.TemplateID)
			if d.TemplateID != nil {
				if _, err := tx.Templates().GetByID(ctx, *d.TemplateID); err != nil {
					return err
				}
			}
			changed["template_id"] = d.TemplateID
		}
		if len(changed) == 0 {
			doc = d
			return nil
		}

		if err := tx.Documents().Update(ctx, d); err != nil {
			return err
		}
		if err := appendAudit(ctx, tx, d.ID, req.Caller.ID, repository.AuditUpdated, changed); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document. The initiator may delete a DRAFT;
// administrators may delete in any status. The audit trail is kept.
func (s *DocumentService) DeleteDocument(ctx context.Context, id string, caller Caller) error {
	if err := caller.validate(); err != nil {
		return err
	}

	err := s.store.InTransaction(ctx, func(tx repository.Repositories) error {
		d, err := tx.Documents().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := canModify(d, caller); err != nil {
			return err
		}
		if err := tx.Documents().Delete(ctx, id); err != nil {
			return err
		}
		return appendAudit(ctx, tx, id, caller.ID, repository.AuditDeleted, map[string]interface{}{
			"number": d.Number,
			"status": string(d.Status),
		})
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("document_id", id).Str("deleted_by", caller.ID).Msg("Document deleted")
	return nil
}

func canModify(d *repository.Document, caller Caller) error {
	if caller.IsAdmin() {
		return nil
	}
	if d.InitiatorID != caller.ID {
		return errors.Forbidden("only the initiator or an administrator can modify this document")
	}
	if d.Status != repository.StatusDraft {
		return errors.PreconditionFailed("document can only be modified while DRAFT")
	}
	return nil
}

func pagination(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
