package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

// CommentService handles document comments
type CommentService struct {
	store    repository.Store
	notifier Notifier
	log      *logger.Logger
}

// NewCommentService creates a new comment service
func NewCommentService(store repository.Store, notifier Notifier, log *logger.Logger) *CommentService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &CommentService{store: store, notifier: notifier, log: log.Component("comments")}
}

// AddComment adds a comment and notifies the document initiator when someone
// else wrote it.
func (s *CommentService) AddComment(ctx context.Context, documentID, body string, caller Caller) (*repository.Comment, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.InvalidInput("body", "comment body is required")
	}

	c := &repository.Comment{DocumentID: documentID, AuthorID: caller.ID, Body: body}
	var ob outbox
	err := s.store.InTransaction(ctx, func(tx repository.Repositories) error {
		ob = outbox{}
		d, err := tx.Documents().GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		if err := tx.Comments().Create(ctx, c); err != nil {
			return err
		}
		if d.InitiatorID == caller.ID {
			return nil
		}
		return notify(ctx, tx, &ob, Event{
			Type:       repository.NotifyCommentAdded,
			DocumentID: d.ID,
			ActorID:    caller.ID,
			Recipients: []string{d.InitiatorID},
			Payload:    map[string]interface{}{"number": d.Number, "comment_id": c.ID},
		}, fmt.Sprintf("New comment on document %s", d.Number))
	})
	if err != nil {
		return nil, err
	}
	ob.flush(ctx, s.notifier)
	return c, nil
}

func (s *CommentService) ListComments(ctx context.Context, documentID string) ([]*repository.Comment, error) {
	if _, err := s.store.Documents().GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.Comments().ListByDocument(ctx, documentID)
}

// DeleteComment removes a comment; only its author or an administrator may.
func (s *CommentService) DeleteComment(ctx context.Context, id string, caller Caller) error {
	if err := caller.validate(); err != nil {
		return err
	}
	c, err := s.store.Comments().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.AuthorID != caller.ID && !caller.IsAdmin() {
		return errors.Forbidden("only the author or an administrator can delete this comment")
	}
	return s.store.Comments().Delete(ctx, id)
}
