package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/routing"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

// ApprovalRoutingService drives documents through their approval route.
// Every transition runs in one store transaction with the document locked;
// events are published only after the transaction commits.
type ApprovalRoutingService struct {
	store    repository.Store
	notifier Notifier
	log      *logger.Logger
}

// NewApprovalRoutingService creates a new ApprovalRoutingService.
func NewApprovalRoutingService(store repository.Store, notifier Notifier, log *logger.Logger) *ApprovalRoutingService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ApprovalRoutingService{
		store:    store,
		notifier: notifier,
		log:      log.Component("approval_routing"),
	}
}

// SubmitRequest represents a submit-for-approval request
type SubmitRequest struct {
	DocumentID string
	Caller     Caller
	// ManualApproverID names the single approver when the document has no
	// route. Ignored when a route applies.
	ManualApproverID *string
}

// DecideRequest represents an approve or reject decision
type DecideRequest struct {
	DocumentID string
	Caller     Caller
	Action     routing.Action
	Comment    *string
}

// OverrideRequest represents an administrative status change
type OverrideRequest struct {
	DocumentID string
	Caller     Caller
	NewStatus  repository.DocumentStatus
}

// ── Submit ────────────────────────────────────────────────────────────────────

// SubmitForApproval moves a DRAFT document into approval. With a route the
// first step activates; without one the manual approver gets a single
// step-less record.
func (s *ApprovalRoutingService) SubmitForApproval(ctx context.Context, req *SubmitRequest) (doc *repository.Document, err error) {
	ctx, span := startSpan(ctx, "SubmitForApproval", req.DocumentID)
	defer func(start time.Time) { finish(span, "submit", start, err) }(time.Now())

	if err := req.Caller.validate(); err != nil {
		return nil, err
	}

	var ob outbox
	mode := "route"
	err = s.store.InTransaction(ctx, func(tx repository.Repositories) error {
		ob = outbox{}

		d, err := tx.Documents().GetForUpdate(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if d.InitiatorID != req.Caller.ID {
			return errors.Forbidden("only the initiator can submit a document")
		}
		if d.Status != repository.StatusDraft {
			return errors.PreconditionFailed(
				fmt.Sprintf("document must be DRAFT to submit (status: %s)", d.Status))
		}

		route, err := s.routeFor(ctx, tx, d)
		if err != nil {
			return err
		}

		var (
			approverIDs []string
			stepNumber  *int
			active      *repository.RouteStep
		)
		if route != nil && len(route.Steps) > 0 {
			first := route.Step(1)
			if first == nil {
				return errors.Configuration("approval route has no step 1")
			}
			approverIDs, err = s.resolveApprovers(ctx, tx, first)
			if err != nil {
				return err
			}
			stepNumber = &first.StepNumber
			active = first
		} else {
			mode = "manual"
			approverIDs, err = s.resolveManualApprover(ctx, tx, req.ManualApproverID)
			if err != nil {
				return err
			}
		}

		d.ApprovalRound++
		d.Status = repository.StatusInApproval
		d.CurrentStepNumber = stepNumber
		d.CurrentApproverID = &approverIDs[0]

		if err := s.activate(ctx, tx, d, active, approverIDs); err != nil {
			return err
		}
		if err := tx.Documents().UpdateState(ctx, d); err != nil {
			return err
		}

		meta := map[string]interface{}{
			"round":        d.ApprovalRound,
			"approver_ids": approverIDs,
			"mode":         mode,
		}
		if stepNumber != nil {
			meta["step_number"] = *stepNumber
			meta["step_name"] = active.Name
		}
		if err := appendAudit(ctx, tx, d.ID, req.Caller.ID, repository.AuditSubmitted, meta); err != nil {
			return err
		}

		if err := notify(ctx, tx, &ob, Event{
			Type:       repository.NotifyApprovalRequired,
			DocumentID: d.ID,
			ActorID:    req.Caller.ID,
			Recipients: approverIDs,
			Payload:    map[string]interface{}{"number": d.Number, "title": d.Title, "step_number": stepNumber},
		}, fmt.Sprintf("Document %s \"%s\" requires your approval", d.Number, d.Title)); err != nil {
			return err
		}

		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	submissionsTotal.WithLabelValues(mode).Inc()
	ob.flush(ctx, s.notifier)

	s.log.Info().
		Str("document_id", doc.ID).
		Str("number", doc.Number).
		Int("round", doc.ApprovalRound).
		Str("mode", mode).
		Msg("Document submitted for approval")

	return doc, nil
}

// ── Decide ────────────────────────────────────────────────────────────────────

// Decide records the caller's decision on the document's current step and
// applies the routing outcome.
func (s *ApprovalRoutingService) Decide(ctx context.Context, req *DecideRequest) (doc *repository.Document, err error) {
	ctx, span := startSpan(ctx, "Decide", req.DocumentID)
	defer func(start time.Time) { finish(span, "decide", start, err) }(time.Now())

	if err := req.Caller.validate(); err != nil {
		return nil, err
	}
	if !req.Action.Valid() {
		return nil, errors.InvalidInput("action", "action must be approve or reject")
	}

	var (
		ob      outbox
		outcome routing.Outcome
	)
	err = s.store.InTransaction(ctx, func(tx repository.Repositories) error {
		ob = outbox{}

		d, err := tx.Documents().GetForUpdate(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if d.Status != repository.StatusInApproval {
			return errors.PreconditionFailed(
				fmt.Sprintf("document is not in approval (status: %s)", d.Status))
		}

		mine, err := tx.Approvals().ListForApprover(ctx, d.ID, d.ApprovalRound, req.Caller.ID)
		if err != nil {
			return err
		}
		if len(mine) == 0 {
			return errors.Forbidden("caller is not an approver of this document")
		}
		var record *repository.Approval
		for _, a := range mine {
			if repository.SameStep(a.StepNumber, d.CurrentStepNumber) {
				record = a
				break
			}
		}
		if record == nil || record.Status != repository.ApprovalPending {
			return errors.PreconditionFailed("no pending approval for the caller at the current step")
		}

		var route *repository.ApprovalRoute
		if d.CurrentStepNumber != nil {
			if route, err = s.routeFor(ctx, tx, d); err != nil {
				return err
			}
		}
		records, err := tx.Approvals().ListForStep(ctx, d.ID, d.ApprovalRound, d.CurrentStepNumber)
		if err != nil {
			return err
		}

		status := repository.ApprovalApproved
		if req.Action == routing.ActionReject {
			status = repository.ApprovalRejected
		}
		if _, err := tx.Approvals().Decide(ctx, record.ID, status, req.Comment); err != nil {
			return err
		}

		outcome = routing.Decide(routing.Input{
			Route:       route,
			CurrentStep: d.CurrentStepNumber,
			Records:     records,
			ApproverID:  req.Caller.ID,
			Action:      req.Action,
			Comment:     req.Comment,
		})

		if err := s.apply(ctx, tx, &ob, d, record, req, outcome); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	decisionsTotal.WithLabelValues(string(req.Action), outcome.Kind.String()).Inc()
	ob.flush(ctx, s.notifier)

	s.log.Info().
		Str("document_id", doc.ID).
		Str("approver_id", req.Caller.ID).
		Str("action", string(req.Action)).
		Str("outcome", outcome.Kind.String()).
		Str("status", string(doc.Status)).
		Msg("Approval decision recorded")

	return doc, nil
}

// apply persists the routing outcome on d inside the decision transaction.
func (s *ApprovalRoutingService) apply(
	ctx context.Context,
	tx repository.Repositories,
	ob *outbox,
	d *repository.Document,
	decided *repository.Approval,
	req *DecideRequest,
	outcome routing.Outcome,
) error {
	fromStep := d.CurrentStepNumber

	switch outcome.Kind {
	case routing.StepPending:
		return nil

	case routing.Rejected:
		d.Status = repository.StatusRejected
		d.CurrentStepNumber = nil
		d.CurrentApproverID = nil
		if err := tx.Documents().UpdateState(ctx, d); err != nil {
			return err
		}
		meta := map[string]interface{}{"round": d.ApprovalRound, "step_number": fromStep, "step_name": decided.StepName}
		if outcome.Comment != nil {
			meta["comment"] = *outcome.Comment
		}
		if err := appendAudit(ctx, tx, d.ID, req.Caller.ID, repository.AuditRejected, meta); err != nil {
			return err
		}
		return notify(ctx, tx, ob, Event{
			Type:       repository.NotifyRejected,
			DocumentID: d.ID,
			ActorID:    req.Caller.ID,
			Recipients: []string{d.InitiatorID},
			Payload:    map[string]interface{}{"number": d.Number, "comment": outcome.Comment},
		}, fmt.Sprintf("Document %s \"%s\" was rejected", d.Number, d.Title))

	case routing.AdvanceToStep:
		next := outcome.NextStep
		approverIDs, err := s.resolveApprovers(ctx, tx, next)
		if err != nil {
			return err
		}
		d.CurrentStepNumber = &next.StepNumber
		d.CurrentApproverID = &approverIDs[0]
		if err := s.activate(ctx, tx, d, next, approverIDs); err != nil {
			return err
		}
		if err := tx.Documents().UpdateState(ctx, d); err != nil {
			return err
		}
		meta := map[string]interface{}{
			"round":            d.ApprovalRound,
			"step_number":      fromStep,
			"step_name":        decided.StepName,
			"next_step_number": next.StepNumber,
			"next_step_name":   next.Name,
			"next_approvers":   approverIDs,
		}
		if err := appendAudit(ctx, tx, d.ID, req.Caller.ID, repository.AuditApproved, meta); err != nil {
			return err
		}
		return notify(ctx, tx, ob, Event{
			Type:       repository.NotifyApprovalRequired,
			DocumentID: d.ID,
			ActorID:    req.Caller.ID,
			Recipients: approverIDs,
			Payload:    map[string]interface{}{"number": d.Number, "title": d.Title, "step_number": next.StepNumber},
		}, fmt.Sprintf("Document %s \"%s\" requires your approval (%s)", d.Number, d.Title, next.Name))

	case routing.FullyApproved:
		d.Status = repository.StatusApproved
		d.CurrentStepNumber = nil
		d.CurrentApproverID = nil
		if err := tx.Documents().UpdateState(ctx, d); err != nil {
			return err
		}
		meta := map[string]interface{}{"round": d.ApprovalRound, "step_number": fromStep}
		if decided.StepName != "" {
			meta["step_name"] = decided.StepName
		}
		if err := appendAudit(ctx, tx, d.ID, req.Caller.ID, repository.AuditFullyApproved, meta); err != nil {
			return err
		}
		return notify(ctx, tx, ob, Event{
			Type:       repository.NotifyApproved,
			DocumentID: d.ID,
			ActorID:    req.Caller.ID,
			Recipients: []string{d.InitiatorID},
			Payload:    map[string]interface{}{"number": d.Number},
		}, fmt.Sprintf("Document %s \"%s\" was approved", d.Number, d.Title))
	}

	return errors.New(errors.ErrCodeInternal, fmt.Sprintf("unhandled routing outcome %s", outcome.Kind))
}

// ── Override ──────────────────────────────────────────────────────────────────

// OverrideStatus lets an administrator set a document's status directly.
// Approval records are left untouched.
func (s *ApprovalRoutingService) OverrideStatus(ctx context.Context, req *OverrideRequest) (doc *repository.Document, err error) {
	ctx, span := startSpan(ctx, "OverrideStatus", req.DocumentID)
	defer func(start time.Time) { finish(span, "override", start, err) }(time.Now())

	if err := requireAdmin(req.Caller); err != nil {
		return nil, err
	}
	target := repository.DocumentStatus(strings.ToUpper(string(req.NewStatus)))
	if !target.Valid() {
		return nil, errors.InvalidInput("status", fmt.Sprintf("unknown document status %q", req.NewStatus))
	}

	var (
		ob   outbox
		from repository.DocumentStatus
	)
	err = s.store.InTransaction(ctx, func(tx repository.Repositories) error {
		ob = outbox{}

		d, err := tx.Documents().GetForUpdate(ctx, req.DocumentID)
		if err != nil {
			return err
		}
		if d.Status == target {
			return errors.PreconditionFailed(fmt.Sprintf("document is already %s", target))
		}

		from = d.Status
		d.Status = target
		if target != repository.StatusInApproval {
			d.CurrentStepNumber = nil
			d.CurrentApproverID = nil
		}
		if err := tx.Documents().UpdateState(ctx, d); err != nil {
			return err
		}

		meta := map[string]interface{}{"from": string(from), "to": string(target), "manual": true}
		if err := appendAudit(ctx, tx, d.ID, req.Caller.ID, repository.AuditStatusChanged, meta); err != nil {
			return err
		}
		if err := notify(ctx, tx, &ob, Event{
			Type:       repository.NotifyStatusChanged,
			DocumentID: d.ID,
			ActorID:    req.Caller.ID,
			Recipients: []string{d.InitiatorID},
			Payload:    meta,
		}, fmt.Sprintf("Document %s status changed from %s to %s", d.Number, from, target)); err != nil {
			return err
		}

		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	overridesTotal.WithLabelValues(string(target)).Inc()
	ob.flush(ctx, s.notifier)

	s.log.Warn().
		Str("document_id", doc.ID).
		Str("admin_id", req.Caller.ID).
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("Document status overridden")

	return doc, nil
}

// ── Query helpers ─────────────────────────────────────────────────────────────

// ListPendingApprovals returns the records awaiting the user's decision at the
// current step of documents still in approval.
func (s *ApprovalRoutingService) ListPendingApprovals(ctx context.Context, userID string) ([]*repository.Approval, error) {
	return s.store.Approvals().ListPendingForUser(ctx, userID)
}

// GetApprovalHistory returns the full audit trail for a document.
func (s *ApprovalRoutingService) GetApprovalHistory(ctx context.Context, documentID string) ([]*repository.AuditEntry, error) {
	if _, err := s.store.Documents().GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.Audit().ListByDocument(ctx, documentID)
}

// ListDocumentApprovals returns every approval record of a document across
// all rounds.
func (s *ApprovalRoutingService) ListDocumentApprovals(ctx context.Context, documentID string) ([]*repository.Approval, error) {
	if _, err := s.store.Documents().GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.Approvals().ListByDocument(ctx, documentID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// routeFor returns the route of the document's template, or nil.
func (s *ApprovalRoutingService) routeFor(ctx context.Context, tx repository.Repositories, d *repository.Document) (*repository.ApprovalRoute, error) {
	if d.TemplateID == nil {
		return nil, nil
	}
	return tx.Routes().GetByTemplateID(ctx, *d.TemplateID)
}

// resolveApprovers snapshots the approver set of a step: explicit ids
// filtered to active approver-capable users, or the current holders of the
// step's role.
func (s *ApprovalRoutingService) resolveApprovers(ctx context.Context, tx repository.Repositories, step *repository.RouteStep) ([]string, error) {
	var candidates []*repository.User
	var err error
	if len(step.ApproverIDs) > 0 {
		candidates, err = tx.Users().GetByIDs(ctx, step.ApproverIDs)
	} else if step.ApproverRole != nil {
		candidates, err = tx.Users().ListByRole(ctx, repository.UserRole(strings.ToUpper(*step.ApproverRole)))
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(candidates))
	for _, u := range candidates {
		if u.IsActive && u.Role.CanApprove() {
			ids = append(ids, u.ID)
		}
	}
	if len(ids) == 0 {
		s.log.Warn().
			Int("step_number", step.StepNumber).
			Str("step_name", step.Name).
			Msg("Approval step resolved to no active approvers")
		return nil, errors.Configuration(
			fmt.Sprintf("step %d (%s) has no active approvers", step.StepNumber, step.Name))
	}
	return ids, nil
}

func (s *ApprovalRoutingService) resolveManualApprover(ctx context.Context, tx repository.Repositories, approverID *string) ([]string, error) {
	if approverID == nil || strings.TrimSpace(*approverID) == "" {
		return nil, errors.InvalidInput("manual_approver_id", "an approver is required when the document has no approval route")
	}
	u, err := tx.Users().GetByID(ctx, *approverID)
	if errors.IsNotFound(err) {
		return nil, errors.InvalidInput("manual_approver_id", "approver does not exist")
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive || !u.Role.CanApprove() {
		return nil, errors.InvalidInput("manual_approver_id", "approver must be an active user with an approving role")
	}
	return []string{u.ID}, nil
}

// activate creates the PENDING records of a step for the document's round.
// The step's name and requireAll flag are copied onto every record so the
// step keeps its policy if the route is edited while it is active. A nil
// step activates a legacy single-step record.
func (s *ApprovalRoutingService) activate(ctx context.Context, tx repository.Repositories, d *repository.Document, step *repository.RouteStep, approverIDs []string) error {
	records := make([]*repository.Approval, 0, len(approverIDs))
	for _, id := range approverIDs {
		a := &repository.Approval{
			DocumentID: d.ID,
			Round:      d.ApprovalRound,
			ApproverID: id,
			Status:     repository.ApprovalPending,
		}
		if step != nil {
			n := step.StepNumber
			a.StepNumber = &n
			a.StepName = step.Name
			a.RequireAll = step.RequireAll
		}
		records = append(records, a)
	}
	return tx.Approvals().CreateBatch(ctx, records)
}

func appendAudit(ctx context.Context, tx repository.Repositories, documentID, userID, action string, meta map[string]interface{}) error {
	return tx.Audit().Append(ctx, &repository.AuditEntry{
		DocumentID: documentID,
		UserID:     userID,
		Action:     action,
		Metadata:   meta,
	})
}

// notify writes an inbox row per recipient and queues ev for publication
// after commit.
func notify(ctx context.Context, tx repository.Repositories, ob *outbox, ev Event, message string) error {
	docID := ev.DocumentID
	for _, userID := range ev.Recipients {
		n := &repository.Notification{
			UserID:     userID,
			Type:       ev.Type,
			Message:    message,
			DocumentID: &docID,
		}
		if err := tx.Notifications().Create(ctx, n); err != nil {
			return err
		}
	}
	ob.add(ev)
	return nil
}
