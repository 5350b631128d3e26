package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/routing"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

// TemplateService manages templates and their approval routes
type TemplateService struct {
	store repository.Store
	log   *logger.Logger
}

// NewTemplateService creates a new template service
func NewTemplateService(store repository.Store, log *logger.Logger) *TemplateService {
	return &TemplateService{store: store, log: log.Component("templates")}
}

// TemplateRequest represents a create or update template request
type TemplateRequest struct {
	ID          string
	Name        string
	Description *string
	Caller      Caller
}

// SetRouteRequest replaces a template's approval route
type SetRouteRequest struct {
	TemplateID string
	Name       string
	Steps      []repository.RouteStep
	Caller     Caller
}

func (s *TemplateService) CreateTemplate(ctx context.Context, req *TemplateRequest) (*repository.Template, error) {
	if err := requireAdmin(req.Caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	t := &repository.Template{Name: name, Description: req.Description, CreatedBy: req.Caller.ID}
	if err := s.store.Templates().Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info().Str("template_id", t.ID).Str("name", t.Name).Msg("Template created")
	return t, nil
}

func (s *TemplateService) GetTemplate(ctx context.Context, id string) (*repository.Template, error) {
	return s.store.Templates().GetByID(ctx, id)
}

func (s *TemplateService) ListTemplates(ctx context.Context, page, pageSize int) ([]*repository.Template, int64, error) {
	limit, offset := pagination(page, pageSize)
	return s.store.Templates().List(ctx, limit, offset)
}

func (s *TemplateService) UpdateTemplate(ctx context.Context, req *TemplateRequest) (*repository.Template, error) {
	if err := requireAdmin(req.Caller); err != nil {
		return nil, err
	}
	t, err := s.store.Templates().GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		t.Name = name
	}
	if req.Description != nil {
		t.Description = req.Description
	}
	if err := s.store.Templates().Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTemplate removes a template and its route. Documents created from it
// keep their data but lose the link.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id string, caller Caller) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if err := s.store.Templates().Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("template_id", id).Msg("Template deleted")
	return nil
}

// SetRoute validates and stores the approval route of a template. Documents
// already in approval keep the policy of their active step and pick up the new
// route from their next step onwards.
func (s *TemplateService) SetRoute(ctx context.Context, req *SetRouteRequest) (*repository.ApprovalRoute, error) {
	if err := requireAdmin(req.Caller); err != nil {
		return nil, err
	}
	steps, err := routing.NormalizeSteps(req.Steps)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	route := &repository.ApprovalRoute{TemplateID: req.TemplateID, Name: name, Steps: steps}

	err = s.store.InTransaction(ctx, func(tx repository.Repositories) error {
		t, err := tx.Templates().GetByID(ctx, req.TemplateID)
		if err != nil {
			return err
		}
		if route.Name == "" {
			route.Name = t.Name + " route"
		}
		if err := s.checkApprovers(ctx, tx, steps); err != nil {
			return err
		}
		return tx.Routes().Upsert(ctx, route)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("template_id", req.TemplateID).
		Int("steps", len(route.Steps)).
		Msg("Approval route saved")

	return route, nil
}

// GetRoute returns the template's route, NOT_FOUND when it has none.
func (s *TemplateService) GetRoute(ctx context.Context, templateID string) (*repository.ApprovalRoute, error) {
	if _, err := s.store.Templates().GetByID(ctx, templateID); err != nil {
		return nil, err
	}
	route, err := s.store.Routes().GetByTemplateID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, errors.NotFound("approval_route", templateID)
	}
	return route, nil
}

func (s *TemplateService) DeleteRoute(ctx context.Context, templateID string, caller Caller) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return s.store.Routes().DeleteByTemplateID(ctx, templateID)
}

// checkApprovers requires every explicit approver id to name an existing user.
func (s *TemplateService) checkApprovers(ctx context.Context, tx repository.Repositories, steps []repository.RouteStep) error {
	for _, step := range steps {
		if len(step.ApproverIDs) == 0 {
			continue
		}
		found, err := tx.Users().GetByIDs(ctx, step.ApproverIDs)
		if err != nil {
			return err
		}
		if len(found) == len(step.ApproverIDs) {
			continue
		}
		known := make(map[string]bool, len(found))
		for _, u := range found {
			known[u.ID] = true
		}
		var missing []string
		for _, id := range step.ApproverIDs {
			if !known[id] {
				missing = append(missing, id)
			}
		}
		return errors.InvalidInput("steps",
			fmt.Sprintf("step %d references unknown approvers: %s", step.StepNumber, strings.Join(missing, ", ")))
	}
	return nil
}
