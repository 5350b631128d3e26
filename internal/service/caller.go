package service

import (
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// Caller is the authenticated identity acting on the service.
type Caller struct {
	ID   string
	Role repository.UserRole
}

// IsAdmin reports whether the caller holds the ADMIN role.
func (c Caller) IsAdmin() bool {
	return c.Role == repository.RoleAdmin
}

func (c Caller) validate() error {
	if c.ID == "" {
		return errors.New(errors.ErrCodeUnauthorized, "missing caller identity")
	}
	return nil
}

func requireAdmin(c Caller) error {
	if err := c.validate(); err != nil {
		return err
	}
	if !c.IsAdmin() {
		return errors.Forbidden("administrator role required")
	}
	return nil
}
