package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

var validate = validator.New()

// UserService manages the user directory used for approver resolution
type UserService struct {
	store repository.Store
	log   *logger.Logger
}

// NewUserService creates a new user service
func NewUserService(store repository.Store, log *logger.Logger) *UserService {
	return &UserService{store: store, log: log.Component("users")}
}

// CreateUserRequest represents a create user request
type CreateUserRequest struct {
	Email  string
	Name   string
	Role   repository.UserRole
	Caller Caller
}

func (s *UserService) CreateUser(ctx context.Context, req *CreateUserRequest) (*repository.User, error) {
	if err := requireAdmin(req.Caller); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, errors.InvalidInput("email", "invalid email address")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	role := repository.UserRole(strings.ToUpper(string(req.Role)))
	if !role.Valid() {
		return nil, errors.InvalidInput("role", "role must be ADMIN, MANAGER, APPROVER or EMPLOYEE")
	}

	u := &repository.User{Email: email, Name: name, Role: role, IsActive: true}
	if err := s.store.Users().Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("User created")
	return u, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*repository.User, error) {
	return s.store.Users().GetByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, page, pageSize int) ([]*repository.User, int64, error) {
	limit, offset := pagination(page, pageSize)
	return s.store.Users().List(ctx, limit, offset)
}

// UpdateRole changes a user's role. Pending approval records already assigned
// to the user are not affected.
func (s *UserService) UpdateRole(ctx context.Context, id string, role repository.UserRole, caller Caller) (*repository.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	role = repository.UserRole(strings.ToUpper(string(role)))
	if !role.Valid() {
		return nil, errors.InvalidInput("role", "role must be ADMIN, MANAGER, APPROVER or EMPLOYEE")
	}
	u, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Role = role
	if err := s.store.Users().Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Deactivate marks a user inactive. Inactive users are skipped when a step
// activates.
func (s *UserService) Deactivate(ctx context.Context, id string, caller Caller) (*repository.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	u, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return u, nil
	}
	u.IsActive = false
	if err := s.store.Users().Update(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", id).Msg("User deactivated")
	return u, nil
}
