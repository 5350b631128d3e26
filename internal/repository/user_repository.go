package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-doc-approvals/pkg/database"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// PGUserRepository handles user records.
type PGUserRepository struct {
	q database.Querier
}

// NewUserRepository creates a new PGUserRepository.
func NewUserRepository(q database.Querier) *PGUserRepository {
	return &PGUserRepository{q: q}
}

const userColumns = `id, email, name, role, is_active, created_at, updated_at`

// Create inserts a user.
func (r *PGUserRepository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (email, name, role, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.q.QueryRow(ctx, query, u.Email, u.Name, string(u.Role), u.IsActive).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "user with this email already exists")
	}
	if err != nil {
		return errors.Unavailable(err, "failed to create user")
	}
	return nil
}

// GetByID retrieves a user.
func (r *PGUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	if err != nil {
		return nil, storeError(err, "failed to get user")
	}
	return u, nil
}

// GetByIDs returns the users among ids that exist, in the order of ids.
func (r *PGUserRepository) GetByIDs(ctx context.Context, ids []string) ([]*User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id::text = ANY($1)
	`
	found, err := r.list(ctx, query, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	ordered := make([]*User, 0, len(found))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			ordered = append(ordered, u)
		}
	}
	return ordered, nil
}

// ListByRole returns active users holding role, oldest first.
func (r *PGUserRepository) ListByRole(ctx context.Context, role UserRole) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = $1 AND is_active = TRUE
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, string(role))
}

// List returns users ordered by name.
func (r *PGUserRepository) List(ctx context.Context, limit, offset int) ([]*User, int64, error) {
	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, errors.Unavailable(err, "failed to count users")
	}
	users, err := r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Update persists name, role and active flag.
func (r *PGUserRepository) Update(ctx context.Context, u *User) error {
	query := `
		UPDATE users
		SET name       = $2,
		    role       = $3,
		    is_active  = $4,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.q.QueryRow(ctx, query, u.ID, u.Name, string(u.Role), u.IsActive).Scan(&u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("user", u.ID)
	}
	if err != nil {
		return errors.Unavailable(err, "failed to update user")
	}
	return nil
}

func (r *PGUserRepository) list(ctx context.Context, query string, args ...any) ([]*User, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Unavailable(err, "failed to list users")
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan user")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable(err, "failed to iterate users")
	}
	return users, nil
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = UserRole(role)
	return u, nil
}
