// Package auth carries the caller identity resolved by the gateway through
// request contexts. Authentication itself happens upstream; this service
// trusts the identity it is handed.
package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	mdUserID   = "x-user-id"
	mdUserRole = "x-user-role"
)

// UserContext is the authenticated caller.
type UserContext struct {
	UserID string
	Role   string
}

type ctxKey struct{}

// WithUserContext returns a context carrying uc.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, uc)
}

// GetUserContext returns the caller identity or an UNAUTHORIZED error.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := ctx.Value(ctxKey{}).(*UserContext)
	if !ok || uc == nil || uc.UserID == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "missing caller identity")
	}
	return uc, nil
}

// FromHeaders builds a UserContext from gateway headers.
func FromHeaders(get func(string) string) (*UserContext, bool) {
	id := strings.TrimSpace(get(HeaderUserID))
	if id == "" {
		return nil, false
	}
	return &UserContext{
		UserID: id,
		Role:   strings.ToUpper(strings.TrimSpace(get(HeaderUserRole))),
	}, true
}

// FromIncomingMetadata builds a UserContext from gRPC metadata.
func FromIncomingMetadata(ctx context.Context) (*UserContext, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, false
	}
	first := func(key string) string {
		if vals := md.Get(key); len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	return FromHeaders(func(h string) string {
		switch h {
		case HeaderUserID:
			return first(mdUserID)
		case HeaderUserRole:
			return first(mdUserRole)
		}
		return ""
	})
}
