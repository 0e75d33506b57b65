package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/rentdesk/internal/model"
)

const (
	ContextUserIDKey    = "user_id"
	ContextUserEmailKey = "user_email"
	ContextUserRoleKey  = "user_role"
	ContextRequestIDKey = "request_id"
)

type identityCtxKey struct{}

func WithIdentity(ctx context.Context, snapshot *model.IdentitySnapshot) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, snapshot)
}

// IdentityFromContext returns the identity attached by the auth gate.
func IdentityFromContext(ctx context.Context) (*model.IdentitySnapshot, bool) {
	snapshot, ok := ctx.Value(identityCtxKey{}).(*model.IdentitySnapshot)
	return snapshot, ok && snapshot != nil
}

func UserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}
