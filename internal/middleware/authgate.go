package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/pkg/errcode"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
	"github.com/xxxsen/rentdesk/internal/pkg/jwt"
	"github.com/xxxsen/rentdesk/internal/pkg/response"
)

const (
	SessionCookieName = "access_token"
	DeviceCookieName  = "device_token"
	FingerprintHeader = "X-Device-Fingerprint"
)

// Self-service routes reachable before the account holds a subscription.
var DefaultExemptRoutes = []string{
	"/api/v1/identity/me",
	"/api/v1/identity/profile/complete",
}

type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// IdentityResolver returns the identity snapshot for id, cached or fresh.
type IdentityResolver interface {
	Resolve(ctx context.Context, identityID string) (*model.IdentitySnapshot, error)
}

type AuthGate struct {
	verifier TokenVerifier
	resolver IdentityResolver
	exempt   map[string]struct{}
	now      func() time.Time
}

func NewAuthGate(verifier TokenVerifier, resolver IdentityResolver, exemptRoutes []string) *AuthGate {
	exempt := make(map[string]struct{}, len(exemptRoutes))
	for _, r := range exemptRoutes {
		exempt[r] = struct{}{}
	}
	return &AuthGate{verifier: verifier, resolver: resolver, exempt: exempt, now: time.Now}
}

// Authorize verifies token and enforces account invariants unless route is
// exempt. Every failure is an *errors.AuthError.
func (g *AuthGate) Authorize(ctx context.Context, token, route string) (*model.IdentitySnapshot, error) {
	if token == "" {
		return nil, appErr.Unauthorized(appErr.ReasonMissingToken, "missing token")
	}
	claims, err := g.verifier.Verify(token)
	if err != nil {
		return nil, invalidToken()
	}
	snapshot, err := g.resolver.Resolve(ctx, claims.IdentityID)
	if err != nil {
		if appErr.AuthReason(err) != "" {
			return nil, err
		}
		if !appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Error("resolve identity failed",
				zap.String("identity_id", claims.IdentityID), zap.Error(err))
		}
		return nil, invalidToken()
	}
	if _, ok := g.exempt[route]; ok {
		return snapshot, nil
	}
	if err := g.enforce(snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (g *AuthGate) enforce(s *model.IdentitySnapshot) error {
	switch {
	case !s.IsActive:
		return appErr.Unauthorized(appErr.ReasonInactive, "account is inactive")
	case s.Role != model.RoleManager:
		return appErr.Unauthorized(appErr.ReasonWrongRole, "manager role required")
	case s.Subscription == nil:
		return appErr.Unauthorized(appErr.ReasonNoSubscription, "active subscription required")
	case s.Subscription.Expired(g.now().Unix()):
		return appErr.Unauthorized(appErr.ReasonSubscriptionExpired, "subscription expired")
	}
	return nil
}

func invalidToken() error {
	return appErr.Unauthorized(appErr.ReasonInvalidToken, "invalid or expired token")
}

func (g *AuthGate) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		ctx := c.Request.Context()
		snapshot, err := g.Authorize(ctx, ExtractToken(c), route)
		if err != nil {
			reason := appErr.AuthReason(err)
			if reason == "" {
				reason = appErr.ReasonInvalidToken
			}
			logutil.GetLogger(ctx).Debug("request rejected by auth gate",
				zap.String("route", route), zap.String("reason", reason))
			response.ErrorStatus(c, http.StatusUnauthorized, errcode.ErrUnauthorized, reason)
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, snapshot.ID)
		c.Set(ContextUserEmailKey, snapshot.Email)
		c.Set(ContextUserRoleKey, snapshot.Role)
		c.Request = c.Request.WithContext(WithIdentity(ctx, snapshot))
		c.Next()
	}
}

// ExtractToken reads the session cookie, falling back to a bearer header.
func ExtractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
