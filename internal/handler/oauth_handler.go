package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/middleware"
	"github.com/xxxsen/rentdesk/internal/oauth"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
	"github.com/xxxsen/rentdesk/internal/pkg/response"
	"github.com/xxxsen/rentdesk/internal/service"
)

const oauthLandingPath = "/oauth/callback"

type OAuthHandler struct {
	oauth      *service.OAuthService
	states     *oauth.StateStore
	production bool
}

func NewOAuthHandler(svc *service.OAuthService, states *oauth.StateStore, production bool) *OAuthHandler {
	return &OAuthHandler{oauth: svc, states: states, production: production}
}

func (h *OAuthHandler) AuthURL(c *gin.Context) {
	provider, err := oauth.ParseProvider(c.Param("provider"))
	if err != nil {
		badRequest(c)
		return
	}
	state, err := h.states.Create(provider)
	if err != nil {
		handleError(c, err)
		return
	}
	authURL, err := h.oauth.GetAuthURL(provider, state)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"url": authURL})
}

// Callback accepts GET and the form_post POST Apple uses.
func (h *OAuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if c.Request.Method == http.MethodPost {
		code = c.PostForm("code")
		state = c.PostForm("state")
	}
	provider, err := oauth.ParseProvider(c.Param("provider"))
	if err != nil || code == "" || state == "" {
		h.redirectError(c, "invalid", "")
		return
	}
	stored, ok := h.states.Consume(state)
	if !ok || stored != provider {
		h.redirectError(c, "invalid", provider.String())
		return
	}
	ctx := c.Request.Context()
	profile, err := h.oauth.ExchangeCode(ctx, provider, code)
	if err != nil {
		logutil.GetLogger(ctx).Warn("oauth exchange failed", zap.String("provider", provider.String()), zap.Error(err))
		h.redirectError(c, mapOAuthError(err), provider.String())
		return
	}
	session, err := h.oauth.LoginOrCreate(ctx, profile)
	if err != nil {
		h.redirectError(c, mapOAuthError(err), provider.String())
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, session.Token, int(sessionCookieMaxAge.Seconds()), "/", "", h.production, true)
	c.Redirect(http.StatusFound, oauthLandingPath+"?provider="+url.QueryEscape(provider.String()))
}

func (h *OAuthHandler) redirectError(c *gin.Context, code, provider string) {
	params := url.Values{}
	params.Set("error", code)
	if provider != "" {
		params.Set("provider", provider)
	}
	c.Redirect(http.StatusFound, oauthLandingPath+"?"+params.Encode())
}

func mapOAuthError(err error) string {
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		if reason := appErr.AuthReason(err); reason != "" {
			return reason
		}
		return "unauthorized"
	case errors.Is(err, appErr.ErrConflict):
		return "conflict"
	case errors.Is(err, appErr.ErrInvalid):
		return "invalid"
	case errors.Is(err, appErr.ErrNotFound):
		return "not_found"
	}
	return "internal"
}
